package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	BrokerMemory   = "memory"
	BrokerPostgres = "postgres"
)

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string

	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	Store  string
	Broker string

	IdentityPepper string
	JWTSecret      string

	KeepAlive      time.Duration
	ReconnectDelay time.Duration
	WriteAttempts  int
	FanoutBuffer   int
	TallyCacheTTL  time.Duration

	LogLevel  string
	LogFormat string
}

// DSN builds the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// LoadDatabase is Load for tools that only talk to Postgres. It checks the
// connection settings and nothing else.
func LoadDatabase() (Config, error) {
	_ = godotenv.Load()
	cfg, err := parse(os.Getenv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validateDatabase(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func FromEnv(getenv func(string) string) (Config, error) {
	cfg, err := parse(getenv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parse(getenv func(string) string) (Config, error) {
	env := func(name, def string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		HTTPAddr:       env("HTTP_ADDR", "0.0.0.0:8080"),
		AllowedOrigins: splitList(env("ALLOWED_ORIGINS", "*")),
		DBHost:         getenv("POSTGRES_HOST"),
		DBPort:         env("POSTGRES_PORT", "5432"),
		DBUser:         getenv("POSTGRES_USER"),
		DBPass:         getenv("POSTGRES_PASSWORD"),
		DBName:         getenv("POSTGRES_DB"),
		Store:          env("VOTE_STORE", StorePostgres),
		Broker:         env("FANOUT_BROKER", BrokerMemory),
		IdentityPepper: getenv("IDENTITY_PEPPER"),
		JWTSecret:      getenv("JWT_SECRET"),
		LogLevel:       env("LOG_LEVEL", "info"),
		LogFormat:      env("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.KeepAlive, err = duration(env("STREAM_KEEPALIVE", "15s")); err != nil {
		return Config{}, fmt.Errorf("invalid STREAM_KEEPALIVE: %w", err)
	}
	if cfg.ReconnectDelay, err = duration(env("STREAM_RECONNECT_DELAY", "5s")); err != nil {
		return Config{}, fmt.Errorf("invalid STREAM_RECONNECT_DELAY: %w", err)
	}
	if cfg.TallyCacheTTL, err = duration(env("TALLY_CACHE_TTL", "0s")); err != nil {
		return Config{}, fmt.Errorf("invalid TALLY_CACHE_TTL: %w", err)
	}
	if cfg.WriteAttempts, err = strconv.Atoi(env("VOTE_WRITE_RETRIES", "3")); err != nil || cfg.WriteAttempts < 1 {
		return Config{}, fmt.Errorf("invalid VOTE_WRITE_RETRIES %q", getenv("VOTE_WRITE_RETRIES"))
	}
	if cfg.FanoutBuffer, err = strconv.Atoi(env("FANOUT_BUFFER", "64")); err != nil || cfg.FanoutBuffer < 1 {
		return Config{}, fmt.Errorf("invalid FANOUT_BUFFER %q", getenv("FANOUT_BUFFER"))
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IdentityPepper == "" {
		return fmt.Errorf("IDENTITY_PEPPER is required")
	}
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown VOTE_STORE %q", c.Store)
	}
	switch c.Broker {
	case BrokerMemory, BrokerPostgres:
	default:
		return fmt.Errorf("unknown FANOUT_BROKER %q", c.Broker)
	}
	if c.Broker == BrokerPostgres && c.Store != StorePostgres {
		return fmt.Errorf("FANOUT_BROKER=postgres requires VOTE_STORE=postgres")
	}
	if c.Store == StorePostgres {
		return c.validateDatabase()
	}
	return nil
}

func (c Config) validateDatabase() error {
	if c.DBHost == "" || c.DBName == "" {
		return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required for the postgres store")
	}
	return nil
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
