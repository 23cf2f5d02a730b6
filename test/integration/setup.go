package integration

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	brokermem "github.com/vncsmyrnk/tally/internal/adapters/broker/memory"
	brokerpg "github.com/vncsmyrnk/tally/internal/adapters/broker/postgres"
	handler "github.com/vncsmyrnk/tally/internal/adapters/handler/http"
	repo "github.com/vncsmyrnk/tally/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/tally/internal/core/ports"
	"github.com/vncsmyrnk/tally/internal/core/services"
)

const (
	testJWTSecret = "test-secret"
	testPepper    = "test-pepper"
)

type TestApp struct {
	DB          *sql.DB
	ConnStr     string
	Server      *httptest.Server
	Client      *http.Client
	VoteSvc     ports.VoteService
	VoteRepo    ports.VoteRepository
	TallyRepo   ports.TallyRepository
	Hub         *brokermem.Broker
	DBContainer testcontainers.Container

	stopBroker context.CancelFunc
	brokerDone chan error
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	dbName := "testdb"
	user := "user"
	password := "password"

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

func applyMigrations(db *sql.DB) error {
	dirPath := "../../internal/adapters/repository/postgres/migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		_, err = db.Exec(string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// setupTestApp runs the whole server against a fresh container, with
// fanout going through LISTEN/NOTIFY.
func setupTestApp(t *testing.T) *TestApp {
	t.Helper()

	ctx := context.Background()
	dbContainer, connStr, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	err = applyMigrations(db)
	require.NoError(t, err)

	log := zap.NewNop()

	hub := brokermem.NewBroker(brokermem.DefaultBuffer, nil, log)
	broker, err := brokerpg.NewBroker(db, connStr, hub, log)
	require.NoError(t, err)

	brokerCtx, stopBroker := context.WithCancel(ctx)
	brokerDone := make(chan error, 1)
	go func() { brokerDone <- broker.Run(brokerCtx) }()

	resolver, err := services.NewIdentityResolver(testPepper)
	require.NoError(t, err)

	catalog := repo.NewStatementRepository(db)
	voteRepo := repo.NewVoteRepository(db, repo.DefaultWriteAttempts, nil)
	tallyRepo := repo.NewTallyRepository(db)

	voteSvc := services.NewVoteService(catalog, resolver, voteRepo, tallyRepo, broker, nil, log)
	tallySvc := services.NewTallyService(catalog, tallyRepo)
	gateway := services.NewGateway(broker, time.Second, nil, log)

	router := handler.NewHandler(
		handler.NewVoteHandler(voteSvc, log),
		handler.NewTallyHandler(tallySvc, log),
		handler.NewStreamHandler(gateway, catalog, 0, log),
		handler.NewAuthenticator(testJWTSecret),
		nil,
		[]string{"*"},
		log,
	)

	server := httptest.NewServer(router)

	return &TestApp{
		DB:          db,
		ConnStr:     connStr,
		Server:      server,
		Client:      server.Client(),
		VoteSvc:     voteSvc,
		VoteRepo:    voteRepo,
		TallyRepo:   tallyRepo,
		Hub:         hub,
		DBContainer: dbContainer,
		stopBroker:  stopBroker,
		brokerDone:  brokerDone,
	}
}

func (app *TestApp) Teardown(t *testing.T) {
	app.Server.Close()
	app.stopBroker()
	if err := <-app.brokerDone; err != nil {
		t.Logf("broker stopped with error: %v", err)
	}
	app.DB.Close()
	if err := app.DBContainer.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate container: %v", err)
	}
}

func (app *TestApp) createStatement(t *testing.T) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := app.DB.Exec("INSERT INTO statements (id) VALUES ($1)", id)
	require.NoError(t, err)
	return id
}

func createToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(15 * time.Minute).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signedToken
}

// sseReader yields the data payloads of an event stream, skipping retry
// and comment frames.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(resp *http.Response) *sseReader {
	return &sseReader{scanner: bufio.NewScanner(resp.Body)}
}

func (r *sseReader) next(t *testing.T, v any) {
	t.Helper()

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), v))
			return
		}
	}
	require.NoError(t, r.scanner.Err())
	t.Fatal("stream ended before the next data frame")
}
