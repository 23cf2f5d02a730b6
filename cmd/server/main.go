package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	brokermem "github.com/vncsmyrnk/tally/internal/adapters/broker/memory"
	brokerpg "github.com/vncsmyrnk/tally/internal/adapters/broker/postgres"
	"github.com/vncsmyrnk/tally/internal/adapters/cache"
	"github.com/vncsmyrnk/tally/internal/adapters/handler/http"
	"github.com/vncsmyrnk/tally/internal/adapters/metrics"
	"github.com/vncsmyrnk/tally/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/tally/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/tally/internal/config"
	"github.com/vncsmyrnk/tally/internal/core/ports"
	"github.com/vncsmyrnk/tally/internal/core/services"
	"github.com/vncsmyrnk/tally/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPrometheus(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var (
		catalog   ports.StatementCatalog
		voteRepo  ports.VoteRepository
		tallyRepo ports.TallyRepository
		broker    ports.Broker
	)

	hub := brokermem.NewBroker(cfg.FanoutBuffer, m, log.Named("fanout"))
	broker = hub

	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DSN())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}

		catalog = postgres.NewStatementRepository(db)
		voteRepo = postgres.NewVoteRepository(db, cfg.WriteAttempts, m)
		tallyRepo = postgres.NewTallyRepository(db)

		if cfg.Broker == config.BrokerPostgres {
			pgBroker, err := brokerpg.NewBroker(db, cfg.DSN(), hub, log.Named("notify"))
			if err != nil {
				return err
			}
			g.Go(func() error { return pgBroker.Run(ctx) })
			broker = pgBroker
		}
	default:
		store := memory.NewStore()
		catalog, voteRepo, tallyRepo = store, store, store
		log.Warn("using in-memory vote store; votes are lost on restart")
	}

	if cfg.Broker == config.BrokerMemory {
		defer hub.Close()
	}

	if cfg.TallyCacheTTL > 0 {
		tallyRepo = cache.NewTallyCache(tallyRepo, cache.DefaultSize, cfg.TallyCacheTTL)
	}

	resolver, err := services.NewIdentityResolver(cfg.IdentityPepper)
	if err != nil {
		return err
	}

	voteSvc := services.NewVoteService(catalog, resolver, voteRepo, tallyRepo, broker, m, log.Named("votes"))
	tallySvc := services.NewTallyService(catalog, tallyRepo)
	gateway := services.NewGateway(broker, cfg.KeepAlive, m, log.Named("gateway"))

	httpLog := log.Named("http")
	handler := http.NewHandler(
		http.NewVoteHandler(voteSvc, httpLog),
		http.NewTallyHandler(tallySvc, httpLog),
		http.NewStreamHandler(gateway, catalog, cfg.ReconnectDelay, httpLog),
		http.NewAuthenticator(cfg.JWTSecret),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cfg.AllowedOrigins,
		httpLog,
	)
	server := &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
