// Command votectl is the operator tool for the vote ledger: it applies
// migrations and inspects or erases recorded votes.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/config"
	"github.com/vncsmyrnk/tally/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "votectl",
		Short:         "Operate the vote ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.AddCommand(
		migrateCommand(),
		tallyCommand(),
		seriesCommand(),
		eraseCommand(),
	)
	return c
}

type env struct {
	cfg config.Config
	db  *sql.DB
	log *zap.Logger
}

func (e *env) Close() {
	e.db.Close()
	_ = e.log.Sync()
}

// openEnv connects to Postgres. Commands that resolve identities pass full
// so the pepper is validated too.
func openEnv(ctx context.Context, full bool) (*env, error) {
	load := config.LoadDatabase
	if full {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &env{cfg: cfg, db: db, log: log}, nil
}
