package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vncsmyrnk/tally/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
	"github.com/vncsmyrnk/tally/internal/core/services"
)

func tallyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tally <statement-id>",
		Short: "Prints the current tally of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrInvalidStatementID, err)
			}

			e, err := openEnv(c.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			tally, err := tallyService(e).Tally(c.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(c, tally)
		},
	}
}

func seriesCommand() *cobra.Command {
	var window int
	c := &cobra.Command{
		Use:   "series <statement-id>",
		Short: "Prints the daily buckets of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrInvalidStatementID, err)
			}

			e, err := openEnv(c.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			buckets, err := tallyService(e).DailySeries(c.Context(), id, window)
			if err != nil {
				return err
			}
			if buckets == nil {
				buckets = []domain.DailyBucket{}
			}
			return printJSON(c, buckets)
		},
	}
	c.Flags().IntVar(&window, "window", domain.DefaultSeriesWindowDays, "Number of days to include")
	return c
}

func tallyService(e *env) ports.TallyService {
	return services.NewTallyService(postgres.NewStatementRepository(e.db), postgres.NewTallyRepository(e.db))
}

func printJSON(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
