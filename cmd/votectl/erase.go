package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	brokermem "github.com/vncsmyrnk/tally/internal/adapters/broker/memory"
	brokerpg "github.com/vncsmyrnk/tally/internal/adapters/broker/postgres"
	"github.com/vncsmyrnk/tally/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/tally/internal/config"
	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
	"github.com/vncsmyrnk/tally/internal/core/services"
)

func eraseCommand() *cobra.Command {
	var caller domain.Caller
	c := &cobra.Command{
		Use:   "erase",
		Short: "Deletes every anonymous vote recorded for a network address and client signature",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if caller.NetworkAddress == "" {
				return fmt.Errorf("--address is required")
			}

			e, err := openEnv(c.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			hub := brokermem.NewBroker(1, nil, e.log)
			defer hub.Close()

			var broker ports.Broker = hub
			if e.cfg.Broker == config.BrokerPostgres {
				pgBroker, err := brokerpg.NewBroker(e.db, e.cfg.DSN(), hub, e.log)
				if err != nil {
					return err
				}
				defer pgBroker.Close()
				broker = pgBroker
			} else {
				e.log.Warn("FANOUT_BROKER is memory; running servers will not see erase events")
			}

			resolver, err := services.NewIdentityResolver(e.cfg.IdentityPepper)
			if err != nil {
				return err
			}
			svc := services.NewVoteService(
				postgres.NewStatementRepository(e.db),
				resolver,
				postgres.NewVoteRepository(e.db, e.cfg.WriteAttempts, nil),
				postgres.NewTallyRepository(e.db),
				broker,
				nil,
				e.log,
			)

			n, err := svc.EraseAnonymous(c.Context(), caller)
			if err != nil {
				return err
			}
			e.log.Info("erase finished", zap.Int("statements", n))
			return nil
		},
	}
	c.Flags().StringVar(&caller.NetworkAddress, "address", "", "Network address the votes were cast from")
	c.Flags().StringVar(&caller.ClientSignature, "signature", "", "Client signature the votes were cast with")
	return c
}
