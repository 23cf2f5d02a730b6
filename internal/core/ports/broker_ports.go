package ports

import (
	"context"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type Broker interface {
	Publish(ctx context.Context, topic string, msg domain.FanoutMessage) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription must be closed on every exit path; Close is idempotent.
type Subscription interface {
	Messages() <-chan domain.FanoutMessage
	Close() error
}
