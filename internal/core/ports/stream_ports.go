package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/tally/internal/core/domain"
)

// StreamSink is one viewer's push connection. Implementations must not
// retain messages after returning.
type StreamSink interface {
	Hello(hello domain.Hello) error
	Send(msg domain.FanoutMessage) error
	KeepAlive() error
	Fail(e domain.StreamError) error
}

type StreamGateway interface {
	// Serve blocks until ctx is done, the sink fails, or the subscription ends.
	Serve(ctx context.Context, statementID uuid.UUID, sink StreamSink) error
}
