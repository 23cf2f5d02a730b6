// Package postgres fans vote events out across instances with
// LISTEN/NOTIFY. Every instance publishes through pg_notify and relays
// what its listener receives into a local in-process hub.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/adapters/broker/memory"
	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const (
	Channel = "tally_events"

	// NOTIFY payloads are capped at 8000 bytes by the server.
	maxPayload = 7999

	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

type envelope struct {
	Topic   string               `json:"topic"`
	Message domain.FanoutMessage `json:"message"`
}

type Broker struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *memory.Broker
	log      *zap.Logger
}

var _ ports.Broker = (*Broker)(nil)

func NewBroker(db *sql.DB, connStr string, hub *memory.Broker, log *zap.Logger) (*Broker, error) {
	if log == nil {
		log = zap.NewNop()
	}

	listener := pq.NewListener(connStr, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			log.Warn("notify listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			log.Info("notify listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warn("notify listener reconnect failed", zap.Error(err))
		}
	})
	if err := listener.Listen(Channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}

	return &Broker{
		db:       db,
		listener: listener,
		hub:      hub,
		log:      log,
	}, nil
}

func (b *Broker) Publish(ctx context.Context, topic string, msg domain.FanoutMessage) error {
	payload, err := json.Marshal(envelope{Topic: topic, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to encode fanout message: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("fanout payload of %d bytes exceeds notify limit", len(payload))
	}

	if _, err := b.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (ports.Subscription, error) {
	return b.hub.Subscribe(ctx, topic)
}

// Close releases the listener for a broker that is only used to publish.
func (b *Broker) Close() error {
	return b.listener.Close()
}

// Run relays notifications into the hub until ctx is done, then closes
// the listener and the hub.
func (b *Broker) Run(ctx context.Context) error {
	defer b.hub.Close()
	defer b.listener.Close()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-b.listener.Notify:
			if !ok {
				return nil
			}
			// nil after a reconnect: anything sent meanwhile is gone, so
			// viewers are dropped and resubscribe with a fresh tally.
			if n == nil {
				b.log.Warn("closing local subscriptions after notify reconnect")
				b.hub.CloseSubscriptions()
				continue
			}
			b.relay(ctx, n)
		case <-ping.C:
			go func() {
				if err := b.listener.Ping(); err != nil {
					b.log.Warn("notify listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (b *Broker) relay(ctx context.Context, n *pq.Notification) {
	var env envelope
	if err := json.Unmarshal([]byte(n.Extra), &env); err != nil {
		b.log.Warn("discarding malformed notification", zap.Error(err))
		return
	}
	if err := b.hub.Publish(ctx, env.Topic, env.Message); err != nil {
		b.log.Warn("failed to relay notification", zap.String("topic", env.Topic), zap.Error(err))
	}
}
