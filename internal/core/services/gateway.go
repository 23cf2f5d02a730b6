package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const DefaultKeepAlive = 15 * time.Second

type StreamState int

const (
	StateConnecting StreamState = iota
	StateSubscribed
	StateStreaming
	StateError
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

type gateway struct {
	broker    ports.Broker
	keepAlive time.Duration
	metrics   ports.Metrics
	log       *zap.Logger

	now        func() time.Time
	newChannel func() string
	observe    func(channel string, state StreamState)
}

func NewGateway(broker ports.Broker, keepAlive time.Duration, metrics ports.Metrics, log *zap.Logger) ports.StreamGateway {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &gateway{
		broker:     broker,
		keepAlive:  keepAlive,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
		newChannel: func() string { return uuid.NewString() },
	}
}

type session struct {
	g       *gateway
	channel string
	state   StreamState
	log     *zap.Logger
}

func (s *session) transition(next StreamState) {
	s.log.Debug("stream state",
		zap.Stringer("from", s.state),
		zap.Stringer("to", next),
	)
	s.state = next
	if s.g.observe != nil {
		s.g.observe(s.channel, next)
	}
}

func (g *gateway) Serve(ctx context.Context, statementID uuid.UUID, sink ports.StreamSink) error {
	sess := &session{
		g:       g,
		channel: g.newChannel(),
		state:   StateConnecting,
	}
	sess.log = g.log.With(
		zap.String("channel", sess.channel),
		zap.Stringer("statement_id", statementID),
	)

	g.metrics.StreamOpened()
	defer g.metrics.StreamClosed()
	defer sess.transition(StateClosed)

	if g.observe != nil {
		g.observe(sess.channel, StateConnecting)
	}

	sub, err := g.broker.Subscribe(ctx, domain.TopicFor(statementID))
	if err != nil {
		sess.transition(StateError)
		sess.log.Warn("failed to subscribe viewer", zap.Error(err))
		_ = sink.Fail(domain.StreamError{Kind: domain.EventError, Message: domain.ErrSubscription.Error()})
		return fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			sess.log.Warn("failed to release subscription", zap.Error(err))
		}
	}()
	sess.transition(StateSubscribed)

	if err := sink.Hello(domain.NewHello(sess.channel, g.now())); err != nil {
		return nil
	}
	sess.transition(StateStreaming)

	ticker := time.NewTicker(g.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				sess.transition(StateError)
				_ = sink.Fail(domain.StreamError{Kind: domain.EventError, Message: "subscription ended"})
				return domain.ErrSubscription
			}
			if err := sink.Send(msg); err != nil {
				sess.log.Debug("viewer write failed", zap.Error(err))
				return nil
			}
		case <-ticker.C:
			if err := sink.KeepAlive(); err != nil {
				sess.log.Debug("viewer keep-alive failed", zap.Error(err))
				return nil
			}
		}
	}
}
