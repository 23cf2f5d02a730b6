// Package memory is an in-process fanout broker. It is the default for a
// single instance and the local hub behind the postgres broker.
package memory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const DefaultBuffer = 64

var ErrClosed = errors.New("broker closed")

type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}
	closed bool

	buffer  int
	metrics ports.Metrics
	log     *zap.Logger
}

func NewBroker(buffer int, metrics ports.Metrics, log *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		topics:  make(map[string]map[*subscription]struct{}),
		buffer:  buffer,
		metrics: metrics,
		log:     log,
	}
}

// Publish delivers msg to every current subscriber of topic without
// blocking. A subscriber whose buffer is full is closed instead of
// skipped, so every subscription still open has seen every message.
func (b *Broker) Publish(_ context.Context, topic string, msg domain.FanoutMessage) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}

	var slow []*subscription
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- msg:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.metrics.SubscriberEvicted()
		b.log.Warn("evicting slow subscriber", zap.String("topic", topic))
		b.remove(sub)
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscription{
		broker: b,
		topic:  topic,
		ch:     make(chan domain.FanoutMessage, b.buffer),
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// Subscribers reports how many live subscriptions topic has.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close ends every subscription; their channels are closed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.dropAllLocked()
	return nil
}

// CloseSubscriptions ends every current subscription but keeps accepting
// new ones. Callers use it when messages may have been lost upstream.
func (b *Broker) CloseSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropAllLocked()
}

func (b *Broker) dropAllLocked() {
	for topic, subs := range b.topics {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(b.topics, topic)
	}
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	sub.closeLocked()
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}

type subscription struct {
	broker *Broker
	topic  string
	ch     chan domain.FanoutMessage
	once   sync.Once
}

func (s *subscription) Messages() <-chan domain.FanoutMessage {
	return s.ch
}

func (s *subscription) Close() error {
	s.broker.remove(s)
	return nil
}

// closeLocked requires the broker write lock.
func (s *subscription) closeLocked() {
	s.once.Do(func() { close(s.ch) })
}
