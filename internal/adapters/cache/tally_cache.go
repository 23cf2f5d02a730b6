// Package cache wraps a tally repository with a short-lived LRU. Entries
// are dropped by the local write path, so a single instance always reads
// its own writes; other instances may lag by up to the TTL.
package cache

import (
	"context"
	"hash/fnv"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const (
	DefaultSize = 4096

	generationStripes = 64
)

type TallyCache struct {
	next ports.TallyRepository
	lru  *expirable.LRU[uuid.UUID, domain.Tally]

	// A fill is stored only if no Invalidate touched its stripe while the
	// read was in flight.
	mu          sync.Mutex
	generations [generationStripes]uint64
}

var (
	_ ports.TallyRepository  = (*TallyCache)(nil)
	_ ports.TallyInvalidator = (*TallyCache)(nil)
)

func NewTallyCache(next ports.TallyRepository, size int, ttl time.Duration) *TallyCache {
	if size <= 0 {
		size = DefaultSize
	}
	return &TallyCache{
		next: next,
		lru:  expirable.NewLRU[uuid.UUID, domain.Tally](size, nil, ttl),
	}
}

func (c *TallyCache) Tally(ctx context.Context, statementID uuid.UUID) (domain.Tally, error) {
	if t, ok := c.lru.Get(statementID); ok {
		return clone(t), nil
	}

	s := stripe(statementID)
	c.mu.Lock()
	gen := c.generations[s]
	c.mu.Unlock()

	t, err := c.next.Tally(ctx, statementID)
	if err != nil {
		return domain.Tally{}, err
	}

	c.mu.Lock()
	if c.generations[s] == gen {
		c.lru.Add(statementID, clone(t))
	}
	c.mu.Unlock()
	return t, nil
}

func (c *TallyCache) DailySeries(ctx context.Context, statementID uuid.UUID, since time.Time) ([]domain.DailyBucket, error) {
	return c.next.DailySeries(ctx, statementID, since)
}

func (c *TallyCache) Invalidate(statementID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[stripe(statementID)]++
	c.lru.Remove(statementID)
}

func clone(t domain.Tally) domain.Tally {
	t.Counts = maps.Clone(t.Counts)
	return t
}

func stripe(id uuid.UUID) int {
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % generationStripes)
}
