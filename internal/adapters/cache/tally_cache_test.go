package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type countingRepo struct {
	calls int
	total int64
}

func (r *countingRepo) Tally(_ context.Context, id uuid.UUID) (domain.Tally, error) {
	r.calls++
	t := domain.NewTally(id)
	t.Add(domain.ValueAgree, r.total)
	return t, nil
}

func (r *countingRepo) DailySeries(context.Context, uuid.UUID, time.Time) ([]domain.DailyBucket, error) {
	return []domain.DailyBucket{{Total: r.total}}, nil
}

func TestTallyCacheHitsAndInvalidates(t *testing.T) {
	repo := &countingRepo{total: 1}
	c := NewTallyCache(repo, 8, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	first, err := c.Tally(ctx, id)
	require.NoError(t, err)
	second, err := c.Tally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)

	repo.total = 2
	c.Invalidate(id)

	third, err := c.Tally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Total)
	assert.Equal(t, 2, repo.calls)
}

func TestTallyCacheReturnsIsolatedCounts(t *testing.T) {
	c := NewTallyCache(&countingRepo{total: 1}, 8, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	got, err := c.Tally(ctx, id)
	require.NoError(t, err)
	got.Counts[domain.ValueAgree] = 99

	again, err := c.Tally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Counts[domain.ValueAgree])
}

func TestTallyCacheExpires(t *testing.T) {
	repo := &countingRepo{}
	c := NewTallyCache(repo, 8, 20*time.Millisecond)
	ctx := context.Background()
	id := uuid.New()

	_, err := c.Tally(ctx, id)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, _ = c.Tally(ctx, id)
		return repo.calls > 1
	}, time.Second, 10*time.Millisecond)
}

func TestTallyCacheSeriesPassesThrough(t *testing.T) {
	repo := &countingRepo{total: 3}
	c := NewTallyCache(repo, 8, time.Minute)

	buckets, err := c.DailySeries(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyBucket{{Total: 3}}, buckets)
}

// blockingRepo parks the first Tally call until release is closed, after
// reporting the total it read.
type blockingRepo struct {
	mu      sync.Mutex
	total   int64
	read    chan int64
	release chan struct{}
	blocked bool
}

func (r *blockingRepo) Tally(_ context.Context, id uuid.UUID) (domain.Tally, error) {
	r.mu.Lock()
	t := domain.NewTally(id)
	t.Add(domain.ValueAgree, r.total)
	block := !r.blocked
	r.blocked = true
	r.mu.Unlock()

	if block {
		r.read <- t.Total
		<-r.release
	}
	return t, nil
}

func (r *blockingRepo) DailySeries(context.Context, uuid.UUID, time.Time) ([]domain.DailyBucket, error) {
	return nil, nil
}

func (r *blockingRepo) commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
}

func TestTallyCacheDiscardsFillOverlappingInvalidate(t *testing.T) {
	repo := &blockingRepo{read: make(chan int64), release: make(chan struct{})}
	c := NewTallyCache(repo, 8, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	// A reader misses and snapshots the tally before the vote commits.
	done := make(chan domain.Tally)
	go func() {
		got, _ := c.Tally(ctx, id)
		done <- got
	}()
	require.Equal(t, int64(0), <-repo.read)

	// The write commits and invalidates while that read is still in flight.
	repo.commit()
	c.Invalidate(id)

	close(repo.release)
	assert.Equal(t, int64(0), (<-done).Total)

	fresh, err := c.Tally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.Total)

	cached, err := c.Tally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Total)
}
