// Package memory holds the vote ledger in process memory. It backs local
// development and service tests; one Store satisfies the vote, tally and
// statement catalog ports.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

var (
	_ ports.VoteRepository   = (*Store)(nil)
	_ ports.TallyRepository  = (*Store)(nil)
	_ ports.StatementCatalog = (*Store)(nil)
)

type recordKey struct {
	statementID uuid.UUID
	kind        domain.IdentityKind
	identityKey string
}

func keyFor(statementID uuid.UUID, k domain.DedupKey) recordKey {
	return recordKey{statementID: statementID, kind: k.Kind(), identityKey: k.Key()}
}

type Store struct {
	mu         sync.RWMutex
	votes      map[recordKey]*domain.Vote
	statements map[uuid.UUID]struct{}
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		votes:      make(map[recordKey]*domain.Vote),
		statements: make(map[uuid.UUID]struct{}),
		now:        time.Now,
	}
}

// WithClock replaces the clock used to stamp records.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) AddStatement(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements[id] = struct{}{}
}

func (s *Store) Exists(_ context.Context, statementID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.statements[statementID]
	return ok, nil
}

func (s *Store) WriteVote(_ context.Context, write domain.VoteWrite) (domain.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statements[write.StatementID]; !ok {
		return domain.WriteResult{}, domain.NewValidationError(domain.ErrStatementNotFound, write.StatementID.String())
	}

	now := s.now().UTC()
	key := keyFor(write.StatementID, write.Identity.DedupKey())

	if existing, ok := s.votes[key]; ok {
		prev := existing.Value
		existing.Value = write.Value
		existing.Region = copyRegion(write.Region)
		existing.UpdatedAt = now
		return domain.WriteResult{PreviousValue: &prev, NewValue: write.Value}, nil
	}

	s.votes[key] = &domain.Vote{
		StatementID:  write.StatementID,
		IdentityKey:  write.Identity.Key,
		IdentityKind: write.Identity.Kind,
		Value:        write.Value,
		Region:       copyRegion(write.Region),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return domain.WriteResult{NewValue: write.Value}, nil
}

func (s *Store) GetVote(_ context.Context, statementID uuid.UUID, k domain.DedupKey) (*domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.votes[keyFor(statementID, k)]
	if !ok {
		return nil, nil
	}
	out := *v
	out.Region = copyRegion(v.Region)
	return &out, nil
}

func (s *Store) CountVotes(_ context.Context, statementID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for k := range s.votes {
		if k.statementID == statementID {
			n++
		}
	}
	return n, nil
}

func (s *Store) EraseAnonymous(_ context.Context, identityKey string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected []uuid.UUID
	for k := range s.votes {
		if k.kind == domain.IdentityAnonymous && k.identityKey == identityKey {
			affected = append(affected, k.statementID)
			delete(s.votes, k)
		}
	}
	sort.Slice(affected, func(i, j int) bool {
		return affected[i].String() < affected[j].String()
	})
	return affected, nil
}

func (s *Store) Tally(_ context.Context, statementID uuid.UUID) (domain.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := domain.NewTally(statementID)
	for k, v := range s.votes {
		if k.statementID == statementID {
			t.Add(v.Value, 1)
		}
	}
	return t, nil
}

func (s *Store) DailySeries(_ context.Context, statementID uuid.UUID, since time.Time) ([]domain.DailyBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[int64]*domain.DailyBucket)
	for k, v := range s.votes {
		if k.statementID != statementID || v.UpdatedAt.Before(since) {
			continue
		}
		day := domain.EpochDay(v.UpdatedAt)
		b, ok := byDay[day]
		if !ok {
			b = &domain.DailyBucket{
				StatementID: statementID,
				Day:         domain.DayStart(day),
				Counts:      make(map[domain.Value]int64),
			}
			byDay[day] = b
		}
		b.Counts[v.Value]++
		b.Total++
	}

	buckets := make([]domain.DailyBucket, 0, len(byDay))
	for _, b := range byDay {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Day.Before(buckets[j].Day)
	})
	return buckets, nil
}

func copyRegion(r *string) *string {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
