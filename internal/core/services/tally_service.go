package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type tallyService struct {
	catalog ports.StatementCatalog
	repo    ports.TallyRepository
	now     func() time.Time
}

func NewTallyService(catalog ports.StatementCatalog, repo ports.TallyRepository) ports.TallyService {
	return &tallyService{
		catalog: catalog,
		repo:    repo,
		now:     time.Now,
	}
}

func (s *tallyService) Tally(ctx context.Context, statementID uuid.UUID) (domain.Tally, error) {
	if err := ensureStatement(ctx, s.catalog, statementID); err != nil {
		return domain.Tally{}, err
	}
	return s.repo.Tally(ctx, statementID)
}

func (s *tallyService) DailySeries(ctx context.Context, statementID uuid.UUID, windowDays int) ([]domain.DailyBucket, error) {
	if windowDays == 0 {
		windowDays = domain.DefaultSeriesWindowDays
	}
	if windowDays < 1 || windowDays > domain.MaxSeriesWindowDays {
		return nil, domain.NewValidationError(domain.ErrInvalidWindow,
			fmt.Sprintf("window must be between 1 and %d days", domain.MaxSeriesWindowDays))
	}
	if err := ensureStatement(ctx, s.catalog, statementID); err != nil {
		return nil, err
	}

	since := domain.SeriesWindowStart(s.now(), windowDays)
	buckets, err := s.repo.DailySeries(ctx, statementID, since)
	if err != nil {
		return nil, err
	}

	// Guard against clock skew between the store and this process.
	if len(buckets) > windowDays {
		buckets = buckets[len(buckets)-windowDays:]
	}
	return buckets, nil
}
