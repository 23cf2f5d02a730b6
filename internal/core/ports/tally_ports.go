package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type TallyRepository interface {
	Tally(ctx context.Context, statementID uuid.UUID) (domain.Tally, error)
	// DailySeries returns buckets for records updated at or after since.
	DailySeries(ctx context.Context, statementID uuid.UUID, since time.Time) ([]domain.DailyBucket, error)
}

// TallyInvalidator is implemented by cached tally repositories.
type TallyInvalidator interface {
	Invalidate(statementID uuid.UUID)
}

type TallyService interface {
	Tally(ctx context.Context, statementID uuid.UUID) (domain.Tally, error)
	DailySeries(ctx context.Context, statementID uuid.UUID, windowDays int) ([]domain.DailyBucket, error)
}
