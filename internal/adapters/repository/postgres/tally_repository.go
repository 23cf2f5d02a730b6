package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type tallyRepository struct {
	db *sql.DB
}

func NewTallyRepository(db *sql.DB) ports.TallyRepository {
	return &tallyRepository{
		db: db,
	}
}

func (r *tallyRepository) Tally(ctx context.Context, statementID uuid.UUID) (domain.Tally, error) {
	query := `
		SELECT value, COUNT(*)
		FROM votes
		WHERE statement_id = $1
		GROUP BY value
	`
	rows, err := r.db.QueryContext(ctx, query, statementID)
	if err != nil {
		return domain.Tally{}, fmt.Errorf("failed to fetch tally: %w", err)
	}
	defer rows.Close()

	tally := domain.NewTally(statementID)
	for rows.Next() {
		var value domain.Value
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return domain.Tally{}, fmt.Errorf("failed to scan tally: %w", err)
		}
		tally.Add(value, count)
	}
	if err := rows.Err(); err != nil {
		return domain.Tally{}, fmt.Errorf("error iterating tally: %w", err)
	}

	return tally, nil
}

// DailySeries buckets by integer epoch day of updated_at, which is a UTC
// day and not the caller's calendar day.
func (r *tallyRepository) DailySeries(ctx context.Context, statementID uuid.UUID, since time.Time) ([]domain.DailyBucket, error) {
	query := `
		SELECT FLOOR(EXTRACT(EPOCH FROM updated_at) / 86400)::BIGINT AS epoch_day, value, COUNT(*)
		FROM votes
		WHERE statement_id = $1 AND updated_at >= $2
		GROUP BY epoch_day, value
		ORDER BY epoch_day ASC
	`
	rows, err := r.db.QueryContext(ctx, query, statementID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily series: %w", err)
	}
	defer rows.Close()

	var buckets []domain.DailyBucket
	for rows.Next() {
		var day, count int64
		var value domain.Value
		if err := rows.Scan(&day, &value, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily series: %w", err)
		}

		start := domain.DayStart(day)
		if n := len(buckets); n == 0 || !buckets[n-1].Day.Equal(start) {
			buckets = append(buckets, domain.DailyBucket{
				StatementID: statementID,
				Day:         start,
				Counts:      make(map[domain.Value]int64),
			})
		}
		b := &buckets[len(buckets)-1]
		b.Counts[value] += count
		b.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily series: %w", err)
	}

	return buckets, nil
}
