package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const (
	DefaultWriteAttempts = 3

	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

type voteRepository struct {
	db       *sql.DB
	attempts int
	metrics  ports.Metrics
}

func NewVoteRepository(db *sql.DB, attempts int, metrics ports.Metrics) ports.VoteRepository {
	if attempts <= 0 {
		attempts = DefaultWriteAttempts
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &voteRepository{
		db:       db,
		attempts: attempts,
		metrics:  metrics,
	}
}

// WriteVote upserts the caller's vote. A first insert that loses a race to
// another writer hits the kind's unique index and is retried as an update.
func (r *voteRepository) WriteVote(ctx context.Context, write domain.VoteWrite) (domain.WriteResult, error) {
	for attempt := 0; attempt < r.attempts; attempt++ {
		result, err := r.tryWrite(ctx, write)
		if err == nil {
			return result, nil
		}
		if !hasCode(err, uniqueViolation) {
			return domain.WriteResult{}, err
		}
		r.metrics.WriteConflictRetried()
	}
	return domain.WriteResult{}, fmt.Errorf("%w after %d attempts: %w", domain.ErrWriteFailed, r.attempts, domain.ErrWriteConflict)
}

func (r *voteRepository) tryWrite(ctx context.Context, write domain.VoteWrite) (domain.WriteResult, error) {
	key := write.Identity.DedupKey()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WriteResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	querySelect := `
		SELECT value
		FROM votes
		WHERE statement_id = $1 AND identity_key = $2 AND identity_kind = $3
		FOR UPDATE
	`
	var prev domain.Value
	err = tx.QueryRowContext(ctx, querySelect, write.StatementID, key.Key(), string(key.Kind())).Scan(&prev)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		queryInsert := `
			INSERT INTO votes (id, statement_id, identity_key, identity_kind, value, region)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err = tx.ExecContext(ctx, queryInsert,
			uuid.New(), write.StatementID, key.Key(), string(key.Kind()), string(write.Value), write.Region,
		)
		if err != nil {
			if hasCode(err, foreignKeyViolation) {
				return domain.WriteResult{}, domain.NewValidationError(domain.ErrStatementNotFound, write.StatementID.String())
			}
			return domain.WriteResult{}, fmt.Errorf("failed to insert vote: %w", err)
		}

	case err != nil:
		return domain.WriteResult{}, fmt.Errorf("failed to lock vote: %w", err)

	default:
		queryUpdate := `
			UPDATE votes
			SET value = $4, region = $5, updated_at = NOW()
			WHERE statement_id = $1 AND identity_key = $2 AND identity_kind = $3
		`
		_, err = tx.ExecContext(ctx, queryUpdate,
			write.StatementID, key.Key(), string(key.Kind()), string(write.Value), write.Region,
		)
		if err != nil {
			return domain.WriteResult{}, fmt.Errorf("failed to update vote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WriteResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result := domain.WriteResult{NewValue: write.Value}
	if prev != "" {
		result.PreviousValue = &prev
	}
	return result, nil
}

func (r *voteRepository) GetVote(ctx context.Context, statementID uuid.UUID, key domain.DedupKey) (*domain.Vote, error) {
	query := `
		SELECT statement_id, identity_key, identity_kind, value, region, created_at, updated_at
		FROM votes
		WHERE statement_id = $1 AND identity_key = $2 AND identity_kind = $3
	`
	var vote domain.Vote
	var region sql.NullString
	err := r.db.QueryRowContext(ctx, query, statementID, key.Key(), string(key.Kind())).Scan(
		&vote.StatementID, &vote.IdentityKey, &vote.IdentityKind, &vote.Value, &region, &vote.CreatedAt, &vote.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	if region.Valid {
		vote.Region = &region.String
	}
	return &vote, nil
}

func (r *voteRepository) CountVotes(ctx context.Context, statementID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE statement_id = $1`, statementID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return n, nil
}

func (r *voteRepository) EraseAnonymous(ctx context.Context, identityKey string) ([]uuid.UUID, error) {
	query := `
		DELETE FROM votes
		WHERE identity_kind = 'anonymous' AND identity_key = $1
		RETURNING statement_id
	`
	rows, err := r.db.QueryContext(ctx, query, identityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to erase anonymous votes: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan erased vote: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating erased votes: %w", err)
	}
	return ids, nil
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
