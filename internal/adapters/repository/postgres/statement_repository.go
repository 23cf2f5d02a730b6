package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type statementRepository struct {
	db *sql.DB
}

func NewStatementRepository(db *sql.DB) ports.StatementCatalog {
	return &statementRepository{
		db: db,
	}
}

func (r *statementRepository) Exists(ctx context.Context, statementID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM statements WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, statementID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check statement: %w", err)
	}
	return exists, nil
}
