package ports

import (
	"context"

	"github.com/google/uuid"
)

// StatementCatalog is the read side of the external statement owner.
type StatementCatalog interface {
	Exists(ctx context.Context, statementID uuid.UUID) (bool, error)
}
