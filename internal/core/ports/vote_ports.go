package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type VoteRepository interface {
	WriteVote(ctx context.Context, write domain.VoteWrite) (domain.WriteResult, error)
	GetVote(ctx context.Context, statementID uuid.UUID, key domain.DedupKey) (*domain.Vote, error)
	CountVotes(ctx context.Context, statementID uuid.UUID) (int64, error)
	// EraseAnonymous hard-deletes every anonymous vote for identityKey and
	// returns the statements that lost a vote.
	EraseAnonymous(ctx context.Context, identityKey string) ([]uuid.UUID, error)
}

type VoteInput struct {
	StatementID uuid.UUID
	Value       domain.Value
	Region      *string
	Caller      domain.Caller
}

type VoteOutput struct {
	domain.WriteResult
	Tally *domain.Tally `json:"tally,omitempty"`
}

type VoteService interface {
	Vote(ctx context.Context, input VoteInput) (*VoteOutput, error)
	EraseAnonymous(ctx context.Context, caller domain.Caller) (int, error)
}
