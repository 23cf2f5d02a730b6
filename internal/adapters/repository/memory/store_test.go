package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

func TestStoreWriteVote(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	statement := uuid.New()
	s.AddStatement(statement)

	auth := domain.Identity{Key: "k", Kind: domain.IdentityAuthenticated}
	anon := domain.Identity{Key: "k", Kind: domain.IdentityAnonymous}

	res, err := s.WriteVote(ctx, domain.VoteWrite{StatementID: statement, Identity: auth, Value: domain.ValueAgree})
	require.NoError(t, err)
	assert.Nil(t, res.PreviousValue)

	res, err = s.WriteVote(ctx, domain.VoteWrite{StatementID: statement, Identity: anon, Value: domain.ValueNeutral})
	require.NoError(t, err)
	assert.Nil(t, res.PreviousValue, "kinds are separate keyspaces")

	res, err = s.WriteVote(ctx, domain.VoteWrite{StatementID: statement, Identity: auth, Value: domain.ValueDisagree})
	require.NoError(t, err)
	require.NotNil(t, res.PreviousValue)
	assert.Equal(t, domain.ValueAgree, *res.PreviousValue)

	n, err := s.CountVotes(ctx, statement)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	tally, err := s.Tally(ctx, statement)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tally.Total)
	assert.Equal(t, int64(0), tally.Counts[domain.ValueAgree])
	assert.Equal(t, int64(1), tally.Counts[domain.ValueDisagree])
	assert.Equal(t, int64(1), tally.Counts[domain.ValueNeutral])

	_, err = s.WriteVote(ctx, domain.VoteWrite{StatementID: uuid.New(), Identity: auth, Value: domain.ValueAgree})
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)
}

func TestStoreGetVoteReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	statement := uuid.New()
	s.AddStatement(statement)
	region := "br"
	identity := domain.Identity{Key: "k", Kind: domain.IdentityAnonymous}

	_, err := s.WriteVote(ctx, domain.VoteWrite{StatementID: statement, Identity: identity, Value: domain.ValueAgree, Region: &region})
	require.NoError(t, err)

	v, err := s.GetVote(ctx, statement, identity.DedupKey())
	require.NoError(t, err)
	*v.Region = "changed"
	v.Value = domain.ValueNeutral

	again, err := s.GetVote(ctx, statement, identity.DedupKey())
	require.NoError(t, err)
	assert.Equal(t, "br", *again.Region)
	assert.Equal(t, domain.ValueAgree, again.Value)

	missing, err := s.GetVote(ctx, statement, domain.AuthenticatedKey{IdentityKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreEraseAnonymous(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()
	s.AddStatement(first)
	s.AddStatement(second)

	for _, id := range []uuid.UUID{first, second} {
		_, err := s.WriteVote(ctx, domain.VoteWrite{StatementID: id, Identity: domain.Identity{Key: "anon", Kind: domain.IdentityAnonymous}, Value: domain.ValueAgree})
		require.NoError(t, err)
	}
	_, err := s.WriteVote(ctx, domain.VoteWrite{StatementID: first, Identity: domain.Identity{Key: "anon", Kind: domain.IdentityAuthenticated}, Value: domain.ValueAgree})
	require.NoError(t, err)

	erased, err := s.EraseAnonymous(ctx, "anon")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{first, second}, erased)

	n, _ := s.CountVotes(ctx, first)
	assert.Equal(t, int64(1), n)
	n, _ = s.CountVotes(ctx, second)
	assert.Zero(t, n)
}
