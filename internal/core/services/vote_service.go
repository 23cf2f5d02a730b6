package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const (
	maxRegionLength = 64
	publishTimeout  = 5 * time.Second
	publishStripes  = 64
)

type voteService struct {
	catalog   ports.StatementCatalog
	resolver  ports.IdentityResolver
	voteRepo  ports.VoteRepository
	tallyRepo ports.TallyRepository
	broker    ports.Broker
	metrics   ports.Metrics
	log       *zap.Logger

	// Tally read and publish happen under the statement's stripe so that
	// messages on one topic leave in the order their snapshots were taken.
	publishMu [publishStripes]sync.Mutex
}

func NewVoteService(
	catalog ports.StatementCatalog,
	resolver ports.IdentityResolver,
	voteRepo ports.VoteRepository,
	tallyRepo ports.TallyRepository,
	broker ports.Broker,
	metrics ports.Metrics,
	log *zap.Logger,
) ports.VoteService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &voteService{
		catalog:   catalog,
		resolver:  resolver,
		voteRepo:  voteRepo,
		tallyRepo: tallyRepo,
		broker:    broker,
		metrics:   metrics,
		log:       log,
	}
}

func (s *voteService) Vote(ctx context.Context, input ports.VoteInput) (*ports.VoteOutput, error) {
	if !input.Value.Valid() {
		return nil, domain.NewValidationError(domain.ErrUnsupportedValue, string(input.Value))
	}

	region, err := normalizeRegion(input.Region)
	if err != nil {
		return nil, err
	}

	if err := ensureStatement(ctx, s.catalog, input.StatementID); err != nil {
		return nil, err
	}

	identity, err := s.resolver.Resolve(input.Caller)
	if err != nil {
		return nil, err
	}

	result, err := s.voteRepo.WriteVote(ctx, domain.VoteWrite{
		StatementID: input.StatementID,
		Identity:    identity,
		Value:       input.Value,
		Region:      region,
	})
	if err != nil {
		s.metrics.VoteWritten(identity.Kind, "failed")
		return nil, err
	}

	outcome := "updated"
	if result.PreviousValue == nil {
		outcome = "created"
	}
	s.metrics.VoteWritten(identity.Kind, outcome)

	// The vote is durable from here on; nothing below may fail the call.
	tally := s.notify(ctx, input.StatementID, domain.EventVote)

	return &ports.VoteOutput{WriteResult: result, Tally: tally}, nil
}

func (s *voteService) EraseAnonymous(ctx context.Context, caller domain.Caller) (int, error) {
	identity, err := s.resolver.Resolve(domain.Caller{
		NetworkAddress:  caller.NetworkAddress,
		ClientSignature: caller.ClientSignature,
	})
	if err != nil {
		return 0, err
	}

	statementIDs, err := s.voteRepo.EraseAnonymous(ctx, identity.Key)
	if err != nil {
		return 0, err
	}

	for _, id := range statementIDs {
		s.notify(ctx, id, domain.EventErase)
	}

	s.log.Info("anonymous votes erased", zap.Int("statements", len(statementIDs)))
	return len(statementIDs), nil
}

func ensureStatement(ctx context.Context, catalog ports.StatementCatalog, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError(domain.ErrInvalidStatementID, "")
	}
	exists, err := catalog.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up statement: %w", err)
	}
	if !exists {
		return domain.NewValidationError(domain.ErrStatementNotFound, id.String())
	}
	return nil
}

// notify refreshes the tally for statementID and publishes it exactly once.
// Failures are logged and swallowed.
func (s *voteService) notify(ctx context.Context, statementID uuid.UUID, kind domain.EventKind) *domain.Tally {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if inv, ok := s.tallyRepo.(ports.TallyInvalidator); ok {
		inv.Invalidate(statementID)
	}

	mu := &s.publishMu[stripe(statementID)]
	mu.Lock()
	defer mu.Unlock()

	msg := domain.FanoutMessage{Kind: kind}
	var out *domain.Tally

	tally, err := s.tallyRepo.Tally(ctx, statementID)
	if err != nil {
		s.log.Warn("failed to read tally after write",
			zap.Stringer("statement_id", statementID),
			zap.Error(err),
		)
		msg.Kind = domain.EventResync
		msg.Tally = domain.Tally{StatementID: statementID}
	} else {
		msg.Tally = tally
		out = &tally
	}

	if err := s.broker.Publish(ctx, domain.TopicFor(statementID), msg); err != nil {
		s.metrics.PublishFailed()
		s.log.Warn("failed to publish vote event",
			zap.Stringer("statement_id", statementID),
			zap.String("kind", string(msg.Kind)),
			zap.Error(errors.Join(domain.ErrBrokerUnavailable, err)),
		)
	}

	return out
}

func normalizeRegion(region *string) (*string, error) {
	if region == nil {
		return nil, nil
	}
	r := strings.TrimSpace(*region)
	if r == "" {
		return nil, nil
	}
	if len(r) > maxRegionLength {
		return nil, domain.NewValidationError(domain.ErrValidation, "region is too long")
	}
	return &r, nil
}

func stripe(id uuid.UUID) int {
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % publishStripes)
}
