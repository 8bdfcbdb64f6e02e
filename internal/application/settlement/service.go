package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/application/broadcast"
	"github.com/trade-hub/trade-hub/internal/application/lock"
	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
	"github.com/trade-hub/trade-hub/internal/domain/settlement"
	"github.com/trade-hub/trade-hub/internal/metrics"
)

// Service executes accepted proposals as a single all-or-nothing transaction.
type Service struct {
	repo        settlement.Repository
	policy      *settlement.Policy
	signingKey  []byte
	broadcaster *broadcast.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo settlement.Repository, policy *settlement.Policy, signingKey []byte, broadcaster *broadcast.Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		policy:      policy,
		signingKey:  signingKey,
		broadcaster: broadcaster,
		logger:      logger.With().Str("service", "settlement").Logger(),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

type outcome struct {
	record       *settlement.Record
	pair         conversation.Pair
	announcement *conversation.Message
}

// Execute settles the live proposal of a conversation the actor takes part in.
func (s *Service) Execute(ctx context.Context, actor string, conversationID uuid.UUID) (*settlement.Record, error) {
	var out outcome
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx settlement.Tx) error {
		c, err := tx.FindByIDForUpdate(ctx, conversationID)
		if err != nil {
			return err
		}
		if c == nil || !c.Pair.Has(actor) {
			return fault.NotFound("conversation not found")
		}
		out, err = s.settle(ctx, tx, c, actor)
		return err
	})
	return s.finish(ctx, conversationID.String(), out, err)
}

// AcceptInput is the receiver's acceptance of the live proposal.
// Live assets, when given, are the receiver's current selection for both legs.
type AcceptInput struct {
	Actor              string
	Other              string
	ProposalID         string
	LiveProposerAssets []asset.Ref
	LiveReceiverAssets []asset.Ref
}

// AcceptAndSettle records the receiver's acceptance and settles in the same transaction, so a
// failed precondition leaves the proposal exactly as it was.
func (s *Service) AcceptAndSettle(ctx context.Context, in AcceptInput) (*settlement.Record, error) {
	pair, err := conversation.NewPair(in.Actor, in.Other)
	if err != nil {
		return nil, fault.Validation("%s", err.Error())
	}

	var out outcome
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx settlement.Tx) error {
		c, err := tx.FindForUpdate(ctx, pair)
		if err != nil {
			return err
		}
		if c == nil {
			return fault.NotFound("conversation not found")
		}
		if err := c.CheckWritable(); err != nil {
			return err
		}

		live := c.LastTradeProposal
		if live == nil {
			return fault.Validation("no trade proposal exists for this conversation")
		}
		if in.ProposalID != "" && in.ProposalID != live.ID {
			return fault.Validation("proposal %s has been superseded", in.ProposalID)
		}
		if in.LiveProposerAssets != nil || in.LiveReceiverAssets != nil {
			if proposal.IsModifiedByReceiver(live, in.LiveProposerAssets, in.LiveReceiverAssets) {
				return fault.Validation("proposal was modified since it was sent; wait for a new proposal")
			}
		}
		accepted, err := proposal.Accept(live, in.Actor)
		if err != nil {
			return fault.Validation("%s", err.Error())
		}
		if err := tx.SaveProposal(ctx, c.ID, accepted); err != nil {
			return err
		}
		c.LastTradeProposal = accepted

		out, err = s.settle(ctx, tx, c, in.Actor)
		return err
	})
	return s.finish(ctx, pair.Room(), out, err)
}

// settle checks the preconditions in order and then runs the atomic phase.
func (s *Service) settle(ctx context.Context, tx settlement.Tx, c *conversation.Conversation, actor string) (outcome, error) {
	if err := c.CheckWritable(); err != nil {
		return outcome{}, err
	}
	p, err := settlement.CheckProposal(c)
	if err != nil {
		return outcome{}, err
	}
	if err := s.policy.Check(p); err != nil {
		return outcome{}, err
	}
	assets, err := tx.AssetsForUpdate(ctx, p.Refs())
	if err != nil {
		return outcome{}, fault.Aborted(err)
	}
	if err := settlement.CheckAssets(p, assets); err != nil {
		return outcome{}, err
	}

	now := s.now()
	rec := settlement.NewRecord(c.ID, p, assets, now)
	if len(s.signingKey) > 0 {
		sig, err := settlement.Sign(rec, s.signingKey)
		if err != nil {
			return outcome{}, fault.Aborted(err)
		}
		rec.Signature = sig
	}

	if err := tx.InsertRecord(ctx, rec); err != nil {
		return outcome{}, fault.Aborted(err)
	}
	for _, t := range settlement.Transfers(p) {
		if err := tx.ReassignOwner(ctx, t.Ref, t.From, t.To); err != nil {
			if errors.Is(err, settlement.ErrOwnerChanged) {
				return outcome{}, fault.Ownership(t.Ref, "asset %s is no longer owned by %s", t.Ref, t.From)
			}
			return outcome{}, fault.Aborted(err)
		}
	}
	res, err := lock.Apply(ctx, tx, c, conversation.LockReasonAccepted, actor, &rec.ID, now)
	if err != nil {
		return outcome{}, fault.Aborted(err)
	}
	return outcome{record: rec, pair: c.Pair, announcement: res.Announcement}, nil
}

func (s *Service) finish(ctx context.Context, target string, out outcome, err error) (*settlement.Record, error) {
	if err != nil {
		kind := fault.KindOf(err)
		metrics.SettlementsTotal.WithLabelValues(settlementLabel(kind)).Inc()
		evt := s.logger.Warn()
		if kind == fault.KindAborted || kind == "" {
			evt = s.logger.Error()
		}
		evt.Err(err).Str("target", target).Msg("settlement not executed")
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues("executed").Inc()
	s.logger.Info().
		Str("settlement_id", out.record.ID.String()).
		Str("conversation_id", out.record.ConversationID.String()).
		Int("assets", len(out.record.Proposer.Assets)+len(out.record.Receiver.Assets)).
		Msg("trade executed")
	s.broadcaster.MessageAppended(ctx, out.pair, out.announcement)
	return out.record, nil
}

func settlementLabel(kind fault.Kind) string {
	if kind == "" {
		return "error"
	}
	return string(kind)
}

// Get returns a settlement record visible to party.
func (s *Service) Get(ctx context.Context, party string, id uuid.UUID) (*settlement.Record, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || (rec.Proposer.Party != party && rec.Receiver.Party != party) {
		return nil, fault.NotFound("settlement not found")
	}
	return rec, nil
}

// ForConversation returns the settlement of a conversation party takes part in.
func (s *Service) ForConversation(ctx context.Context, party string, conversationID uuid.UUID) (*settlement.Record, error) {
	rec, err := s.repo.FindByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if rec == nil || (rec.Proposer.Party != party && rec.Receiver.Party != party) {
		return nil, fault.NotFound("settlement not found")
	}
	return rec, nil
}

// VerifyRecord checks a record signature with the configured key.
func (s *Service) VerifyRecord(rec *settlement.Record) (bool, error) {
	if len(s.signingKey) == 0 {
		return false, nil
	}
	return settlement.VerifySignature(rec, s.signingKey)
}
