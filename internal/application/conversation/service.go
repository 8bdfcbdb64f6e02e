package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/application/broadcast"
	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

// Service is the conversation store used by the API: message log, proposal slot and deletion.
type Service struct {
	repo        conversation.Repository
	assets      asset.Repository
	broadcaster *broadcast.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo conversation.Repository, assets asset.Repository, broadcaster *broadcast.Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		assets:      assets,
		broadcaster: broadcaster,
		logger:      logger.With().Str("service", "conversation").Logger(),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func pairOf(party, other string) (conversation.Pair, error) {
	pair, err := conversation.NewPair(party, other)
	if err != nil {
		return conversation.Pair{}, fault.Validation("%s", err.Error())
	}
	return pair, nil
}

// List returns the party's conversations, most recent activity first.
func (s *Service) List(ctx context.Context, party string, limit, offset int) ([]*conversation.Conversation, error) {
	if err := conversation.ValidateParty(party); err != nil {
		return nil, fault.Validation("%s", err.Error())
	}
	return s.repo.ListByParty(ctx, party, limit, offset)
}

// Get returns the conversation of the pair, or an empty shape when none exists yet.
func (s *Service) Get(ctx context.Context, party, other string) (*conversation.Conversation, error) {
	pair, err := pairOf(party, other)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.FindByPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return conversation.Empty(pair), nil
	}
	return c, nil
}

// GetProposal returns the live proposal of the pair, or nil.
func (s *Service) GetProposal(ctx context.Context, party, other string) (*proposal.Proposal, error) {
	c, err := s.Get(ctx, party, other)
	if err != nil {
		return nil, err
	}
	return c.LastTradeProposal, nil
}

// AppendInput is a message posted by From to To.
type AppendInput struct {
	From    string
	To      string
	Kind    string
	Payload json.RawMessage
}

// Append adds a message to the pair's log, creating the conversation on first use.
// Proposal messages are routed through Propose so the live slot stays in step with the log.
func (s *Service) Append(ctx context.Context, in AppendInput) (*conversation.Message, error) {
	kind, err := conversation.ParseKind(in.Kind)
	if err != nil {
		return nil, fault.Validation("%s", err.Error())
	}

	switch kind {
	case conversation.KindSystem:
		return nil, fault.Validation("system messages cannot be posted by parties")
	case conversation.KindProposal:
		var p proposal.Proposal
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fault.Validation("proposal payload is malformed")
		}
		res, err := s.Propose(ctx, ProposeInput{From: in.From, To: in.To, Proposal: p})
		if err != nil {
			return nil, err
		}
		return res.Message, nil
	}

	pair, err := pairOf(in.From, in.To)
	if err != nil {
		return nil, err
	}
	text, err := conversation.ParseText(in.Payload)
	if err != nil {
		return nil, fault.Validation("%s", err.Error())
	}

	now := s.now()
	msg := conversation.NewTextMessage(in.From, text, now)
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx conversation.Tx) error {
		c, err := tx.Ensure(ctx, pair, now)
		if err != nil {
			return err
		}
		if err := c.CheckWritable(); err != nil {
			return err
		}
		msg.ConversationID = c.ID
		return tx.InsertMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	s.broadcaster.MessageAppended(ctx, pair, msg)
	return msg, nil
}

// ProposeInput submits a proposal from From to To.
type ProposeInput struct {
	From     string
	To       string
	Proposal proposal.Proposal
}

// ProposeResult is the live proposal after the submission and the log entry recording it.
type ProposeResult struct {
	Proposal *proposal.Proposal
	Message  *conversation.Message
	Outcome  proposal.Outcome
}

// Propose records a proposal message and upserts the live proposal slot in one unit of work.
func (s *Service) Propose(ctx context.Context, in ProposeInput) (*ProposeResult, error) {
	pair, err := pairOf(in.From, in.To)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssetsExist(ctx, in.Proposal.Refs()); err != nil {
		return nil, err
	}

	now := s.now()
	res := &ProposeResult{}
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx conversation.Tx) error {
		c, err := tx.Ensure(ctx, pair, now)
		if err != nil {
			return err
		}
		if err := c.CheckWritable(); err != nil {
			return err
		}

		merged, outcome, err := proposal.Merge(c.LastTradeProposal, in.Proposal, in.From, in.To, now)
		if err != nil {
			return fault.Validation("%s", err.Error())
		}
		msg, err := conversation.NewProposalMessage(in.From, merged, now)
		if err != nil {
			return err
		}
		msg.ConversationID = c.ID
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := tx.SaveProposal(ctx, c.ID, merged); err != nil {
			return err
		}
		res.Proposal, res.Message, res.Outcome = merged, msg, outcome
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("conversation_id", res.Message.ConversationID.String()).
		Str("proposal_id", res.Proposal.ID).
		Str("outcome", string(res.Outcome)).
		Msg("proposal recorded")
	s.broadcaster.MessageAppended(ctx, pair, res.Message)
	return res, nil
}

func (s *Service) checkAssetsExist(ctx context.Context, refs []asset.Ref) error {
	if s.assets == nil || len(refs) == 0 {
		return nil
	}
	for _, r := range refs {
		if err := r.Validate(); err != nil {
			return fault.Validation("%s", err.Error())
		}
	}
	found, err := s.assets.FindByRefs(ctx, refs)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if _, ok := found[r]; !ok {
			return fault.NotFound("asset %s not found", r)
		}
	}
	return nil
}

// Delete hard-deletes the pair's conversation. It reports false when none existed.
func (s *Service) Delete(ctx context.Context, party, other string) (bool, error) {
	pair, err := pairOf(party, other)
	if err != nil {
		return false, err
	}

	deleted := false
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx conversation.Tx) error {
		c, err := tx.FindForUpdate(ctx, pair)
		if err != nil || c == nil {
			return err
		}
		if err := tx.Delete(ctx, c.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil || !deleted {
		return false, err
	}

	s.logger.Info().Str("room", pair.Room()).Str("deleted_by", party).Msg("conversation deleted")
	s.broadcaster.ConversationDeleted(ctx, pair, party, s.now())
	return true, nil
}
