package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/application/broadcast"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
)

// Result reports the lock state after a lock request.
type Result struct {
	ConversationID uuid.UUID               `json:"conversationId"`
	IsLocked       bool                    `json:"isLocked"`
	LockedReason   conversation.LockReason `json:"lockedReason"`
	LockedAt       *time.Time              `json:"lockedAt,omitempty"`
	Changed        bool                    `json:"changed"`
	Announcement   *conversation.Message   `json:"-"`
}

// Apply moves c to Locked(reason) inside an open unit of work. A conversation that is already
// locked keeps its first reason and nothing is written.
func Apply(ctx context.Context, tx conversation.Tx, c *conversation.Conversation, reason conversation.LockReason, actor string, settlementID *uuid.UUID, now time.Time) (*Result, error) {
	if !c.ShouldLock(reason) {
		return resultOf(c, false, nil), nil
	}

	msg := conversation.NewLockMessage(reason, actor, settlementID, now)
	msg.ConversationID = c.ID
	if err := tx.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append lock announcement: %w", err)
	}
	if err := tx.MarkLocked(ctx, c.ID, reason, now); err != nil {
		return nil, fmt.Errorf("mark conversation locked: %w", err)
	}
	c.ApplyLock(reason, now)
	return resultOf(c, true, msg), nil
}

func resultOf(c *conversation.Conversation, changed bool, msg *conversation.Message) *Result {
	return &Result{
		ConversationID: c.ID,
		IsLocked:       c.IsLocked,
		LockedReason:   c.LockedReason,
		LockedAt:       c.LockedAt,
		Changed:        changed,
		Announcement:   msg,
	}
}

// Service is the lock manager of conversations.
type Service struct {
	repo        conversation.Repository
	broadcaster *broadcast.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo conversation.Repository, broadcaster *broadcast.Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger.With().Str("service", "lock").Logger(),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Lock freezes the conversation between actor and other. Repeated calls are no-ops.
func (s *Service) Lock(ctx context.Context, actor, other string, reason conversation.LockReason) (*Result, error) {
	if _, err := conversation.ParseLockReason(string(reason)); err != nil {
		return nil, fault.Validation("%s", err.Error())
	}
	pair, err := conversation.NewPair(actor, other)
	if err != nil {
		return nil, fault.Validation("%s", err.Error())
	}

	var res *Result
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx conversation.Tx) error {
		c, err := tx.FindForUpdate(ctx, pair)
		if err != nil {
			return err
		}
		if c == nil {
			return fault.NotFound("conversation not found")
		}
		res, err = Apply(ctx, tx, c, reason, actor, nil, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		s.logger.Info().
			Str("conversation_id", res.ConversationID.String()).
			Str("reason", string(reason)).
			Str("actor", actor).
			Msg("conversation locked")
		s.broadcaster.MessageAppended(ctx, pair, res.Announcement)
	}
	return res, nil
}
