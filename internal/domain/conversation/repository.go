package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

// Tx is a unit of work over conversations. Rows returned by the lookup methods stay locked
// until the unit of work ends, so lock checks and mutations cannot interleave.
type Tx interface {
	FindForUpdate(ctx context.Context, pair Pair) (*Conversation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Conversation, error)
	Ensure(ctx context.Context, pair Pair, now time.Time) (*Conversation, error)
	InsertMessage(ctx context.Context, msg *Message) error
	SaveProposal(ctx context.Context, conversationID uuid.UUID, p *proposal.Proposal) error
	MarkLocked(ctx context.Context, conversationID uuid.UUID, reason LockReason, at time.Time) error
	Delete(ctx context.Context, conversationID uuid.UUID) error
}

// Repository defines persistence for conversations.
type Repository interface {
	FindByPair(ctx context.Context, pair Pair) (*Conversation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListByParty(ctx context.Context, party string, limit, offset int) ([]*Conversation, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
