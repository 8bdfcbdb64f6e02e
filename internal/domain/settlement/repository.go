package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
)

// ErrOwnerChanged is returned when a conditional owner update matched no row.
var ErrOwnerChanged = errors.New("asset owner changed during settlement")

// Tx extends a conversation unit of work with the asset store and the settlement log.
type Tx interface {
	conversation.Tx
	AssetsForUpdate(ctx context.Context, refs []asset.Ref) (map[asset.Ref]*asset.Asset, error)
	ReassignOwner(ctx context.Context, ref asset.Ref, from, to string) error
	InsertRecord(ctx context.Context, r *Record) error
}

// Repository runs settlements and reads their records.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByConversation(ctx context.Context, conversationID uuid.UUID) (*Record, error)
}
