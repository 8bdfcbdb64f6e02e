package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/settlement"
)

const settlementColumns = `settlement_id, conversation_id, proposal_id, proposer, receiver, status, signature, created_at`

// SettlementRepository implements settlement.Repository.
type SettlementRepository struct {
	store *Store
}

func (r *SettlementRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx settlement.Tx) error) error {
	return r.store.withinTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

func (r *SettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Record, error) {
	row := r.store.db.QueryRowContext(ctx, `
SELECT `+settlementColumns+` FROM settlement_records WHERE settlement_id = ?
`, id.String())
	return scanRecord(row)
}

func (r *SettlementRepository) FindByConversation(ctx context.Context, conversationID uuid.UUID) (*settlement.Record, error) {
	row := r.store.db.QueryRowContext(ctx, `
SELECT `+settlementColumns+` FROM settlement_records
WHERE conversation_id = ?
ORDER BY created_at DESC
LIMIT 1
`, conversationID.String())
	return scanRecord(row)
}

func scanRecord(row rowScanner) (*settlement.Record, error) {
	var (
		rec                settlement.Record
		id, convID, status string
		proposer, receiver string
		createdAt          int64
	)
	err := row.Scan(&id, &convID, &rec.ProposalID, &proposer, &receiver, &status, &rec.Signature, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settlement record: %w", err)
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.ConversationID, err = uuid.Parse(convID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(proposer), &rec.Proposer); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(receiver), &rec.Receiver); err != nil {
		return nil, err
	}
	rec.Status = settlement.Status(status)
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}
