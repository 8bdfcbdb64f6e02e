package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trade-hub/trade-hub/internal/domain/settlement"
)

// SettlementRepository implements settlement.Repository.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

func (r *SettlementRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx settlement.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

func (r *SettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*settlement.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT settlement_id, conversation_id, proposal_id, proposer, receiver, status, signature, created_at
		FROM settlement_records
		WHERE settlement_id=$1
	`, id)
	return scanSettlementRecord(row)
}

func (r *SettlementRepository) FindByConversation(ctx context.Context, conversationID uuid.UUID) (*settlement.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT settlement_id, conversation_id, proposal_id, proposer, receiver, status, signature, created_at
		FROM settlement_records
		WHERE conversation_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID)
	return scanSettlementRecord(row)
}

func scanSettlementRecord(row pgx.Row) (*settlement.Record, error) {
	var rec settlement.Record
	var proposer, receiver []byte
	if err := row.Scan(&rec.ID, &rec.ConversationID, &rec.ProposalID, &proposer, &receiver, &rec.Status, &rec.Signature, &rec.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(proposer, &rec.Proposer); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(receiver, &rec.Receiver); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
