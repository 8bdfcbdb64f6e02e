package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

const conversationColumns = `conversation_id, party_a, party_b, is_locked, locked_reason, locked_at, last_trade_proposal, last_message_at, created_at`

// ConversationRepository implements conversation.Repository.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func (r *ConversationRepository) FindByPair(ctx context.Context, pair conversation.Pair) (*conversation.Conversation, error) {
	return findConversation(ctx, r.pool, `WHERE party_a=$1 AND party_b=$2`, pair.A, pair.B)
}

func (r *ConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	return findConversation(ctx, r.pool, `WHERE conversation_id=$1`, id)
}

func (r *ConversationRepository) ListByParty(ctx context.Context, party string, limit, offset int) ([]*conversation.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE party_a=$1 OR party_b=$1
		ORDER BY COALESCE(last_message_at, created_at) DESC, conversation_id
		LIMIT $2 OFFSET $3
	`, party, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *ConversationRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx conversation.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

// findConversation loads one conversation and its message log.
func findConversation(ctx context.Context, q querier, where string, args ...any) (*conversation.Conversation, error) {
	row := q.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations `+where, args...)
	c, err := scanConversation(row)
	if err != nil || c == nil {
		return c, err
	}
	if c.Messages, err = listMessages(ctx, q, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func listMessages(ctx context.Context, q querier, conversationID uuid.UUID) ([]*conversation.Message, error) {
	rows, err := q.Query(ctx, `
		SELECT id, message_id, conversation_id, from_party, kind, payload, created_at
		FROM conversation_messages
		WHERE conversation_id=$1
		ORDER BY id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*conversation.Message, 0)
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.FromParty, &m.Kind, &m.Payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		items = append(items, &m)
	}
	return items, rows.Err()
}

func scanConversation(row pgx.Row) (*conversation.Conversation, error) {
	var c conversation.Conversation
	var reason *string
	var proposalData []byte
	if err := row.Scan(&c.ID, &c.Pair.A, &c.Pair.B, &c.IsLocked, &reason, &c.LockedAt, &proposalData, &c.LastMessageAt, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if reason != nil {
		c.LockedReason = conversation.LockReason(*reason)
	}
	if len(proposalData) > 0 {
		var p proposal.Proposal
		if err := json.Unmarshal(proposalData, &p); err != nil {
			return nil, err
		}
		c.LastTradeProposal = &p
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.LockedAt = utcPtr(c.LockedAt)
	c.LastMessageAt = utcPtr(c.LastMessageAt)
	c.Messages = []*conversation.Message{}
	return &c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
