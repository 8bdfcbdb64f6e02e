package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

const conversationColumns = `conversation_id, party_a, party_b, is_locked, locked_reason, locked_at, last_trade_proposal, last_message_at, created_at`

// ConversationRepository implements conversation.Repository.
type ConversationRepository struct {
	store *Store
}

func (r *ConversationRepository) FindByPair(ctx context.Context, pair conversation.Pair) (*conversation.Conversation, error) {
	return findConversation(ctx, r.store.db, `WHERE party_a = ? AND party_b = ?`, pair.A, pair.B)
}

func (r *ConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	return findConversation(ctx, r.store.db, `WHERE conversation_id = ?`, id.String())
}

func (r *ConversationRepository) ListByParty(ctx context.Context, party string, limit, offset int) ([]*conversation.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.store.db.QueryContext(ctx, `
SELECT `+conversationColumns+`
FROM conversations
WHERE party_a = ? OR party_b = ?
ORDER BY COALESCE(last_message_at, created_at) DESC, conversation_id
LIMIT ? OFFSET ?
`, party, party, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
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
	return r.store.withinTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func findConversation(ctx context.Context, q querier, where string, args ...any) (*conversation.Conversation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations `+where, args...)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Messages, err = listMessages(ctx, q, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func listMessages(ctx context.Context, q querier, conversationID uuid.UUID) ([]*conversation.Message, error) {
	rows, err := q.QueryContext(ctx, `
SELECT seq, message_id, conversation_id, from_party, kind, payload, created_at
FROM conversation_messages
WHERE conversation_id = ?
ORDER BY seq
`, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]*conversation.Message, 0)
	for rows.Next() {
		var (
			m              conversation.Message
			id, convID     string
			kind, payload  string
			createdAtMilli int64
		)
		if err := rows.Scan(&m.Seq, &id, &convID, &m.FromParty, &kind, &payload, &createdAtMilli); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if m.ConversationID, err = uuid.Parse(convID); err != nil {
			return nil, err
		}
		m.Kind = conversation.Kind(kind)
		m.Payload = json.RawMessage(payload)
		m.CreatedAt = fromMillis(createdAtMilli)
		items = append(items, &m)
	}
	return items, rows.Err()
}

func scanConversation(row rowScanner) (*conversation.Conversation, error) {
	var (
		c             conversation.Conversation
		id            string
		locked        int64
		reason        sql.NullString
		lockedAt      sql.NullInt64
		proposalData  sql.NullString
		lastMessageAt sql.NullInt64
		createdAt     int64
	)
	if err := row.Scan(&id, &c.Pair.A, &c.Pair.B, &locked, &reason, &lockedAt, &proposalData, &lastMessageAt, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	c.IsLocked = locked != 0
	if reason.Valid {
		c.LockedReason = conversation.LockReason(reason.String)
	}
	c.LockedAt = fromNullMillis(lockedAt)
	c.LastMessageAt = fromNullMillis(lastMessageAt)
	c.CreatedAt = fromMillis(createdAt)
	if proposalData.Valid && proposalData.String != "" {
		var p proposal.Proposal
		if err := json.Unmarshal([]byte(proposalData.String), &p); err != nil {
			return nil, fmt.Errorf("decode trade proposal: %w", err)
		}
		c.LastTradeProposal = &p
	}
	c.Messages = []*conversation.Message{}
	return &c, nil
}
