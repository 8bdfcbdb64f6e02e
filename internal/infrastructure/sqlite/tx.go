package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
	"github.com/trade-hub/trade-hub/internal/domain/settlement"
)

// txStore implements settlement.Tx over an immediate transaction, which already holds the
// write lock, so the ForUpdate lookups are plain reads.
type txStore struct {
	q querier
}

func (t *txStore) FindForUpdate(ctx context.Context, pair conversation.Pair) (*conversation.Conversation, error) {
	return findConversation(ctx, t.q, `WHERE party_a = ? AND party_b = ?`, pair.A, pair.B)
}

func (t *txStore) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	return findConversation(ctx, t.q, `WHERE conversation_id = ?`, id.String())
}

func (t *txStore) Ensure(ctx context.Context, pair conversation.Pair, now time.Time) (*conversation.Conversation, error) {
	fresh := conversation.New(pair, now)
	if _, err := t.q.ExecContext(ctx, `
INSERT OR IGNORE INTO conversations (conversation_id, party_a, party_b, created_at)
VALUES (?, ?, ?, ?)
`, fresh.ID.String(), pair.A, pair.B, toMillis(fresh.CreatedAt)); err != nil {
		return nil, err
	}
	return t.FindForUpdate(ctx, pair)
}

func (t *txStore) InsertMessage(ctx context.Context, msg *conversation.Message) error {
	res, err := t.q.ExecContext(ctx, `
INSERT INTO conversation_messages (message_id, conversation_id, from_party, kind, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, msg.ID.String(), msg.ConversationID.String(), msg.FromParty, string(msg.Kind), string(msg.Payload), toMillis(msg.CreatedAt))
	if err != nil {
		return err
	}
	if msg.Seq, err = res.LastInsertId(); err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
UPDATE conversations SET last_message_at = ? WHERE conversation_id = ?
`, toMillis(msg.CreatedAt), msg.ConversationID.String())
	return err
}

func (t *txStore) SaveProposal(ctx context.Context, conversationID uuid.UUID, p *proposal.Proposal) error {
	var data sql.NullString
	if p != nil {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
UPDATE conversations SET last_trade_proposal = ? WHERE conversation_id = ?
`, data, conversationID.String())
	return err
}

func (t *txStore) MarkLocked(ctx context.Context, conversationID uuid.UUID, reason conversation.LockReason, at time.Time) error {
	_, err := t.q.ExecContext(ctx, `
UPDATE conversations
SET is_locked = 1, locked_reason = ?, locked_at = ?
WHERE conversation_id = ? AND is_locked = 0
`, string(reason), toMillis(at), conversationID.String())
	return err
}

func (t *txStore) Delete(ctx context.Context, conversationID uuid.UUID) error {
	_, err := t.q.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, conversationID.String())
	return err
}

func (t *txStore) AssetsForUpdate(ctx context.Context, refs []asset.Ref) (map[asset.Ref]*asset.Asset, error) {
	return findAssets(ctx, t.q, refs)
}

func (t *txStore) ReassignOwner(ctx context.Context, ref asset.Ref, from, to string) error {
	res, err := t.q.ExecContext(ctx, `
UPDATE assets SET owner = ?, updated_at = ?
WHERE asset_kind = ? AND asset_id = ? AND owner = ?
`, to, toMillis(time.Now()), ref.Kind, ref.ID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrOwnerChanged
	}
	return nil
}

func (t *txStore) InsertRecord(ctx context.Context, r *settlement.Record) error {
	proposer, err := json.Marshal(r.Proposer)
	if err != nil {
		return err
	}
	receiver, err := json.Marshal(r.Receiver)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
INSERT INTO settlement_records
(settlement_id, conversation_id, proposal_id, proposer, receiver, status, signature, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, r.ID.String(), r.ConversationID.String(), r.ProposalID, string(proposer), string(receiver), string(r.Status), r.Signature, toMillis(r.CreatedAt))
	return err
}
