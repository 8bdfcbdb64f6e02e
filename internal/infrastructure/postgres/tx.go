package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
	"github.com/trade-hub/trade-hub/internal/domain/settlement"
)

// txStore implements settlement.Tx, and therefore conversation.Tx, over an open transaction.
// Lookups take row locks that are held until commit.
type txStore struct {
	q querier
}

func (t *txStore) FindForUpdate(ctx context.Context, pair conversation.Pair) (*conversation.Conversation, error) {
	return findConversation(ctx, t.q, `WHERE party_a=$1 AND party_b=$2 FOR UPDATE`, pair.A, pair.B)
}

func (t *txStore) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	return findConversation(ctx, t.q, `WHERE conversation_id=$1 FOR UPDATE`, id)
}

func (t *txStore) Ensure(ctx context.Context, pair conversation.Pair, now time.Time) (*conversation.Conversation, error) {
	fresh := conversation.New(pair, now)
	_, err := t.q.Exec(ctx, `
		INSERT INTO conversations (conversation_id, party_a, party_b, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (party_a, party_b) DO NOTHING
	`, fresh.ID, pair.A, pair.B, fresh.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t.FindForUpdate(ctx, pair)
}

func (t *txStore) InsertMessage(ctx context.Context, msg *conversation.Message) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO conversation_messages (message_id, conversation_id, from_party, kind, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, msg.ID, msg.ConversationID, msg.FromParty, string(msg.Kind), []byte(msg.Payload), msg.CreatedAt).Scan(&msg.Seq)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		UPDATE conversations SET last_message_at=$1 WHERE conversation_id=$2
	`, msg.CreatedAt, msg.ConversationID)
	return err
}

func (t *txStore) SaveProposal(ctx context.Context, conversationID uuid.UUID, p *proposal.Proposal) error {
	var data []byte
	if p != nil {
		var err error
		if data, err = json.Marshal(p); err != nil {
			return err
		}
	}
	_, err := t.q.Exec(ctx, `
		UPDATE conversations SET last_trade_proposal=$1 WHERE conversation_id=$2
	`, data, conversationID)
	return err
}

func (t *txStore) MarkLocked(ctx context.Context, conversationID uuid.UUID, reason conversation.LockReason, at time.Time) error {
	_, err := t.q.Exec(ctx, `
		UPDATE conversations
		SET is_locked=TRUE, locked_reason=$1, locked_at=$2
		WHERE conversation_id=$3 AND is_locked=FALSE
	`, string(reason), at, conversationID)
	return err
}

func (t *txStore) Delete(ctx context.Context, conversationID uuid.UUID) error {
	_, err := t.q.Exec(ctx, `DELETE FROM conversations WHERE conversation_id=$1`, conversationID)
	return err
}

func (t *txStore) AssetsForUpdate(ctx context.Context, refs []asset.Ref) (map[asset.Ref]*asset.Asset, error) {
	return findAssets(ctx, t.q, refs, true)
}

func (t *txStore) ReassignOwner(ctx context.Context, ref asset.Ref, from, to string) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE assets SET owner=$1, updated_at=now()
		WHERE asset_kind=$2 AND asset_id=$3 AND owner=$4
	`, to, ref.Kind, ref.ID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
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
	_, err = t.q.Exec(ctx, `
		INSERT INTO settlement_records
		(settlement_id, conversation_id, proposal_id, proposer, receiver, status, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, r.ID, r.ConversationID, r.ProposalID, proposer, receiver, string(r.Status), r.Signature, r.CreatedAt)
	return err
}
