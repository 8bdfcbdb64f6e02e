package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/infrastructure/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "lock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedConversation(t *testing.T, repo conversation.Repository, a, b string) conversation.Pair {
	t.Helper()
	pair, err := conversation.NewPair(a, b)
	require.NoError(t, err)
	err = repo.WithinTx(context.Background(), func(ctx context.Context, tx conversation.Tx) error {
		c, err := tx.Ensure(ctx, pair, time.Now().UTC())
		if err != nil {
			return err
		}
		msg := conversation.NewTextMessage(a, "hi", time.Now().UTC())
		msg.ConversationID = c.ID
		return tx.InsertMessage(ctx, msg)
	})
	require.NoError(t, err)
	return pair
}

func TestLockIsIdempotentAndFirstReasonWins(t *testing.T) {
	store := newTestStore(t)
	repo := store.Conversations()
	pair := seedConversation(t, repo, "alice", "bob")
	svc := NewService(repo, nil, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Lock(ctx, "bob", "alice", conversation.LockReasonDeleted)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.True(t, first.IsLocked)
	assert.Equal(t, conversation.LockReasonDeleted, first.LockedReason)
	require.NotNil(t, first.LockedAt)

	for _, reason := range []conversation.LockReason{conversation.LockReasonDeleted, conversation.LockReasonAccepted} {
		again, err := svc.Lock(ctx, "alice", "bob", reason)
		require.NoError(t, err)
		assert.False(t, again.Changed)
		assert.Equal(t, conversation.LockReasonDeleted, again.LockedReason)
		assert.True(t, first.LockedAt.Equal(*again.LockedAt))
	}

	c, err := repo.FindByPair(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateLockedDeleted, c.State())

	announcements := 0
	for _, m := range c.Messages {
		if m.IsLockAnnouncement() {
			announcements++
		}
	}
	assert.Equal(t, 1, announcements)
}

func TestLockErrors(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store.Conversations(), nil, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Lock(ctx, "alice", "bob", conversation.LockReasonAccepted)
	assert.True(t, fault.Is(err, fault.KindNotFound), "got %v", err)

	_, err = svc.Lock(ctx, "alice", "bob", conversation.LockReason("archived"))
	assert.True(t, fault.Is(err, fault.KindValidation), "got %v", err)

	_, err = svc.Lock(ctx, "alice", "alice", conversation.LockReasonDeleted)
	assert.True(t, fault.Is(err, fault.KindValidation), "got %v", err)
}
