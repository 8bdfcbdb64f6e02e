package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
)

func TestValidateNeedsExactlyOneTarget(t *testing.T) {
	assert.ErrorIs(t, Event{}.Validate(), ErrNoTarget)
	assert.ErrorIs(t, Event{Room: "alice|bob", Party: "alice"}.Validate(), ErrNoTarget)
	assert.NoError(t, Event{Room: "alice|bob"}.Validate())
	assert.NoError(t, Event{Party: "alice"}.Validate())
}

func TestTargetsAreExclusive(t *testing.T) {
	ev := Event{Room: "alice|bob"}.ToParty("alice")
	assert.Empty(t, ev.Room)
	assert.Equal(t, "alice", ev.Party)
	ev = ev.ToRoom("alice|bob")
	assert.Empty(t, ev.Party)
}

func TestDedupeKey(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 123000000, time.UTC)
	a := Event{CreatedAt: at, FromParty: "alice"}
	b := Event{CreatedAt: at.In(time.FixedZone("X", 3600)), FromParty: "alice", Room: "alice|bob"}
	c := Event{CreatedAt: at, FromParty: "bob"}
	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	assert.NotEqual(t, a.DedupeKey(), c.DedupeKey())
}

func TestRoomOf(t *testing.T) {
	assert.Equal(t, "alice|bob", Event{Room: "alice|bob"}.RoomOf())

	pair, _ := conversation.NewPair("alice", "carol")
	ev, err := ConversationDeleted(pair, "carol", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice|carol", ev.RoomOf())

	assert.Empty(t, Event{Party: "alice", Payload: json.RawMessage(`not json`)}.RoomOf())
}

func TestMessageSync(t *testing.T) {
	pair, _ := conversation.NewPair("alice", "bob")
	msg := conversation.NewTextMessage("alice", "hi", time.Now().UTC())
	msg.ConversationID = uuid.New()

	ev, err := MessageSync(pair, msg)
	require.NoError(t, err)
	assert.Equal(t, TypeMessageSync, ev.Type)
	assert.Equal(t, "alice|bob", ev.Room)
	assert.Equal(t, "alice", ev.FromParty)
	assert.Equal(t, msg.CreatedAt, ev.CreatedAt)

	var payload MessageSyncPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, msg.ConversationID, payload.ConversationID)
	assert.Equal(t, msg.ID, payload.Message.ID)
}

func TestConversationDeletedTargetsCounterparty(t *testing.T) {
	pair, _ := conversation.NewPair("alice", "bob")
	ev, err := ConversationDeleted(pair, "bob", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.Party)
	assert.Empty(t, ev.Room)

	var payload DeletedPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "bob", payload.DeletedBy)
	assert.Equal(t, "alice|bob", payload.Room)
	assert.Equal(t, pair, payload.Participants)
}

func TestConversationActivity(t *testing.T) {
	pair, _ := conversation.NewPair("alice", "bob")
	id := uuid.New()
	ev, err := ConversationActivity(pair, id, "bob", "alice", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "bob", ev.Party)

	var payload ActivityPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "alice", payload.Other)
	assert.Equal(t, id, payload.ConversationID)
}
