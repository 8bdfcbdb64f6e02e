package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
)

// MessageSyncPayload carries a newly appended message to the pair room.
type MessageSyncPayload struct {
	Room           string                `json:"room"`
	ConversationID uuid.UUID             `json:"conversationId"`
	Message        *conversation.Message `json:"message"`
}

// DeletedPayload tells a party that its counterparty removed the conversation.
type DeletedPayload struct {
	Room         string            `json:"room"`
	DeletedBy    string            `json:"deletedBy"`
	Participants conversation.Pair `json:"participants"`
}

// ActivityPayload tells a party which room has new traffic.
type ActivityPayload struct {
	Room           string    `json:"room"`
	Other          string    `json:"other"`
	ConversationID uuid.UUID `json:"conversationId"`
}

// MessageSync builds the room event for msg.
func MessageSync(pair conversation.Pair, msg *conversation.Message) (Event, error) {
	ev, err := New(TypeMessageSync, msg.FromParty, msg.CreatedAt, MessageSyncPayload{
		Room:           pair.Room(),
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
	if err != nil {
		return Event{}, err
	}
	return ev.ToRoom(pair.Room()), nil
}

// ConversationDeleted builds the party event sent to the counterparty of deletedBy.
func ConversationDeleted(pair conversation.Pair, deletedBy string, at time.Time) (Event, error) {
	ev, err := New(TypeConversationDeleted, deletedBy, at, DeletedPayload{
		Room:         pair.Room(),
		DeletedBy:    deletedBy,
		Participants: pair,
	})
	if err != nil {
		return Event{}, err
	}
	return ev.ToParty(pair.Other(deletedBy)), nil
}

// ConversationActivity builds the party event that points recipient at the pair room.
func ConversationActivity(pair conversation.Pair, conversationID uuid.UUID, recipient, from string, at time.Time) (Event, error) {
	ev, err := New(TypeConversationActivity, from, at, ActivityPayload{
		Room:           pair.Room(),
		Other:          pair.Other(recipient),
		ConversationID: conversationID,
	})
	if err != nil {
		return Event{}, err
	}
	return ev.ToParty(recipient), nil
}
