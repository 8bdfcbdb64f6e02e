package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Type names a realtime event.
type Type string

const (
	TypeMessageSync          Type = "message.sync"
	TypeConversationDeleted  Type = "conversation.deleted"
	TypeConversationActivity Type = "conversation.activity"
)

var ErrNoTarget = errors.New("event needs a room or a party")

// Event is delivered either to every session joined to Room or to every session of Party.
type Event struct {
	Type      Type            `json:"type"`
	Room      string          `json:"room,omitempty"`
	Party     string          `json:"party,omitempty"`
	FromParty string          `json:"fromParty"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

// DedupeKey identifies the same logical message across redeliveries.
func (e Event) DedupeKey() string {
	return e.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + e.FromParty
}

// RoomOf returns the pair room the event concerns. Party events name it in their payload.
func (e Event) RoomOf() string {
	if e.Room != "" {
		return e.Room
	}
	var p struct {
		Room string `json:"room"`
	}
	_ = json.Unmarshal(e.Payload, &p)
	return p.Room
}

// Validate checks that exactly one target is set.
func (e Event) Validate() error {
	if (e.Room == "") == (e.Party == "") {
		return ErrNoTarget
	}
	return nil
}

// New builds an event with a JSON payload.
func New(t Type, fromParty string, createdAt time.Time, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, FromParty: fromParty, CreatedAt: createdAt, Payload: raw}, nil
}

// ToRoom targets the event at a pair room.
func (e Event) ToRoom(room string) Event {
	e.Room = room
	e.Party = ""
	return e
}

// ToParty targets the event at a party channel.
func (e Event) ToParty(party string) Event {
	e.Party = party
	e.Room = ""
	return e
}
