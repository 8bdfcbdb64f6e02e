package realtime

import (
	"encoding/json"
	"time"

	"github.com/trade-hub/trade-hub/internal/domain/event"
)

// Frame types exchanged on the websocket.
const (
	FrameJoin   = "room.join"
	FrameJoined = "room.joined"
	FrameLeave  = "room.leave"
	FrameLeft   = "room.left"
	FrameError  = "error"
)

// Frame is the wire envelope. Event frames carry the origin fields clients deduplicate on.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Room      string          `json:"room,omitempty"`
	FromParty string          `json:"fromParty,omitempty"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload names the room to join, either by counterparty or by room key.
type JoinPayload struct {
	Other string `json:"other,omitempty"`
	Room  string `json:"room,omitempty"`
}

// RoomPayload acknowledges a join or leave.
type RoomPayload struct {
	Room string `json:"room"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventFrame wraps an event for delivery.
func EventFrame(ev event.Event) Frame {
	at := ev.CreatedAt
	return Frame{
		Type:      string(ev.Type),
		Room:      ev.Room,
		FromParty: ev.FromParty,
		CreatedAt: &at,
		Payload:   ev.Payload,
	}
}

// Event recovers the event carried by an event frame.
func (f Frame) Event() (event.Event, bool) {
	if f.CreatedAt == nil {
		return event.Event{}, false
	}
	return event.Event{
		Type:      event.Type(f.Type),
		Room:      f.Room,
		FromParty: f.FromParty,
		CreatedAt: *f.CreatedAt,
		Payload:   f.Payload,
	}, true
}

// ErrorFrame builds an error frame answering requestID.
func ErrorFrame(requestID, code, message string) Frame {
	return Frame{Type: FrameError, RequestID: requestID, Payload: mustJSON(ErrorPayload{Code: code, Message: message})}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
