package conversation

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

// Kind is the message type inside a conversation log.
type Kind string

const (
	KindText     Kind = "text"
	KindProposal Kind = "proposal"
	KindSystem   Kind = "system"
)

// SystemParty is the sender of lock announcements.
const SystemParty = "system"

const maxTextLength = 4000

var (
	ErrInvalidKind = errors.New("kind must be text, proposal or system")
	ErrEmptyText   = errors.New("text payload requires a non-empty text field")
	ErrTextTooLong = errors.New("text payload exceeds 4000 characters")
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindText, KindProposal, KindSystem:
		return Kind(s), nil
	default:
		return "", ErrInvalidKind
	}
}

// Message is an immutable entry in a conversation log.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversationId"`
	Seq            int64           `json:"seq"`
	FromParty      string          `json:"fromParty"`
	Kind           Kind            `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// TextPayload is the body of a text message.
type TextPayload struct {
	Text string `json:"text"`
}

// SystemPayload is the body of a lock announcement.
type SystemPayload struct {
	Text         string     `json:"text"`
	Event        string     `json:"event"`
	Reason       LockReason `json:"reason"`
	Actor        string     `json:"actor,omitempty"`
	SettlementID *uuid.UUID `json:"settlementId,omitempty"`
}

// IsLockAnnouncement reports whether m is the system message emitted by a lock.
func (m *Message) IsLockAnnouncement() bool {
	if m.Kind != KindSystem {
		return false
	}
	var p SystemPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return false
	}
	return p.Event == "locked"
}

// ParseText decodes and validates a text payload.
func ParseText(raw json.RawMessage) (string, error) {
	var p TextPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", ErrEmptyText
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return "", ErrTextTooLong
	}
	return text, nil
}

// NewTextMessage builds a text message from party.
func NewTextMessage(from, text string, now time.Time) *Message {
	payload, _ := json.Marshal(TextPayload{Text: text})
	return newMessage(from, KindText, payload, now)
}

// NewProposalMessage embeds the proposal value in a log entry.
func NewProposalMessage(from string, p *proposal.Proposal, now time.Time) (*Message, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return newMessage(from, KindProposal, payload, now), nil
}

// NewLockMessage builds the single announcement appended when a conversation locks.
func NewLockMessage(reason LockReason, actor string, settlementID *uuid.UUID, now time.Time) *Message {
	text := "Negotiation closed by " + actor + "."
	if reason == LockReasonAccepted {
		text = "Trade completed. Ownership of all assets has been transferred."
		if settlementID == nil {
			text = "Trade accepted by " + actor + "."
		}
	}
	payload, _ := json.Marshal(SystemPayload{
		Text:         text,
		Event:        "locked",
		Reason:       reason,
		Actor:        actor,
		SettlementID: settlementID,
	})
	return newMessage(SystemParty, KindSystem, payload, now)
}

func newMessage(from string, kind Kind, payload json.RawMessage, now time.Time) *Message {
	return &Message{
		ID:        uuid.New(),
		FromParty: from,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
	}
}
