package conversation

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

// RoomSeparator joins the sorted party identities of a pair into its room key.
const RoomSeparator = "|"

const maxPartyLength = 128

var (
	ErrInvalidParty  = errors.New("party identity must be 1-128 printable characters without '|'")
	ErrSameParty     = errors.New("a conversation needs two distinct parties")
	ErrInvalidRoom   = errors.New("room key must join two party identities")
	ErrInvalidPair   = errors.New("participants must list exactly two parties")
	ErrInvalidReason = errors.New("reason must be accepted or deleted")
)

// Pair is an unordered pair of parties stored in sorted order.
type Pair struct {
	A string
	B string
}

// NewPair builds the canonical pair for two parties.
func NewPair(x, y string) (Pair, error) {
	if err := ValidateParty(x); err != nil {
		return Pair{}, err
	}
	if err := ValidateParty(y); err != nil {
		return Pair{}, err
	}
	if x == y {
		return Pair{}, ErrSameParty
	}
	parties := []string{x, y}
	sort.Strings(parties)
	return Pair{A: parties[0], B: parties[1]}, nil
}

// ParseRoom recovers a pair from its room key.
func ParseRoom(room string) (Pair, error) {
	parts := strings.Split(room, RoomSeparator)
	if len(parts) != 2 {
		return Pair{}, ErrInvalidRoom
	}
	p, err := NewPair(parts[0], parts[1])
	if err != nil {
		return Pair{}, err
	}
	if p.Room() != room {
		return Pair{}, ErrInvalidRoom
	}
	return p, nil
}

// Room is the realtime channel key. Both parties derive it independently.
func (p Pair) Room() string {
	return p.A + RoomSeparator + p.B
}

func (p Pair) Has(party string) bool {
	return party == p.A || party == p.B
}

// Other returns the counterparty of party.
func (p Pair) Other(party string) string {
	if party == p.A {
		return p.B
	}
	return p.A
}

func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{p.A, p.B})
}

func (p *Pair) UnmarshalJSON(b []byte) error {
	var parties []string
	if err := json.Unmarshal(b, &parties); err != nil {
		return err
	}
	if len(parties) != 2 {
		return ErrInvalidPair
	}
	pair, err := NewPair(parties[0], parties[1])
	if err != nil {
		return err
	}
	*p = pair
	return nil
}

// ValidateParty checks a party identity.
func ValidateParty(party string) error {
	if party == "" || len(party) > maxPartyLength || strings.Contains(party, RoomSeparator) {
		return ErrInvalidParty
	}
	for _, r := range party {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return ErrInvalidParty
		}
	}
	return nil
}

// LockReason is why a conversation was frozen.
type LockReason string

const (
	LockReasonAccepted LockReason = "accepted"
	LockReasonDeleted  LockReason = "deleted"
)

// ParseLockReason validates a client supplied reason.
func ParseLockReason(s string) (LockReason, error) {
	switch LockReason(s) {
	case LockReasonAccepted, LockReasonDeleted:
		return LockReason(s), nil
	default:
		return "", ErrInvalidReason
	}
}

// Conversation is the negotiation channel of one pair.
type Conversation struct {
	ID                uuid.UUID          `json:"id"`
	Pair              Pair               `json:"participants"`
	Messages          []*Message         `json:"messages"`
	IsLocked          bool               `json:"isLocked"`
	LockedReason      LockReason         `json:"lockedReason,omitempty"`
	LockedAt          *time.Time         `json:"lockedAt,omitempty"`
	LastTradeProposal *proposal.Proposal `json:"lastTradeProposal"`
	LastMessageAt     *time.Time         `json:"lastMessageAt,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// Empty is the unpersisted shape returned when a pair has not talked yet.
func Empty(pair Pair) *Conversation {
	return &Conversation{
		Pair:     pair,
		Messages: []*Message{},
	}
}

// New creates a conversation ready to be persisted.
func New(pair Pair, now time.Time) *Conversation {
	return &Conversation{
		ID:        uuid.New(),
		Pair:      pair,
		Messages:  []*Message{},
		CreatedAt: now,
	}
}

// Exists reports whether the conversation has been persisted.
func (c *Conversation) Exists() bool {
	return c != nil && c.ID != uuid.Nil
}
