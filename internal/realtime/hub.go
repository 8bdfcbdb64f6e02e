// Package realtime fans committed conversation events out to connected sessions.
package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/event"
	"github.com/trade-hub/trade-hub/internal/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("party is not a participant of the room")
)

const defaultBuffer = 64

// Session is one connected client of a party.
type Session struct {
	ID          string
	Party       string
	ConnectedAt time.Time
	Events      chan event.Event

	rooms map[string]struct{}
	conn  io.Closer
}

// Hub tracks sessions by party and by joined room. Delivery never blocks: a full session
// buffer drops the event.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session
	buffer   int
	logger   zerolog.Logger
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		buffer:   buffer,
		logger:   logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Register opens a session subscribed to party's channel.
func (h *Hub) Register(party string) *Session {
	return h.RegisterConn(party, nil)
}

// RegisterConn opens a session bound to conn. Stop closes conn so blocked readers return.
func (h *Hub) RegisterConn(party string, conn io.Closer) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		Party:       party,
		ConnectedAt: time.Now().UTC(),
		Events:      make(chan event.Event, h.buffer),
		rooms:       make(map[string]struct{}),
		conn:        conn,
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	metrics.ActiveSessions.Inc()
	return s
}

// Unregister removes the session from every room and closes its channel.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for room := range s.rooms {
		h.removeFromRoom(room, s.ID)
	}
	delete(h.sessions, sessionID)
	close(s.Events)
	metrics.ActiveSessions.Dec()
}

// Join subscribes the session to room. Only the two parties of the room may join it.
func (h *Hub) Join(sessionID, room string) error {
	pair, err := conversation.ParseRoom(room)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !pair.Has(s.Party) {
		return ErrNotParticipant
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Session)
		h.rooms[room] = members
	}
	members[s.ID] = s
	s.rooms[room] = struct{}{}
	return nil
}

// Leave unsubscribes the session from room. Leaving a room not joined is a no-op.
func (h *Hub) Leave(sessionID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.rooms, room)
	h.removeFromRoom(room, s.ID)
	return nil
}

func (h *Hub) removeFromRoom(room, sessionID string) {
	members := h.rooms[room]
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish implements event.Publisher for a single instance.
func (h *Hub) Publish(_ context.Context, ev event.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	h.Deliver(ev)
	return nil
}

// Deliver hands ev to the sessions it targets and reports how many accepted it.
func (h *Hub) Deliver(ev event.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	target := "party"
	var recipients []*Session
	if ev.Room != "" {
		target = "room"
		for _, s := range h.rooms[ev.Room] {
			recipients = append(recipients, s)
		}
	} else {
		for _, s := range h.sessions {
			if s.Party == ev.Party {
				recipients = append(recipients, s)
			}
		}
	}

	delivered := 0
	for _, s := range recipients {
		if trySend(s, ev) {
			delivered++
			continue
		}
		metrics.DroppedTotal.WithLabelValues(target).Inc()
		h.logger.Warn().
			Str("session_id", s.ID).
			Str("party", s.Party).
			Str("type", string(ev.Type)).
			Msg("session buffer full, event dropped")
	}
	metrics.DeliveriesTotal.WithLabelValues(target).Add(float64(delivered))
	return delivered
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomSize returns how many sessions joined room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Stop closes every session and its connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	var conns []io.Closer
	for id, s := range h.sessions {
		close(s.Events)
		delete(h.sessions, id)
		metrics.ActiveSessions.Dec()
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	h.rooms = make(map[string]map[string]*Session)
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			h.logger.Debug().Err(err).Msg("close session connection")
		}
	}
}

func trySend(s *Session, ev event.Event) bool {
	select {
	case s.Events <- ev:
		return true
	default:
		return false
	}
}
