package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/realtime"
)

const (
	maxDecodeErrorsPerConn = 3
	maxFramePayloadBytes   = 4 * 1024
)

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame realtime.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func writeWSError(peer *wsPeer, requestID, code, message string) error {
	return peer.writeFrame(realtime.ErrorFrame(requestID, code, message))
}

// websocketEndpoint upgrades an authenticated request. The session receives its party's
// channel immediately and pair rooms after room.join.
func (s *Server) websocketEndpoint(w http.ResponseWriter, r *http.Request) {
	party := partyFromContext(r.Context())
	srv := websocket.Server{
		// Identity comes from the bearer token, so non-browser clients without Origin are accepted.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			s.serveSession(conn, party)
		},
	}
	srv.ServeHTTP(w, r)
}

func (s *Server) serveSession(conn *websocket.Conn, party string) {
	log := s.logger.With().Str("party", party).Logger()
	sess := s.hub.RegisterConn(party, conn)
	peer := newWSPeer(json.NewEncoder(conn))
	log.Debug().Str("session_id", sess.ID).Msg("realtime session opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sess.Events {
			if err := peer.writeFrame(realtime.EventFrame(ev)); err != nil {
				log.Debug().Err(err).Str("session_id", sess.ID).Msg("realtime write failed")
				_ = conn.Close()
				for range sess.Events {
				}
				return
			}
		}
	}()
	defer func() {
		s.hub.Unregister(sess.ID)
		<-done
		_ = conn.Close()
		log.Debug().Str("session_id", sess.ID).Msg("realtime session closed")
	}()

	limiter := rate.NewLimiter(rate.Limit(s.opts.WSFramesPerSecond), s.opts.WSFrameBurst)
	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame realtime.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if !limiter.Allow() {
			_ = writeWSError(peer, frame.RequestID, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		switch frame.Type {
		case realtime.FrameJoin:
			s.handleJoinFrame(peer, sess, frame)
		case realtime.FrameLeave:
			s.handleLeaveFrame(peer, sess, frame)
		default:
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (s *Server) handleJoinFrame(peer *wsPeer, sess *realtime.Session, frame realtime.Frame) {
	var payload realtime.JoinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	room := payload.Room
	if payload.Other != "" {
		pair, err := conversation.NewPair(sess.Party, payload.Other)
		if err != nil {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", err.Error())
			return
		}
		room = pair.Room()
	}
	if room == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "other or room is required")
		return
	}

	if err := s.hub.Join(sess.ID, room); err != nil {
		code := "INVALID_ARGUMENT"
		if errors.Is(err, realtime.ErrNotParticipant) {
			code = "FORBIDDEN"
		}
		_ = writeWSError(peer, frame.RequestID, code, err.Error())
		return
	}
	_ = peer.writeFrame(realtime.Frame{
		Type:      realtime.FrameJoined,
		RequestID: frame.RequestID,
		Room:      room,
		Payload:   mustJSON(realtime.RoomPayload{Room: room}),
	})
}

func (s *Server) handleLeaveFrame(peer *wsPeer, sess *realtime.Session, frame realtime.Frame) {
	var payload realtime.RoomPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.Room == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "room is required")
		return
	}
	if err := s.hub.Leave(sess.ID, payload.Room); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", err.Error())
		return
	}
	_ = peer.writeFrame(realtime.Frame{
		Type:      realtime.FrameLeft,
		RequestID: frame.RequestID,
		Room:      payload.Room,
		Payload:   mustJSON(realtime.RoomPayload{Room: payload.Room}),
	})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
