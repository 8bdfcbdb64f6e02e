package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// Client is a websocket subscriber that drops redelivered events.
type Client struct {
	conn    *websocket.Conn
	dec     *json.Decoder
	mu      sync.Mutex
	enc     *json.Encoder
	deduper *Deduper
}

// Dial connects to the /ws endpoint of serverURL (http or https) with a bearer token.
func Dial(serverURL, token string, dedupeSize int) (*Client, error) {
	base := strings.TrimRight(serverURL, "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, base)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	if token != "" {
		cfg.Header = make(http.Header)
		cfg.Header.Set("Authorization", "Bearer "+token)
	}
	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &Client{
		conn:    conn,
		dec:     json.NewDecoder(conn),
		enc:     json.NewEncoder(conn),
		deduper: NewDeduper(dedupeSize),
	}, nil
}

func (c *Client) send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(f)
}

// Join asks to join the room shared with other. The ack arrives through Next.
func (c *Client) Join(other string) (string, error) {
	requestID := uuid.NewString()
	return requestID, c.send(Frame{Type: FrameJoin, RequestID: requestID, Payload: mustJSON(JoinPayload{Other: other})})
}

// JoinRoom joins by room key.
func (c *Client) JoinRoom(room string) (string, error) {
	requestID := uuid.NewString()
	return requestID, c.send(Frame{Type: FrameJoin, RequestID: requestID, Payload: mustJSON(JoinPayload{Room: room})})
}

func (c *Client) Leave(room string) (string, error) {
	requestID := uuid.NewString()
	return requestID, c.send(Frame{Type: FrameLeave, RequestID: requestID, Payload: mustJSON(RoomPayload{Room: room})})
}

// Next blocks until the next frame that is not a duplicate of an event already returned.
func (c *Client) Next() (Frame, error) {
	for {
		var f Frame
		if err := c.dec.Decode(&f); err != nil {
			return Frame{}, err
		}
		if ev, ok := f.Event(); ok && c.deduper.Seen(ev) {
			continue
		}
		return f, nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
