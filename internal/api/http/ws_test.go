package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-hub/trade-hub/internal/domain/event"
	"github.com/trade-hub/trade-hub/internal/realtime"
)

func dial(t *testing.T, api *testAPI, party string) *realtime.Client {
	t.Helper()
	client, err := realtime.Dial(api.server.URL, api.token(t, party), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func nextFrame(t *testing.T, c *realtime.Client) realtime.Frame {
	t.Helper()
	type result struct {
		frame realtime.Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := c.Next()
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return realtime.Frame{}
	}
}

func errorCode(t *testing.T, f realtime.Frame) string {
	t.Helper()
	require.Equal(t, realtime.FrameError, f.Type)
	var p realtime.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p.Code
}

func TestWebsocketRequiresToken(t *testing.T) {
	api := newTestAPI(t, Options{})
	_, err := realtime.Dial(api.server.URL, "", 0)
	assert.Error(t, err)
}

func TestWebsocketJoinAndReceive(t *testing.T) {
	api := newTestAPI(t, Options{})
	bob := dial(t, api, "bob")

	requestID, err := bob.Join("alice")
	require.NoError(t, err)
	joined := nextFrame(t, bob)
	assert.Equal(t, realtime.FrameJoined, joined.Type)
	assert.Equal(t, requestID, joined.RequestID)
	assert.Equal(t, "alice|bob", joined.Room)

	status, _ := api.do(t, http.MethodPost, "/conversations/bob/messages", "alice", map[string]interface{}{
		"kind": "text", "payload": map[string]string{"text": "hello bob"},
	})
	require.Equal(t, http.StatusCreated, status)

	sync := nextFrame(t, bob)
	assert.Equal(t, string(event.TypeMessageSync), sync.Type)
	assert.Equal(t, "alice|bob", sync.Room)
	assert.Equal(t, "alice", sync.FromParty)
	require.NotNil(t, sync.CreatedAt)
	var payload event.MessageSyncPayload
	require.NoError(t, json.Unmarshal(sync.Payload, &payload))
	assert.JSONEq(t, `{"text":"hello bob"}`, string(payload.Message.Payload))

	activity := nextFrame(t, bob)
	assert.Equal(t, string(event.TypeConversationActivity), activity.Type)

	_, err = bob.Leave("alice|bob")
	require.NoError(t, err)
	assert.Equal(t, realtime.FrameLeft, nextFrame(t, bob).Type)
}

func TestWebsocketRejectsOutsiders(t *testing.T) {
	api := newTestAPI(t, Options{})
	carol := dial(t, api, "carol")

	_, err := carol.JoinRoom("alice|bob")
	require.NoError(t, err)
	assert.Equal(t, "FORBIDDEN", errorCode(t, nextFrame(t, carol)))

	_, err = carol.Join("carol")
	require.NoError(t, err)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, nextFrame(t, carol)))

	assert.Equal(t, 0, api.hub.RoomSize("alice|bob"))
}

func TestWebsocketFrameRateLimit(t *testing.T) {
	api := newTestAPI(t, Options{WSFramesPerSecond: 0.001, WSFrameBurst: 1})
	alice := dial(t, api, "alice")

	_, err := alice.Join("bob")
	require.NoError(t, err)
	assert.Equal(t, realtime.FrameJoined, nextFrame(t, alice).Type)

	_, err = alice.Join("carol")
	require.NoError(t, err)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, nextFrame(t, alice)))
}

func TestHubStopDisconnectsClients(t *testing.T) {
	api := newTestAPI(t, Options{})
	alice := dial(t, api, "alice")

	_, err := alice.Join("bob")
	require.NoError(t, err)
	assert.Equal(t, realtime.FrameJoined, nextFrame(t, alice).Type)

	api.hub.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := alice.Next()
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client still connected after hub stop")
	}
	assert.Equal(t, 0, api.hub.SessionCount())
}
