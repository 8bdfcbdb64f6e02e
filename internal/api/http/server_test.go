package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-hub/trade-hub/internal/application/auth"
	"github.com/trade-hub/trade-hub/internal/application/broadcast"
	"github.com/trade-hub/trade-hub/internal/application/conversation"
	"github.com/trade-hub/trade-hub/internal/application/lock"
	"github.com/trade-hub/trade-hub/internal/application/settlement"
	"github.com/trade-hub/trade-hub/internal/domain/asset"
	domainSettlement "github.com/trade-hub/trade-hub/internal/domain/settlement"
	"github.com/trade-hub/trade-hub/internal/infrastructure/sqlite"
	"github.com/trade-hub/trade-hub/internal/realtime"
)

var (
	card1 = asset.Ref{Kind: "card", ID: "1"}
	card2 = asset.Ref{Kind: "card", ID: "2"}
)

type testAPI struct {
	server *httptest.Server
	auth   *auth.Service
	store  *sqlite.Store
	hub    *realtime.Hub
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Assets().Upsert(ctx, &asset.Asset{Ref: card1, Owner: "alice", IsTradable: true, Name: "One"}))
	require.NoError(t, store.Assets().Upsert(ctx, &asset.Asset{Ref: card2, Owner: "bob", IsTradable: true, Name: "Two"}))

	logger := zerolog.Nop()
	hub := realtime.NewHub(16, logger)
	b := broadcast.NewBroadcaster(hub, logger)
	policy, err := domainSettlement.NewPolicy("")
	require.NoError(t, err)
	authSvc := auth.NewService([]byte("api-test-secret"), "trade-hub", logger)

	srv := NewServer(
		conversation.NewService(store.Conversations(), store.Assets(), b, logger),
		lock.NewService(store.Conversations(), b, logger),
		settlement.NewService(store.Settlements(), policy, []byte("signing-key"), b, logger),
		authSvc,
		hub,
		store,
		opts,
		logger,
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})
	return &testAPI{server: ts, auth: authSvc, store: store, hub: hub}
}

func (a *testAPI) token(t *testing.T, party string) string {
	t.Helper()
	token, err := a.auth.Issue(party, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, party string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if party != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, party))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (a *testAPI) owners(t *testing.T) map[asset.Ref]string {
	t.Helper()
	found, err := a.store.Assets().FindByRefs(context.Background(), []asset.Ref{card1, card2})
	require.NoError(t, err)
	out := map[asset.Ref]string{}
	for ref, item := range found {
		out[ref] = item.Owner
	}
	return out
}

func proposalBody() map[string]interface{} {
	return map[string]interface{}{
		"proposal": map[string]interface{}{
			"proposer": map[string]interface{}{"party": "alice", "assets": []asset.Ref{card1}, "accepted": true},
			"receiver": map[string]interface{}{"party": "bob", "assets": []asset.Ref{card2}, "accepted": false},
		},
	}
}

func TestRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t, Options{})
	status, body := api.do(t, http.MethodGet, "/conversations/bob", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
	assert.Equal(t, "missing bearer token", body["error"])

	req, _ := http.NewRequest(http.MethodGet, api.server.URL+"/conversations/bob", nil)
	req.Header.Set("Authorization", "Bearer forged")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(api.server.URL + "/conversations/bob?access_token=" + api.token(t, "alice"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, Options{})
	status, body := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestGetConversationWithoutHistory(t *testing.T) {
	api := newTestAPI(t, Options{})
	status, body := api.do(t, http.MethodGet, "/conversations/bob", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"alice", "bob"}, body["participants"])
	assert.Empty(t, body["messages"])
	assert.Equal(t, false, body["isLocked"])
	assert.Nil(t, body["lastTradeProposal"])
}

func TestTradeLifecycle(t *testing.T) {
	api := newTestAPI(t, Options{})

	// alice proposes card 1 for card 2
	status, body := api.do(t, http.MethodPost, "/conversations/bob/trade-proposal", "alice", proposalBody())
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "created", body["outcome"])
	proposalID := body["lastTradeProposal"].(map[string]interface{})["id"].(string)

	status, body = api.do(t, http.MethodGet, "/conversations/bob", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "proposal", messages[0].(map[string]interface{})["kind"])
	assert.Equal(t, false, body["isLocked"])

	status, body = api.do(t, http.MethodGet, "/conversations/alice/trade-proposal", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, proposalID, body["lastTradeProposal"].(map[string]interface{})["id"])

	// bob accepts and the trade settles
	status, body = api.do(t, http.MethodPost, "/conversations/alice/trade-proposal/accept", "bob", map[string]interface{}{
		"proposalId":         proposalID,
		"liveProposerAssets": []asset.Ref{card1},
		"liveReceiverAssets": []asset.Ref{card2},
	})
	require.Equal(t, http.StatusCreated, status, body)
	settlementID := body["id"].(string)
	assert.Equal(t, map[asset.Ref]string{card1: "bob", card2: "alice"}, api.owners(t))

	status, body = api.do(t, http.MethodGet, "/conversations/bob", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isLocked"])
	assert.Equal(t, "accepted", body["lockedReason"])

	status, body = api.do(t, http.MethodGet, "/settlements/"+settlementID, "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["verified"])

	status, _ = api.do(t, http.MethodGet, "/settlements/"+settlementID, "carol", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = api.do(t, http.MethodGet, "/conversations/alice/settlement", "bob", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, settlementID, body["settlement"].(map[string]interface{})["id"])
	assert.Equal(t, true, body["verified"])

	status, _ = api.do(t, http.MethodGet, "/conversations/alice/settlement", "carol", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// the settled conversation refuses further writes
	status, body = api.do(t, http.MethodPost, "/conversations/alice/messages", "bob", map[string]interface{}{
		"kind":    "text",
		"payload": map[string]string{"text": "thanks"},
	})
	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, "LOCKED", body["code"])
	status, _ = api.do(t, http.MethodPost, "/conversations/alice/trade-proposal", "bob", proposalBody())
	assert.Equal(t, http.StatusLocked, status)
}

func TestRejectLocksWithoutTrading(t *testing.T) {
	api := newTestAPI(t, Options{})
	status, _ := api.do(t, http.MethodPost, "/conversations/bob/trade-proposal", "alice", proposalBody())
	require.Equal(t, http.StatusCreated, status)

	// the negotiation is closed without a trade
	status, body := api.do(t, http.MethodPost, "/conversations/alice/trade-proposal/reject", "bob", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "deleted", body["lockedReason"])
	assert.Equal(t, true, body["changed"])

	status, body = api.do(t, http.MethodPatch, "/conversations/bob/lock", "alice", map[string]string{"reason": "accepted"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "deleted", body["lockedReason"], "first reason wins")
	assert.Equal(t, false, body["changed"])

	status, body = api.do(t, http.MethodGet, "/conversations/alice/trade-proposal", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotNil(t, body["lastTradeProposal"])
	assert.Equal(t, map[asset.Ref]string{card1: "alice", card2: "bob"}, api.owners(t))

	status, _ = api.do(t, http.MethodGet, "/conversations/bob/settlement", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestErrorStatuses(t *testing.T) {
	api := newTestAPI(t, Options{})
	_, _ = api.do(t, http.MethodPost, "/conversations/bob/messages", "alice", map[string]interface{}{
		"kind": "text", "payload": map[string]string{"text": "hi"},
	})

	tests := []struct {
		name   string
		method string
		path   string
		party  string
		body   interface{}
		want   int
	}{
		{name: "invalid lock reason", method: http.MethodPatch, path: "/conversations/bob/lock", party: "alice", body: map[string]string{"reason": "archived"}, want: http.StatusBadRequest},
		{name: "lock unknown conversation", method: http.MethodPatch, path: "/conversations/carol/lock", party: "alice", body: map[string]string{"reason": "deleted"}, want: http.StatusNotFound},
		{name: "unknown field", method: http.MethodPost, path: "/conversations/bob/messages", party: "alice", body: map[string]string{"kind": "text", "extra": "x"}, want: http.StatusBadRequest},
		{name: "system message", method: http.MethodPost, path: "/conversations/bob/messages", party: "alice", body: map[string]interface{}{"kind": "system", "payload": map[string]string{"text": "x"}}, want: http.StatusBadRequest},
		{name: "self conversation", method: http.MethodGet, path: "/conversations/alice", party: "alice", want: http.StatusBadRequest},
		{name: "accept without proposal", method: http.MethodPost, path: "/conversations/bob/trade-proposal/accept", party: "alice", want: http.StatusBadRequest},
		{name: "execute with bad id", method: http.MethodPost, path: "/execute-trade", party: "alice", body: map[string]string{"conversationId": "nope"}, want: http.StatusBadRequest},
		{name: "execute unknown conversation", method: http.MethodPost, path: "/execute-trade", party: "alice", body: map[string]string{"conversationId": "8d2f9a4e-0000-4000-8000-000000000000"}, want: http.StatusNotFound},
		{name: "bad settlement id", method: http.MethodGet, path: "/settlements/nope", party: "alice", want: http.StatusBadRequest},
		{name: "delete unknown conversation", method: http.MethodDelete, path: "/conversations/carol", party: "alice", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, tt.method, tt.path, tt.party, tt.body)
			assert.Equal(t, tt.want, status, body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestOwnershipFailureNamesAsset(t *testing.T) {
	api := newTestAPI(t, Options{})
	status, _ := api.do(t, http.MethodPost, "/conversations/bob/trade-proposal", "alice", proposalBody())
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, api.store.Assets().Upsert(context.Background(), &asset.Asset{Ref: card2, Owner: "carol", IsTradable: true}))

	status, body := api.do(t, http.MethodPost, "/conversations/alice/trade-proposal/accept", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "OWNERSHIP", body["code"])
	assert.Equal(t, map[string]interface{}{"assetKind": "card", "assetId": "2"}, body["asset"])
}

func TestListAndDeleteConversations(t *testing.T) {
	api := newTestAPI(t, Options{})
	for _, other := range []string{"bob", "carol"} {
		status, _ := api.do(t, http.MethodPost, "/conversations/"+other+"/messages", "alice", map[string]interface{}{
			"kind": "text", "payload": map[string]string{"text": "hi " + other},
		})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := api.do(t, http.MethodGet, "/conversations?limit=10", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["conversations"], 2)

	status, _ = api.do(t, http.MethodDelete, "/conversations/alice", "bob", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodGet, "/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["conversations"], 1)
}

func TestRateLimitPerParty(t *testing.T) {
	api := newTestAPI(t, Options{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	for i := 0; i < 2; i++ {
		status, _ := api.do(t, http.MethodGet, "/conversations/bob", "alice", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := api.do(t, http.MethodGet, "/conversations/bob", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", body["error"])

	status, _ = api.do(t, http.MethodGet, "/conversations/alice", "bob", nil)
	assert.Equal(t, http.StatusOK, status, "other parties keep their own budget")
}
