package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/bridge/pkg/agent"
	"github.com/graphweave/bridge/pkg/chat"
	"github.com/graphweave/bridge/pkg/config"
	"github.com/graphweave/bridge/pkg/layout"
	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/pipeline"
	"github.com/graphweave/bridge/pkg/profile"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/scheduler"
	"github.com/graphweave/bridge/pkg/trace"
)

type fakeTurns struct {
	result *agent.TurnResult
	err    error
}

func (f *fakeTurns) HandleTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testServer struct {
	*Server
	router *gin.Engine
	chat   *chat.Channel
	turns  *fakeTurns
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	ch := chat.New()
	turns := &fakeTurns{}
	s := NewServer(cfg, mirror.New(), queue.NewManager(time.Minute),
		pipeline.NewOutbox(ch), ch, trace.New(), layout.NewEngine(),
		scheduler.New(scheduler.DefaultConfig(), nil, nil, nil, nil),
		turns, profile.NewMemoryStore())
	return &testServer{Server: s, router: s.Router(), chat: ch, turns: turns}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthReportsSubsystems(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "state")
	assert.Contains(t, body, "queues")
	assert.Contains(t, body, "scheduler")
	assert.Equal(t, float64(0), body["outbox"])
}

func TestStateRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	active := "g1"
	snap := models.StateSnapshot{
		Graphs:        []models.Graph{{ID: "g1", Name: "Cities", InstanceIDs: []string{"i1"}}},
		Prototypes:    []models.NodePrototype{{ID: "p1", Name: "City"}},
		Instances:     []models.NodeInstance{{ID: "i1", PrototypeID: "p1", GraphID: "g1"}},
		ActiveGraphID: &active,
	}
	w := ts.do(t, http.MethodPost, "/api/v1/state", snap)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.StateSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Graphs, 1)
	assert.Equal(t, "Cities", got.Graphs[0].Name)
	require.NotNil(t, got.ActiveGraphID)
	assert.Equal(t, "g1", *got.ActiveGraphID)
}

func TestStateRejectsMalformedSnapshot(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/state", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLayoutSettingsExposed(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/layout-settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Contains(t, body, "seed")
	assert.Contains(t, body, "algorithms")
}

func TestPendingActionsDrainAndComplete(t *testing.T) {
	ts := newTestServer(t)

	action := ts.outbox.Add(models.Patch{
		PatchID: "patch-1",
		Ops:     []models.Op{{Type: models.OpSetActiveGraph, ActiveGraph: "g1"}},
		Meta:    models.Meta{CID: "cid-1"},
	})

	w := ts.do(t, http.MethodGet, "/api/v1/pending-actions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	w = ts.do(t, http.MethodPost, "/api/v1/actions/"+action.ActionID+"/complete",
		completeActionRequest{Success: true})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/pending-actions", nil)
	body = decode(t, w)
	assert.Equal(t, float64(0), body["count"])

	w = ts.do(t, http.MethodPost, "/api/v1/actions/missing/complete",
		completeActionRequest{Success: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActionFailureReachesChat(t *testing.T) {
	ts := newTestServer(t)

	action := ts.outbox.Add(models.Patch{
		PatchID: "patch-1",
		Ops:     []models.Op{{Type: models.OpSetActiveGraph, ActiveGraph: "g1"}},
		Meta:    models.Meta{CID: "cid-1"},
	})

	w := ts.do(t, http.MethodPost, "/api/v1/actions/"+action.ActionID+"/complete",
		completeActionRequest{Success: false, Message: "canvas rejected the move"})
	require.Equal(t, http.StatusOK, w.Code)

	msgs := ts.chat.Messages("cid-1")
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Content, "canvas rejected the move")
}

func TestActionFeedbackPostsToChat(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/actions/a1/feedback",
		actionFeedbackRequest{CID: "cid-1", Message: "node overlaps the group box"})
	require.Equal(t, http.StatusOK, w.Code)

	msgs := ts.chat.Messages("cid-1")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "node overlaps the group box")
	assert.Equal(t, "a1", msgs[0].Payload["actionId"])
}

func TestChatMessagesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.chat.PostRead("cid-9", "verify_state", map[string]any{"graphCount": 0})

	w := ts.do(t, http.MethodGet, "/api/v1/chat/cid-9/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestTraceTimelineEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.tracer.RecordStage("cid-7", "plan", time.Now(), nil)

	w := ts.do(t, http.MethodGet, "/api/v1/trace/cid-7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	spans, ok := body["spans"].([]any)
	require.True(t, ok)
	assert.Len(t, spans, 1)
}
