package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/profile"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/tools"
)

type fakeLLM struct {
	result  *PlanResult
	err     error
	lastReq PlanRequest
}

func (f *fakeLLM) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeScheduler struct {
	started bool
}

func (f *fakeScheduler) Start()        { f.started = true }
func (f *fakeScheduler) Running() bool { return f.started }

func newCoordinator(t *testing.T, llm LLM) (*Coordinator, *queue.Manager, profile.Store, *fakeScheduler) {
	t.Helper()
	queues := queue.NewManager(time.Minute)
	profiles := profile.NewMemoryStore()
	sched := &fakeScheduler{}
	c := NewCoordinator(llm, queues, tools.NewRegistry(tools.DefaultSpecs()),
		mirror.New(), profiles, sched)
	return c, queues, profiles, sched
}

func TestTurnWithoutAnyKeyIsRejected(t *testing.T) {
	llm := &fakeLLM{result: &PlanResult{Content: "hi"}}
	c, _, _, sched := newCoordinator(t, llm)

	_, err := c.HandleTurn(context.Background(), TurnRequest{Message: "build something"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, sched.started)
}

func TestQuestionTurnReturnsProse(t *testing.T) {
	llm := &fakeLLM{result: &PlanResult{Content: "Graphs hold nodes and edges."}}
	c, queues, _, sched := newCoordinator(t, llm)

	res, err := c.HandleTurn(context.Background(), TurnRequest{
		Message: "what is a graph?",
		APIKey:  "sk-request",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Graphs hold nodes and edges.", res.Response)
	assert.Empty(t, res.ToolCalls)
	assert.Empty(t, res.GoalID)
	assert.NotEmpty(t, res.CID, "a correlation id is minted when none is given")
	assert.Equal(t, 0, queues.Depth(queue.GoalQueue))
	assert.False(t, sched.started, "no pipeline work, no scheduler start")
}

func TestBuildTurnEnqueuesGoalAndStartsScheduler(t *testing.T) {
	llm := &fakeLLM{result: &PlanResult{
		Content: "Building the graph.",
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "create_graph", Arguments: json.RawMessage(`{"name":"Cities"}`)},
			{ID: "call_2", Name: "create_node", Arguments: json.RawMessage(`{"name":"Paris"}`)},
		},
	}}
	c, queues, _, sched := newCoordinator(t, llm)

	res, err := c.HandleTurn(context.Background(), TurnRequest{
		Message:  "make a cities graph",
		APIKey:   "sk-request",
		CID:      "cid-1",
		ThreadID: "thread-1",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "cid-1", res.CID)
	assert.NotEmpty(t, res.GoalID)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "create_graph", res.ToolCalls[0].Tool)

	assert.True(t, sched.started)

	recs, err := queues.Pull(queue.GoalQueue, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "thread-1", recs[0].PartitionKey)

	goal, ok := recs[0].Payload.(models.Goal)
	require.True(t, ok)
	assert.Equal(t, res.GoalID, goal.GoalID)
	assert.Equal(t, "thread-1", goal.ThreadID)
	assert.Equal(t, "cid-1", goal.Meta.CID)
	require.Len(t, goal.Calls, 2)
	assert.JSONEq(t, `{"name":"Paris"}`, string(goal.Calls[1].Args))
}

func TestActiveProfileSuppliesCredentials(t *testing.T) {
	llm := &fakeLLM{result: &PlanResult{Content: "ok"}}
	c, _, profiles, _ := newCoordinator(t, llm)

	_, err := profiles.Store(context.Background(), profile.Profile{
		Name:     "Work",
		Provider: "openrouter",
		Key:      "sk-profile",
	})
	require.NoError(t, err)

	_, err = c.HandleTurn(context.Background(), TurnRequest{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "sk-profile", llm.lastReq.APIKey)
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", llm.lastReq.Endpoint)
	assert.Equal(t, "openai/gpt-4o", llm.lastReq.Model)
}

func TestRequestKeyOverridesProfileKey(t *testing.T) {
	llm := &fakeLLM{result: &PlanResult{Content: "ok"}}
	c, _, profiles, _ := newCoordinator(t, llm)

	_, err := profiles.Store(context.Background(), profile.Profile{
		Name:     "Work",
		Provider: "openai",
		Key:      "sk-profile",
	})
	require.NoError(t, err)

	_, err = c.HandleTurn(context.Background(), TurnRequest{
		Message: "hello",
		APIKey:  "sk-override",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-override", llm.lastReq.APIKey)
}

func TestPromptCarriesWorkspaceShape(t *testing.T) {
	llm := &fakeLLM{result: &PlanResult{Content: "ok"}}
	c, _, _, _ := newCoordinator(t, llm)

	require.NoError(t, c.mirror.Apply([]models.Op{
		{Type: models.OpCreateNewGraph, Graph: &models.Graph{ID: "g1", Name: "Cities"}},
		{Type: models.OpSetActiveGraph, ActiveGraph: "g1"},
	}))

	_, err := c.HandleTurn(context.Background(), TurnRequest{
		Message: "add another node",
		Context: "user has node i-paris selected",
		APIKey:  "sk-request",
	})
	require.NoError(t, err)

	require.NotEmpty(t, llm.lastReq.Messages)
	system := llm.lastReq.Messages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, `Active graph: "Cities"`)
	assert.Contains(t, system.Content, "Existing graphs: Cities")

	last := llm.lastReq.Messages[len(llm.lastReq.Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "add another node", last.Content)

	assert.Contains(t, llm.lastReq.Messages[1].Content, "i-paris selected")
	assert.NotEmpty(t, llm.lastReq.Tools, "tool definitions ride along every planning call")
}
