package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/profile"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/tools"
)

// ErrMissingAPIKey indicates neither the request nor the active profile
// carries a provider key.
var ErrMissingAPIKey = errors.New("API key required")

// SchedulerControl is the slice of the scheduler the coordinator needs:
// make sure the pipeline is running once work exists.
type SchedulerControl interface {
	Start()
	Running() bool
}

// TurnRequest is one user turn.
type TurnRequest struct {
	Message  string `json:"message"`
	Context  string `json:"context,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	CID      string `json:"cid,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}

// TurnResult is the coordinator's receipt: prose for question-answering
// turns, a goal id and echoed tool calls for build turns.
type TurnResult struct {
	Success   bool              `json:"success"`
	Response  string            `json:"response,omitempty"`
	ToolCalls []models.ToolCall `json:"toolCalls,omitempty"`
	GoalID    string            `json:"goalId,omitempty"`
	CID       string            `json:"cid"`
}

// Coordinator is the entry point for agent turns. It plans with the LLM
// and hands build work to the pipeline.
type Coordinator struct {
	llm      LLM
	queues   *queue.Manager
	registry *tools.Registry
	mirror   *mirror.Mirror
	profiles profile.Store
	sched    SchedulerControl

	maxTokens   int
	temperature float64
}

// NewCoordinator wires the coordinator.
func NewCoordinator(llm LLM, q *queue.Manager, r *tools.Registry, m *mirror.Mirror,
	p profile.Store, sched SchedulerControl) *Coordinator {
	return &Coordinator{
		llm: llm, queues: q, registry: r, mirror: m, profiles: p, sched: sched,
		maxTokens:   4096,
		temperature: 0.2,
	}
}

// HandleTurn runs one turn: guard on credentials, plan, then either answer
// directly or enqueue a goal and make sure the scheduler is draining it.
func (c *Coordinator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	cid := req.CID
	if cid == "" {
		cid = uuid.NewString()
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = cid
	}

	planReq, err := c.credentials(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}
	planReq.Messages = c.buildMessages(req)
	planReq.Tools = c.registry.Definitions()
	planReq.MaxTokens = c.maxTokens
	planReq.Temperature = c.temperature

	plan, err := c.llm.Plan(ctx, planReq)
	if err != nil {
		return nil, err
	}

	// No tool calls means a question-answering turn: the prose is the
	// whole result.
	if len(plan.ToolCalls) == 0 {
		slog.Info("Turn answered directly", "cid", cid)
		return &TurnResult{Success: true, Response: plan.Content, CID: cid}, nil
	}

	calls := make([]models.ToolCall, 0, len(plan.ToolCalls))
	for _, tc := range plan.ToolCalls {
		calls = append(calls, models.ToolCall{Tool: tc.Name, Args: tc.Arguments})
	}

	goal := models.Goal{
		GoalID:   uuid.NewString(),
		ThreadID: threadID,
		Calls:    calls,
		Meta:     models.Meta{CID: cid, ThreadID: threadID},
	}
	c.queues.Enqueue(queue.GoalQueue, goal, queue.EnqueueOptions{PartitionKey: threadID})
	c.sched.Start()

	slog.Info("Turn planned", "cid", cid, "goalId", goal.GoalID, "toolCalls", len(calls))
	return &TurnResult{
		Success:   true,
		Response:  plan.Content,
		ToolCalls: calls,
		GoalID:    goal.GoalID,
		CID:       cid,
	}, nil
}

// credentials resolves key, endpoint, and model: the request's key wins,
// the active profile fills the rest.
func (c *Coordinator) credentials(ctx context.Context, requestKey string) (PlanRequest, error) {
	req := PlanRequest{APIKey: requestKey}

	active, err := c.profiles.GetActive(ctx)
	if err != nil && !errors.Is(err, profile.ErrNoActiveProfile) {
		return PlanRequest{}, fmt.Errorf("load active profile: %w", err)
	}
	if active != nil {
		req.Endpoint = active.Endpoint
		req.Model = active.Model
		if req.APIKey == "" {
			req.APIKey = active.PlainKey()
		}
	}

	if req.APIKey == "" {
		return PlanRequest{}, ErrMissingAPIKey
	}
	if req.Endpoint == "" || req.Model == "" {
		fallback := profile.Profile{Provider: "openai", Endpoint: req.Endpoint, Model: req.Model}
		fallback.ApplyDefaults()
		req.Endpoint = fallback.Endpoint
		req.Model = fallback.Model
	}
	return req, nil
}

// buildMessages assembles the system prompt from the mirror's current shape
// plus the user's message and optional UI context.
func (c *Coordinator) buildMessages(req TurnRequest) []Message {
	var sb strings.Builder
	sb.WriteString("You are a graph-modeling assistant working on a shared canvas. ")
	sb.WriteString("Use the provided tools to create and modify graphs; answer in prose only when no change is needed.\n")

	summary := c.mirror.Summary()
	fmt.Fprintf(&sb, "Workspace: %d graphs, %d prototypes, %d instances, %d edges.\n",
		summary.GraphCount, summary.PrototypeCount, summary.InstanceCount, summary.EdgeCount)

	if active := c.mirror.ActiveGraph(); active != nil {
		fmt.Fprintf(&sb, "Active graph: %q (%d nodes, %d edges).\n",
			active.Name, len(active.InstanceIDs), len(active.EdgeIDs))
	} else {
		sb.WriteString("No graph is active.\n")
	}
	if graphs := c.mirror.ListGraphs(); len(graphs) > 0 {
		names := make([]string, 0, len(graphs))
		for _, g := range graphs {
			names = append(names, g.Name)
		}
		fmt.Fprintf(&sb, "Existing graphs: %s.\n", strings.Join(names, ", "))
	}

	messages := []Message{{Role: "system", Content: sb.String()}}
	if req.Context != "" {
		messages = append(messages, Message{Role: "system", Content: "UI context: " + req.Context})
	}
	messages = append(messages, Message{Role: "user", Content: req.Message})
	return messages
}
