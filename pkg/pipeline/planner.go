package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/graphweave/bridge/pkg/chat"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/tools"
	"github.com/graphweave/bridge/pkg/trace"
)

// Trace stage names recorded against the correlation id.
const (
	StagePlan    = "plan"
	StageExecute = "execute"
	StageAudit   = "audit"
	StageCommit  = "commit"
	StageFuzzy   = "fuzzy"
)

// Planner fans goals into tasks. One goal is consumed per run; each tool
// call becomes one task on the task queue, partitioned by thread so a
// conversation's tasks execute in order.
type Planner struct {
	queues   *queue.Manager
	registry *tools.Registry
	chatCh   *chat.Channel
	tracer   *trace.Tracer
}

// NewPlanner wires a planner stage.
func NewPlanner(q *queue.Manager, r *tools.Registry, c *chat.Channel, t *trace.Tracer) *Planner {
	return &Planner{queues: q, registry: r, chatCh: c, tracer: t}
}

// RunOnce consumes at most one goal. Returns false when the goal queue had
// nothing eligible.
func (p *Planner) RunOnce(ctx context.Context) (bool, error) {
	recs, err := p.queues.Pull(queue.GoalQueue, 1)
	if err != nil {
		if errors.Is(err, queue.ErrNoRecords) {
			return false, nil
		}
		return false, err
	}
	rec := recs[0]

	goal, ok := rec.Payload.(models.Goal)
	if !ok {
		slog.Error("Discarding malformed goal record", "recordId", rec.ID)
		return true, p.queues.Ack(queue.GoalQueue, rec.LeaseID)
	}

	start := time.Now()
	planned := p.plan(goal)
	p.tracer.RecordStage(goal.Meta.CID, StagePlan, start, nil)
	slog.Info("Planned goal", "goalId", goal.GoalID, "threadId", goal.ThreadID,
		"tasks", planned, "cid", goal.Meta.CID)

	return true, p.queues.Ack(queue.GoalQueue, rec.LeaseID)
}

// plan enqueues one task per known tool call. Calls naming a tool outside
// the registry are reported on the chat channel and skipped; a goal with
// no usable calls degrades to a single verify_state task so the turn still
// produces observable output.
func (p *Planner) plan(goal models.Goal) int {
	planned := 0
	for _, call := range goal.Calls {
		if _, known := p.registry.Get(call.Tool); !known {
			errText := tools.ErrToolNotAllowed + ": " + call.Tool
			p.chatCh.PostError(goal.Meta.CID, call.Tool, errText, rawArgs(call.Args),
				Guidance(call.Tool, errText))
			p.tracer.Record(goal.Meta.CID, trace.Span{
				Stage: StagePlan, StartedAt: time.Now(), EndedAt: time.Now(),
				Status: trace.StatusError, Detail: errText,
			})
			continue
		}
		p.enqueueTask(goal, call.Tool, call.Args)
		planned++
	}

	if planned == 0 {
		p.enqueueTask(goal, tools.VerifyState, json.RawMessage(`{}`))
		planned = 1
	}
	return planned
}

func (p *Planner) enqueueTask(goal models.Goal, tool string, args json.RawMessage) {
	task := models.Task{
		TaskID:   uuid.NewString(),
		GoalID:   goal.GoalID,
		ThreadID: goal.ThreadID,
		Tool:     tool,
		Args:     args,
		Meta:     goal.Meta,
	}
	p.queues.Enqueue(queue.TaskQueue, task, queue.EnqueueOptions{PartitionKey: goal.ThreadID})
}

// rawArgs decodes tool arguments for chat payloads, falling back to the raw
// string when they are not valid JSON.
func rawArgs(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
