package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graphweave/bridge/pkg/chat"
	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/trace"
)

// Committer lands approved reviews: placeholder graph ids become real ids,
// ops apply to the mirror, mutations queue in the outbox for the UI, and
// read responses flow to the chat channel. Rejected reviews surface their
// reason in chat and stop there.
type Committer struct {
	queues *queue.Manager
	mirror *mirror.Mirror
	outbox *Outbox
	chatCh *chat.Channel
	tracer *trace.Tracer
}

// NewCommitter wires a committer stage.
func NewCommitter(q *queue.Manager, m *mirror.Mirror, o *Outbox, c *chat.Channel, t *trace.Tracer) *Committer {
	return &Committer{queues: q, mirror: m, outbox: o, chatCh: c, tracer: t}
}

// RunOnce commits at most one review.
func (c *Committer) RunOnce(ctx context.Context) (bool, error) {
	recs, err := c.queues.Pull(queue.ReviewQueue, 1)
	if err != nil {
		if errors.Is(err, queue.ErrNoRecords) {
			return false, nil
		}
		return false, err
	}
	rec := recs[0]

	review, ok := rec.Payload.(models.Review)
	if !ok {
		slog.Error("Discarding malformed review record", "recordId", rec.ID)
		return true, c.queues.Ack(queue.ReviewQueue, rec.LeaseID)
	}

	start := time.Now()
	commitErr := c.commit(review)
	c.tracer.RecordStage(review.Meta.CID, StageCommit, start, commitErr)

	return true, c.queues.Ack(queue.ReviewQueue, rec.LeaseID)
}

func (c *Committer) commit(review models.Review) error {
	patch := review.Patch

	if review.ReviewStatus != models.ReviewApproved {
		c.chatCh.Post(models.ChatMessage{
			CID:     review.Meta.CID,
			Role:    models.ChatRoleSystem,
			Content: fmt.Sprintf("Patch %s was rejected: %s", patch.PatchID, review.Reason),
			Payload: map[string]any{"patchId": patch.PatchID, "reason": review.Reason},
		})
		return errors.New(review.Reason)
	}

	resolvePlaceholders(&patch)

	if err := c.mirror.Apply(patch.Ops); err != nil {
		slog.Error("Patch failed to apply", "patchId", patch.PatchID, "error", err,
			"cid", patch.Meta.CID)
		c.chatCh.PostError(patch.Meta.CID, "commit", err.Error(), nil,
			Guidance("commit", err.Error()))
		return err
	}

	mutations := make([]models.Op, 0, len(patch.Ops))
	for _, op := range patch.Ops {
		if op.Type == models.OpReadResponse {
			tool, _ := op.Payload["tool"].(string)
			c.chatCh.PostRead(patch.Meta.CID, tool, op.Payload)
			continue
		}
		mutations = append(mutations, op)
	}

	if len(mutations) > 0 {
		outgoing := patch
		outgoing.Ops = mutations
		action := c.outbox.Add(outgoing)
		slog.Info("Patch committed", "patchId", patch.PatchID, "actionId", action.ActionID,
			"ops", len(mutations), "cid", patch.Meta.CID)
	}
	return nil
}

// resolvePlaceholders mints a real id for every placeholder-created graph
// and rewrites all references to it across the patch.
func resolvePlaceholders(patch *models.Patch) {
	resolved := map[string]string{}
	for i := range patch.Ops {
		op := &patch.Ops[i]
		if op.Type == models.OpCreateNewGraph && op.Graph != nil {
			if _, ok := models.ResolveNewGraphPlaceholder(op.Graph.ID); ok {
				real := uuid.NewString()
				resolved[op.Graph.ID] = real
				op.Graph.ID = real
			}
		}
	}
	if len(resolved) == 0 {
		return
	}

	swap := func(id string) string {
		if real, ok := resolved[id]; ok {
			return real
		}
		return id
	}
	patch.GraphID = swap(patch.GraphID)
	for i := range patch.Ops {
		op := &patch.Ops[i]
		op.GraphID = swap(op.GraphID)
		op.ActiveGraph = swap(op.ActiveGraph)
		if op.Instance != nil {
			op.Instance.GraphID = swap(op.Instance.GraphID)
		}
	}
}

// Outbox holds approved patches until the UI drains and acknowledges them.
// Draining is non-destructive; an action leaves only on completion.
type Outbox struct {
	chatCh  *chat.Channel
	mu      sync.Mutex
	pending []models.PendingAction
}

// NewOutbox creates an empty outbox. The chat channel receives feedback
// when the UI reports an action failed.
func NewOutbox(c *chat.Channel) *Outbox {
	return &Outbox{chatCh: c}
}

// Add enqueues one approved patch and returns its pending action.
func (o *Outbox) Add(patch models.Patch) models.PendingAction {
	action := models.PendingAction{ActionID: uuid.NewString(), Patch: patch}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, action)
	return action
}

// Pending returns the queued actions oldest first, without removing them.
// The UI may poll repeatedly; redelivery is safe because action ids are
// stable.
func (o *Outbox) Pending() []models.PendingAction {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.PendingAction(nil), o.pending...)
}

// Complete removes the action. A failure report posts the UI's message back
// to the originating conversation so the agent knows its patch did not land.
func (o *Outbox) Complete(actionID string, success bool, message string) bool {
	o.mu.Lock()
	var done *models.PendingAction
	for i := range o.pending {
		if o.pending[i].ActionID == actionID {
			action := o.pending[i]
			done = &action
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	if done == nil {
		return false
	}
	if !success {
		errText := message
		if errText == "" {
			errText = "the canvas reported a failure applying the patch"
		}
		o.chatCh.PostError(done.Patch.Meta.CID, "apply", errText, nil, "")
		slog.Warn("Pending action failed in UI", "actionId", actionID, "message", message)
	}
	return true
}

// Depth returns the number of queued actions.
func (o *Outbox) Depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
