package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/trace"
)

// Auditor re-checks every patch against the current mirror before it may
// commit. The executor already validated its inputs, but the mirror can
// move between execution and audit; the auditor is the last gate.
type Auditor struct {
	queues *queue.Manager
	mirror *mirror.Mirror
	tracer *trace.Tracer
}

// NewAuditor wires an auditor stage.
func NewAuditor(q *queue.Manager, m *mirror.Mirror, t *trace.Tracer) *Auditor {
	return &Auditor{queues: q, mirror: m, tracer: t}
}

// RunOnce audits at most one patch and stamps a review either way.
func (a *Auditor) RunOnce(ctx context.Context) (bool, error) {
	recs, err := a.queues.Pull(queue.PatchQueue, 1)
	if err != nil {
		if errors.Is(err, queue.ErrNoRecords) {
			return false, nil
		}
		return false, err
	}
	rec := recs[0]

	patch, ok := rec.Payload.(models.Patch)
	if !ok {
		slog.Error("Discarding malformed patch record", "recordId", rec.ID)
		return true, a.queues.Ack(queue.PatchQueue, rec.LeaseID)
	}

	start := time.Now()
	review := models.Review{
		ReviewStatus: models.ReviewApproved,
		GraphID:      patch.GraphID,
		Patch:        patch,
		Meta:         patch.Meta,
	}
	if reason := a.audit(patch); reason != "" {
		review.ReviewStatus = models.ReviewRejected
		review.Reason = reason
		slog.Warn("Patch rejected", "patchId", patch.PatchID, "reason", reason,
			"cid", patch.Meta.CID)
	}

	a.queues.Enqueue(queue.ReviewQueue, review, queue.EnqueueOptions{PartitionKey: patch.ThreadID})
	a.tracer.RecordStage(patch.Meta.CID, StageAudit, start, reasonErr(review.Reason))

	return true, a.queues.Ack(queue.PatchQueue, rec.LeaseID)
}

func reasonErr(reason string) error {
	if reason == "" {
		return nil
	}
	return errors.New(reason)
}

// audit walks the ops in order, tracking entities the patch itself creates
// so later ops may reference them. Returns "" when the patch is sound.
func (a *Auditor) audit(patch models.Patch) string {
	if len(patch.Ops) == 0 {
		return "patch carries no ops"
	}

	created := newPatchScope()
	for i, op := range patch.Ops {
		if !models.KnownOpType(op.Type) {
			return fmt.Sprintf("op %d: unknown type %q", i, op.Type)
		}
		if reason := a.auditOp(op, created); reason != "" {
			return fmt.Sprintf("op %d (%s): %s", i, op.Type, reason)
		}
	}
	return ""
}

// patchScope tracks ids created earlier in the same patch.
type patchScope struct {
	graphs     map[string]bool
	prototypes map[string]bool
	instances  map[string]bool
	edges      map[string]bool
}

func newPatchScope() *patchScope {
	return &patchScope{
		graphs:     make(map[string]bool),
		prototypes: make(map[string]bool),
		instances:  make(map[string]bool),
		edges:      make(map[string]bool),
	}
}

func (a *Auditor) knownGraph(id string, sc *patchScope) bool {
	if sc.graphs[id] {
		return true
	}
	if _, placeholder := models.ResolveNewGraphPlaceholder(id); placeholder {
		// Placeholders only audit clean when the creating op came first.
		return false
	}
	return a.mirror.GraphByID(id) != nil
}

func (a *Auditor) knownPrototype(id string, sc *patchScope) bool {
	return sc.prototypes[id] || a.mirror.PrototypeByID(id) != nil
}

func (a *Auditor) knownInstance(id string, sc *patchScope) bool {
	return sc.instances[id] || a.mirror.InstanceByID(id) != nil
}

func (a *Auditor) knownEdge(id string, sc *patchScope) bool {
	return sc.edges[id] || a.mirror.EdgeByID(id) != nil
}

func (a *Auditor) auditOp(op models.Op, sc *patchScope) string {
	switch op.Type {
	case models.OpCreateNewGraph:
		if op.Graph == nil || op.Graph.ID == "" || op.Graph.Name == "" {
			return "graph payload incomplete"
		}
		sc.graphs[op.Graph.ID] = true

	case models.OpDeleteGraph:
		if !a.knownGraph(op.GraphID, sc) {
			return fmt.Sprintf("graph %q does not exist", op.GraphID)
		}

	case models.OpAddNodePrototype:
		if op.Prototype == nil || op.Prototype.ID == "" || op.Prototype.Name == "" {
			return "prototype payload incomplete"
		}
		sc.prototypes[op.Prototype.ID] = true

	case models.OpUpdateNodePrototype:
		if op.Prototype == nil || !a.knownPrototype(op.Prototype.ID, sc) {
			return "prototype does not exist"
		}

	case models.OpDeleteNodePrototype:
		if !a.knownPrototype(op.PrototypeID, sc) {
			return fmt.Sprintf("prototype %q does not exist", op.PrototypeID)
		}

	case models.OpAddNodeInstance:
		if op.Instance == nil || op.Instance.ID == "" {
			return "instance payload incomplete"
		}
		if !a.knownPrototype(op.Instance.PrototypeID, sc) {
			return fmt.Sprintf("prototype %q does not exist", op.Instance.PrototypeID)
		}
		if !a.knownGraph(op.Instance.GraphID, sc) {
			return fmt.Sprintf("graph %q does not exist", op.Instance.GraphID)
		}
		sc.instances[op.Instance.ID] = true

	case models.OpMoveNodeInstance:
		if op.X == nil || op.Y == nil {
			return "move without coordinates"
		}
		if !a.knownInstance(op.InstanceID, sc) {
			return fmt.Sprintf("instance %q does not exist", op.InstanceID)
		}

	case models.OpDeleteNodeInstance:
		if !a.knownInstance(op.InstanceID, sc) {
			return fmt.Sprintf("instance %q does not exist", op.InstanceID)
		}

	case models.OpAddEdge:
		if op.Edge == nil || op.Edge.ID == "" {
			return "edge payload incomplete"
		}
		for _, id := range []string{op.Edge.SourceID, op.Edge.DestinationID} {
			if !a.knownInstance(id, sc) {
				return fmt.Sprintf("endpoint %q does not exist", id)
			}
		}
		for _, id := range op.Edge.ArrowsToward {
			if id != op.Edge.SourceID && id != op.Edge.DestinationID {
				return fmt.Sprintf("arrow target %q is not an endpoint", id)
			}
		}
		for _, id := range op.Edge.DefinitionNodeIDs {
			if !a.knownPrototype(id, sc) {
				return fmt.Sprintf("definition prototype %q does not exist", id)
			}
		}
		sc.edges[op.Edge.ID] = true

	case models.OpDeleteEdge:
		if !a.knownEdge(op.EdgeID, sc) {
			return fmt.Sprintf("edge %q does not exist", op.EdgeID)
		}

	case models.OpUpdateEdgeDefinition:
		if !a.knownEdge(op.EdgeID, sc) {
			return fmt.Sprintf("edge %q does not exist", op.EdgeID)
		}
		for _, id := range op.DefinitionNodeIDs {
			if !a.knownPrototype(id, sc) {
				return fmt.Sprintf("definition prototype %q does not exist", id)
			}
		}

	case models.OpCreateGroup, models.OpConvertToNodeGroup:
		if len(op.MemberIDs) == 0 {
			return "group without members"
		}
		for _, id := range op.MemberIDs {
			if !a.knownInstance(id, sc) {
				return fmt.Sprintf("member %q does not exist", id)
			}
		}

	case models.OpSetActiveGraph:
		if !a.knownGraph(op.ActiveGraph, sc) {
			return fmt.Sprintf("graph %q does not exist", op.ActiveGraph)
		}

	case models.OpReadResponse:
		if op.Payload == nil {
			return "read response without payload"
		}
	}
	return ""
}
