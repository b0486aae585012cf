package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/graphweave/bridge/pkg/chat"
	"github.com/graphweave/bridge/pkg/graph"
	"github.com/graphweave/bridge/pkg/layout"
	"github.com/graphweave/bridge/pkg/mirror"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/queue"
	"github.com/graphweave/bridge/pkg/tools"
	"github.com/graphweave/bridge/pkg/trace"
)

// Executor turns tasks into patches. It reads the mirror but never writes
// it; every mutation travels as ops through the audit and commit stages.
type Executor struct {
	queues   *queue.Manager
	mirror   *mirror.Mirror
	registry *tools.Registry
	layout   *layout.Engine
	chatCh   *chat.Channel
	tracer   *trace.Tracer
	external *External

	fuzzyThreshold float64
}

// NewExecutor wires an executor stage. A non-positive threshold falls back
// to the default fuzzy-match threshold.
func NewExecutor(q *queue.Manager, m *mirror.Mirror, r *tools.Registry, l *layout.Engine,
	c *chat.Channel, t *trace.Tracer, ext *External, fuzzyThreshold float64) *Executor {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = graph.DefaultFuzzyThreshold
	}
	return &Executor{
		queues: q, mirror: m, registry: r, layout: l,
		chatCh: c, tracer: t, external: ext,
		fuzzyThreshold: fuzzyThreshold,
	}
}

// RunOnce consumes at most one task. Validation or synthesis failures that
// cannot heal on retry are acked and reported on the chat channel; anything
// else is nacked for redelivery.
func (e *Executor) RunOnce(ctx context.Context) (bool, error) {
	recs, err := e.queues.Pull(queue.TaskQueue, 1)
	if err != nil {
		if errors.Is(err, queue.ErrNoRecords) {
			return false, nil
		}
		return false, err
	}
	rec := recs[0]

	task, ok := rec.Payload.(models.Task)
	if !ok {
		slog.Error("Discarding malformed task record", "recordId", rec.ID)
		return true, e.queues.Ack(queue.TaskQueue, rec.LeaseID)
	}

	start := time.Now()
	ops, graphID, execErr := e.execute(ctx, task)
	if execErr != nil {
		return true, e.fail(rec, task, start, execErr)
	}

	patch := models.Patch{
		PatchID:  uuid.NewString(),
		ThreadID: task.ThreadID,
		GraphID:  graphID,
		Ops:      ops,
		Meta:     task.Meta,
	}
	e.queues.Enqueue(queue.PatchQueue, patch, queue.EnqueueOptions{PartitionKey: task.ThreadID})
	e.tracer.RecordStage(task.Meta.CID, StageExecute, start, nil)
	slog.Info("Executed task", "taskId", task.TaskID, "tool", task.Tool,
		"ops", len(ops), "cid", task.Meta.CID)

	return true, e.queues.Ack(queue.TaskQueue, rec.LeaseID)
}

// fail classifies the error. Permanent failures ack the task, surface
// guidance on the chat channel, and still return the error so the scheduler
// records it in its metrics; transient ones nack so the lease queue
// redelivers.
func (e *Executor) fail(rec *queue.Record, task models.Task, start time.Time, execErr error) error {
	e.tracer.RecordStage(task.Meta.CID, StageExecute, start, execErr)

	if IsPermanent(execErr.Error()) {
		slog.Warn("Task failed permanently", "taskId", task.TaskID, "tool", task.Tool,
			"error", execErr, "cid", task.Meta.CID)
		e.chatCh.PostError(task.Meta.CID, task.Tool, execErr.Error(),
			rawArgs(task.Args), Guidance(task.Tool, execErr.Error()))
		if ackErr := e.queues.Ack(queue.TaskQueue, rec.LeaseID); ackErr != nil {
			return errors.Join(execErr, ackErr)
		}
		return execErr
	}

	slog.Warn("Task failed, will retry", "taskId", task.TaskID, "tool", task.Tool,
		"attempt", rec.Attempts, "error", execErr)
	return e.queues.Nack(queue.TaskQueue, rec.LeaseID)
}

// execute validates the arguments and dispatches on the tool name.
func (e *Executor) execute(ctx context.Context, task models.Task) ([]models.Op, string, error) {
	res := e.registry.Validate(task.Tool, task.Args)
	if !res.Valid {
		return nil, "", errors.New(res.Err)
	}
	args := res.Sanitized

	switch task.Tool {
	case tools.CreateGraph:
		return e.execCreateGraph(args)
	case tools.CreateNode:
		return e.execCreateNode(args, task.Meta)
	case tools.CreateNodePrototype:
		return e.execCreateNodePrototype(args, task.Meta)
	case tools.CreateNodeInstance:
		return e.execCreateNodeInstance(args)
	case tools.CreateEdge:
		return e.execCreateEdge(args)
	case tools.CreateSubgraph:
		return e.execCreateSubgraph(args, task.Meta)
	case tools.CreatePopulatedGraph:
		return e.execCreatePopulatedGraph(args, task.Meta)
	case tools.CreateSubgraphInNewGraph:
		return e.execCreateSubgraphInNewGraph(args, task.Meta)
	case tools.DefineConnections:
		return e.execDefineConnections(args, task.Meta)
	case tools.ReadGraphStructure:
		return e.execReadGraphStructure(args)
	case tools.GetEdgeInfo:
		return e.execGetEdgeInfo(args)
	case tools.GetNodeDefinition:
		return e.execGetNodeDefinition(args)
	case tools.SparqlQuery:
		return e.execSparqlQuery(ctx, args)
	case tools.SemanticSearch:
		return e.execSemanticSearch(ctx, args)
	case tools.UpdateNodePrototype:
		return e.execUpdateNodePrototype(args)
	case tools.DeleteNodeInstance:
		return e.execDeleteNodeInstance(args)
	case tools.DeleteNodePrototype:
		return e.execDeleteNodePrototype(args)
	case tools.DeleteGraph:
		return e.execDeleteGraph(args)
	case tools.DeleteEdge:
		return e.execDeleteEdge(args)
	case tools.CreateGroup:
		return e.execCreateGroup(args)
	case tools.ConvertToNodeGroup:
		return e.execConvertToNodeGroup(args)
	case tools.SetActiveGraph:
		return e.execSetActiveGraph(args)
	case tools.VerifyState:
		return e.execVerifyState()
	}
	return nil, "", fmt.Errorf("%s: %q", tools.ErrToolNotAllowed, task.Tool)
}

func (e *Executor) execCreateGraph(args map[string]any) ([]models.Op, string, error) {
	name := strArg(args, "name")
	color := strArg(args, "color")
	if color == "" {
		color = graph.ColorForName(name)
	}
	id := uuid.NewString()
	op := models.Op{
		Type: models.OpCreateNewGraph,
		Graph: &models.Graph{
			ID:          id,
			Name:        name,
			Description: strArg(args, "description"),
			Color:       color,
			InstanceIDs: []string{},
			EdgeIDs:     []string{},
		},
	}
	return []models.Op{op}, id, nil
}

// execCreateNode resolves the prototype by exact then fuzzy name before
// creating one. Deduplication stops at the prototype level: the instance is
// always appended, so a graph can hold several placements of one prototype.
func (e *Executor) execCreateNode(args map[string]any, meta models.Meta) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	name := strArg(args, "name")

	var ops []models.Op
	protoID, protoOp := e.resolvePrototype(name, strArg(args, "description"), strArg(args, "color"), meta)
	if protoOp != nil {
		ops = append(ops, *protoOp)
	}

	x, hasX := numArg(args, "x")
	y, hasY := numArg(args, "y")
	if !hasX || !hasY {
		p := e.placeSingle(graphID, name)
		x, y = p.X, p.Y
	}
	ops = append(ops, models.Op{
		Type:    models.OpAddNodeInstance,
		GraphID: graphID,
		Instance: &models.NodeInstance{
			ID:          uuid.NewString(),
			GraphID:     graphID,
			PrototypeID: protoID,
			X:           x,
			Y:           y,
		},
	})
	return ops, graphID, nil
}

func (e *Executor) execCreateNodePrototype(args map[string]any, meta models.Meta) ([]models.Op, string, error) {
	name := strArg(args, "name")
	protoID, protoOp := e.resolvePrototype(name, strArg(args, "description"), strArg(args, "color"), meta)
	if protoOp == nil {
		op := models.Op{
			Type: models.OpReadResponse,
			Payload: map[string]any{
				"tool":        tools.CreateNodePrototype,
				"reused":      true,
				"prototypeId": protoID,
			},
		}
		return []models.Op{op}, "", nil
	}
	if parent := strArg(args, "parent_type_id"); parent != "" {
		if e.mirror.PrototypeByID(parent) == nil {
			return nil, "", fmt.Errorf("prototype %q not found", parent)
		}
		protoOp.Prototype.ParentTypeID = parent
	}
	return []models.Op{*protoOp}, "", nil
}

func (e *Executor) execCreateNodeInstance(args map[string]any) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	protoID := strArg(args, "prototype_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	if e.mirror.PrototypeByID(protoID) == nil {
		return nil, "", fmt.Errorf("prototype %q not found", protoID)
	}

	x, _ := numArg(args, "x")
	y, _ := numArg(args, "y")
	op := models.Op{
		Type:    models.OpAddNodeInstance,
		GraphID: graphID,
		Instance: &models.NodeInstance{
			ID:          uuid.NewString(),
			GraphID:     graphID,
			PrototypeID: protoID,
			X:           x,
			Y:           y,
		},
	}
	return []models.Op{op}, graphID, nil
}

func (e *Executor) execCreateEdge(args map[string]any) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	srcID := strArg(args, "source_id")
	dstID := strArg(args, "destination_id")

	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	for _, id := range []string{srcID, dstID} {
		inst := e.mirror.InstanceByID(id)
		if inst == nil {
			return nil, "", fmt.Errorf("instance %q not found", id)
		}
		if inst.GraphID != graphID {
			return nil, "", fmt.Errorf("Invalid edge: instance %q belongs to another graph", id)
		}
	}
	typeNodeID := strArg(args, "type_node_id")
	if typeNodeID != "" && e.mirror.PrototypeByID(typeNodeID) == nil {
		return nil, "", fmt.Errorf("prototype %q not found", typeNodeID)
	}

	op := models.Op{
		Type:    models.OpAddEdge,
		GraphID: graphID,
		Edge: &models.Edge{
			ID:            uuid.NewString(),
			SourceID:      srcID,
			DestinationID: dstID,
			Name:          strArg(args, "name"),
			TypeNodeID:    typeNodeID,
			ArrowsToward:  arrowsFor(strArg(args, "direction"), srcID, dstID),
		},
	}
	return []models.Op{op}, graphID, nil
}

func (e *Executor) execUpdateNodePrototype(args map[string]any) ([]models.Op, string, error) {
	protoID := strArg(args, "prototype_id")
	proto := e.mirror.PrototypeByID(protoID)
	if proto == nil {
		return nil, "", fmt.Errorf("prototype %q not found", protoID)
	}
	if name := strArg(args, "name"); name != "" {
		proto.Name = name
	}
	if desc := strArg(args, "description"); desc != "" {
		proto.Description = desc
	}
	if color := strArg(args, "color"); color != "" {
		proto.Color = color
	}
	op := models.Op{Type: models.OpUpdateNodePrototype, Prototype: proto}
	return []models.Op{op}, "", nil
}

func (e *Executor) execDeleteNodeInstance(args map[string]any) ([]models.Op, string, error) {
	instID := strArg(args, "instance_id")
	inst := e.mirror.InstanceByID(instID)
	if inst == nil {
		return nil, "", fmt.Errorf("instance %q not found", instID)
	}
	op := models.Op{Type: models.OpDeleteNodeInstance, GraphID: inst.GraphID, InstanceID: instID}
	return []models.Op{op}, inst.GraphID, nil
}

func (e *Executor) execDeleteNodePrototype(args map[string]any) ([]models.Op, string, error) {
	protoID := strArg(args, "prototype_id")
	if e.mirror.PrototypeByID(protoID) == nil {
		return nil, "", fmt.Errorf("prototype %q not found", protoID)
	}
	op := models.Op{Type: models.OpDeleteNodePrototype, PrototypeID: protoID}
	return []models.Op{op}, "", nil
}

// execDeleteGraph accepts a graph id and falls back to a case-insensitive
// name lookup, so "delete the Cities graph" works without an id roundtrip.
func (e *Executor) execDeleteGraph(args map[string]any) ([]models.Op, string, error) {
	ref := strArg(args, "graph_id")
	g := e.mirror.GraphByID(ref)
	if g == nil {
		g = e.mirror.GraphByName(ref)
	}
	if g == nil {
		return nil, "", fmt.Errorf("graph %q not found", ref)
	}
	op := models.Op{Type: models.OpDeleteGraph, GraphID: g.ID}
	return []models.Op{op}, g.ID, nil
}

func (e *Executor) execDeleteEdge(args map[string]any) ([]models.Op, string, error) {
	edgeID := strArg(args, "edge_id")
	if e.mirror.EdgeByID(edgeID) == nil {
		return nil, "", fmt.Errorf("edge %q not found", edgeID)
	}
	op := models.Op{Type: models.OpDeleteEdge, EdgeID: edgeID}
	return []models.Op{op}, "", nil
}

func (e *Executor) execCreateGroup(args map[string]any) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	members := strListArg(args, "member_ids")
	for _, id := range members {
		if e.mirror.InstanceByID(id) == nil {
			return nil, "", fmt.Errorf("instance %q not found", id)
		}
	}
	op := models.Op{
		Type:      models.OpCreateGroup,
		GraphID:   graphID,
		GroupName: strArg(args, "name"),
		MemberIDs: members,
	}
	return []models.Op{op}, graphID, nil
}

func (e *Executor) execConvertToNodeGroup(args map[string]any) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	members := strListArg(args, "instance_ids")
	for _, id := range members {
		if e.mirror.InstanceByID(id) == nil {
			return nil, "", fmt.Errorf("instance %q not found", id)
		}
	}
	op := models.Op{
		Type:      models.OpConvertToNodeGroup,
		GraphID:   graphID,
		MemberIDs: members,
	}
	return []models.Op{op}, graphID, nil
}

func (e *Executor) execSetActiveGraph(args map[string]any) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	op := models.Op{Type: models.OpSetActiveGraph, ActiveGraph: graphID}
	return []models.Op{op}, graphID, nil
}

func (e *Executor) execVerifyState() ([]models.Op, string, error) {
	summary := e.mirror.Summary()
	op := models.Op{
		Type: models.OpReadResponse,
		Payload: map[string]any{
			"tool":          tools.VerifyState,
			"summary":       summary,
			"activeGraphId": e.mirror.ActiveGraphID(),
		},
	}
	return []models.Op{op}, "", nil
}

// resolvePrototype finds a prototype for the name: exact case-insensitive
// match first, then fuzzy similarity at the configured threshold, and only
// then a fresh one. Fuzzy reuse is traced so a turn's dedup decisions stay
// auditable.
func (e *Executor) resolvePrototype(name, description, color string, meta models.Meta) (string, *models.Op) {
	if p := e.mirror.PrototypeByName(name); p != nil {
		return p.ID, nil
	}
	if p, score := e.mirror.SimilarPrototype(name, e.fuzzyThreshold); p != nil {
		now := time.Now()
		e.tracer.Record(meta.CID, trace.Span{
			Stage: StageFuzzy, StartedAt: now, EndedAt: now, Status: trace.StatusOK,
			Detail: fmt.Sprintf("%q matched existing %q (%.2f)", name, p.Name, score),
		})
		slog.Info("Fuzzy prototype reuse", "requested", name, "matched", p.Name,
			"score", score, "cid", meta.CID)
		return p.ID, nil
	}

	if color == "" {
		color = graph.ColorForName(name)
	}
	op := &models.Op{
		Type: models.OpAddNodePrototype,
		Prototype: &models.NodePrototype{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			Color:       color,
		},
	}
	return op.Prototype.ID, op
}

// placeSingle positions one new node: at the origin when the graph is
// empty, otherwise on the partial-layout ring around the existing cluster.
func (e *Executor) placeSingle(graphID, label string) layout.Point {
	instances, _ := e.mirror.GraphContents(graphID)
	if len(instances) == 0 {
		return layout.Point{}
	}
	existing := make(map[string]layout.Point, len(instances))
	for _, inst := range instances {
		existing[inst.ID] = layout.Point{X: inst.X, Y: inst.Y}
	}
	id := "pending"
	positions := e.layout.Compute(
		[]layout.Node{{ID: id, Label: label}}, nil, layout.AlgorithmForce,
		layout.Options{Mode: layout.ModePartial, Existing: existing})
	return positions[id]
}

// arrowsFor maps a direction argument onto the arrow set. "reverse" points
// the arrowhead back at the source.
func arrowsFor(direction, srcID, dstID string) []string {
	switch direction {
	case "bidirectional":
		return []string{srcID, dstID}
	case "none":
		return nil
	case "reverse":
		return []string{srcID}
	default:
		return []string{dstID}
	}
}
