package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphweave/bridge/pkg/graph"
	"github.com/graphweave/bridge/pkg/layout"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/trace"
)

// nodeInput and edgeInput are the parsed shapes of the bulk-create tools'
// array arguments.
type nodeInput struct {
	name        string
	description string
	color       string
}

type edgeInput struct {
	source      string
	destination string
	name        string
	direction   string
	definition  string
}

func parseNodeInputs(args map[string]any) []nodeInput {
	var out []nodeInput
	for _, obj := range objListArg(args, "nodes") {
		n := nodeInput{
			name:        strArg(obj, "name"),
			description: strArg(obj, "description"),
			color:       strArg(obj, "color"),
		}
		if n.name != "" {
			out = append(out, n)
		}
	}
	return out
}

func parseEdgeInputs(args map[string]any) []edgeInput {
	var out []edgeInput
	for _, obj := range objListArg(args, "edges") {
		e := edgeInput{
			source:      strArg(obj, "source"),
			destination: strArg(obj, "destination"),
			name:        strArg(obj, "name"),
			direction:   strArg(obj, "direction"),
			definition:  strArg(obj, "definition"),
		}
		if e.source != "" && e.destination != "" {
			out = append(out, e)
		}
	}
	return out
}

func (e *Executor) execCreateSubgraph(args map[string]any, meta models.Meta) ([]models.Op, string, error) {
	graphID := strArg(args, "graph_id")
	if e.mirror.GraphByID(graphID) == nil {
		return nil, "", fmt.Errorf("graph %q not found", graphID)
	}
	ops, err := e.synthesizeSubgraph(graphID, false, args, meta)
	return ops, graphID, err
}

// execCreatePopulatedGraph creates the graph and its contents in one patch.
// The graph id is minted here, so the contents can reference it directly.
func (e *Executor) execCreatePopulatedGraph(args map[string]any, meta models.Meta) ([]models.Op, string, error) {
	name := strArg(args, "name")
	color := strArg(args, "color")
	if color == "" {
		color = graph.ColorForName(name)
	}
	graphID := uuid.NewString()
	ops := []models.Op{{
		Type: models.OpCreateNewGraph,
		Graph: &models.Graph{
			ID:          graphID,
			Name:        name,
			Description: strArg(args, "description"),
			Color:       color,
			InstanceIDs: []string{},
			EdgeIDs:     []string{},
		},
	}}

	contents, err := e.synthesizeSubgraph(graphID, true, args, meta)
	if err != nil {
		return nil, "", err
	}
	return append(ops, contents...), graphID, nil
}

// execCreateSubgraphInNewGraph defers graph-id assignment to the committer:
// every op references the placeholder id, which the committer resolves once
// the createNewGraph op at the head of the patch lands.
func (e *Executor) execCreateSubgraphInNewGraph(args map[string]any, meta models.Meta) ([]models.Op, string, error) {
	name := strArg(args, "graph_name")
	placeholder := models.NewGraphPlaceholder(name)
	ops := []models.Op{{
		Type: models.OpCreateNewGraph,
		Graph: &models.Graph{
			ID:          placeholder,
			Name:        name,
			Description: strArg(args, "description"),
			Color:       graph.ColorForName(name),
			InstanceIDs: []string{},
			EdgeIDs:     []string{},
		},
	}}

	contents, err := e.synthesizeSubgraph(placeholder, true, args, meta)
	if err != nil {
		return nil, "", err
	}
	return append(ops, contents...), placeholder, nil
}

// synthesizeSubgraph builds the op list for a batch of nodes and edges:
// prototype resolution with batch-level and mirror-level dedup, instance
// reuse, deterministic layout, and edge synthesis with optional definition
// prototypes. inNewGraph marks a target graph created earlier in the same
// patch, which therefore has no existing contents to anchor or reuse.
func (e *Executor) synthesizeSubgraph(graphID string, inNewGraph bool, args map[string]any, meta models.Meta) ([]models.Op, error) {
	nodes := parseNodeInputs(args)
	edges := parseEdgeInputs(args)
	algorithm := layout.Algorithm(strArg(args, "layout"))
	mode := strArg(args, "layout_mode")

	var ops []models.Op

	// Pass 1: prototypes. The batch cache dedups within the call; the
	// mirror dedups against the workspace, exact first then fuzzy.
	protoByName := map[string]string{} // folded name → prototype id
	for _, n := range nodes {
		folded := foldName(n.name)
		if _, ok := protoByName[folded]; ok {
			continue
		}
		protoID, protoOp := e.resolvePrototype(n.name, n.description, n.color, meta)
		if protoOp != nil {
			ops = append(ops, *protoOp)
		}
		protoByName[folded] = protoID
	}

	// Pass 2: instances. Existing placements of a resolved prototype are
	// reused rather than duplicated.
	var existingInstances []models.NodeInstance
	var existingEdges []models.Edge
	if !inNewGraph {
		existingInstances, existingEdges = e.mirror.GraphContents(graphID)
	}

	instByName := map[string]string{} // folded name → instance id
	var freshInstances []*models.NodeInstance
	for _, n := range nodes {
		folded := foldName(n.name)
		if _, ok := instByName[folded]; ok {
			continue
		}
		protoID := protoByName[folded]
		if !inNewGraph {
			if existing := e.mirror.InstanceOfPrototype(graphID, protoID); existing != "" {
				instByName[folded] = existing
				continue
			}
		}
		inst := &models.NodeInstance{
			ID:          uuid.NewString(),
			GraphID:     graphID,
			PrototypeID: protoID,
		}
		ops = append(ops, models.Op{Type: models.OpAddNodeInstance, GraphID: graphID, Instance: inst})
		freshInstances = append(freshInstances, inst)
		instByName[folded] = inst.ID
	}

	// Pass 3: layout. Full mode repositions everything; partial rings the
	// new nodes around the existing cluster.
	moveOps := e.layoutBatch(graphID, mode, algorithm, nodes, edges,
		existingInstances, existingEdges, freshInstances, instByName)
	ops = append(ops, moveOps...)

	// Pass 4: edges, endpoints resolved by node name against the batch
	// first and the graph's existing placements second. A definition
	// prototype is synthesized only for an explicit definition; named but
	// undefined edges stay that way until define_connections.
	defByName := map[string]string{} // folded label → definition prototype id
	for _, in := range edges {
		srcID, err := e.resolveEndpoint(graphID, in.source, instByName, inNewGraph)
		if err != nil {
			return nil, err
		}
		dstID, err := e.resolveEndpoint(graphID, in.destination, instByName, inNewGraph)
		if err != nil {
			return nil, err
		}

		edge := &models.Edge{
			ID:            uuid.NewString(),
			SourceID:      srcID,
			DestinationID: dstID,
			Name:          in.name,
			ArrowsToward:  arrowsFor(in.direction, srcID, dstID),
		}

		if def := in.definition; def != "" {
			defID, defOp := e.resolveDefinition(def, defByName, meta)
			if defOp != nil {
				ops = append(ops, *defOp)
			}
			edge.TypeNodeID = defID
			edge.DefinitionNodeIDs = []string{defID}
		}

		ops = append(ops, models.Op{Type: models.OpAddEdge, GraphID: graphID, Edge: edge})
	}

	slog.Debug("Synthesized subgraph", "graphId", graphID, "nodes", len(nodes),
		"edges", len(edges), "ops", len(ops), "cid", meta.CID)
	return ops, nil
}

// layoutBatch computes positions for the batch, writes them onto the fresh
// instance ops, and returns move ops for existing instances repositioned by
// a full relayout.
func (e *Executor) layoutBatch(graphID, mode string, algorithm layout.Algorithm,
	nodes []nodeInput, edges []edgeInput,
	existingInstances []models.NodeInstance, existingEdges []models.Edge,
	freshInstances []*models.NodeInstance, instByName map[string]string) []models.Op {

	resolved := layout.ResolveMode(mode, len(existingInstances))

	labelByInst := map[string]string{}
	for _, n := range nodes {
		labelByInst[instByName[foldName(n.name)]] = n.name
	}

	var layoutNodes []layout.Node
	for _, inst := range freshInstances {
		layoutNodes = append(layoutNodes, layout.Node{
			ID:    inst.ID,
			Label: labelByInst[inst.ID],
		})
	}

	existing := make(map[string]layout.Point, len(existingInstances))
	for _, inst := range existingInstances {
		existing[inst.ID] = layout.Point{X: inst.X, Y: inst.Y}
	}

	var layoutEdges []layout.Edge
	for _, in := range edges {
		src, ok1 := instByName[foldName(in.source)]
		dst, ok2 := instByName[foldName(in.destination)]
		if ok1 && ok2 {
			layoutEdges = append(layoutEdges, layout.Edge{SourceID: src, DestinationID: dst})
		}
	}

	if resolved == layout.ModeFull {
		// A full relayout considers the whole graph, existing edges included.
		for _, inst := range existingInstances {
			label := inst.PrototypeID
			if p := e.mirror.PrototypeByID(inst.PrototypeID); p != nil {
				label = p.Name
			}
			layoutNodes = append(layoutNodes, layout.Node{ID: inst.ID, Label: label})
		}
		for _, edge := range existingEdges {
			layoutEdges = append(layoutEdges, layout.Edge{
				SourceID: edge.SourceID, DestinationID: edge.DestinationID,
			})
		}
	}

	positions := e.layout.Compute(layoutNodes, layoutEdges, algorithm, layout.Options{
		Mode:     resolved,
		Existing: existing,
	})

	for _, inst := range freshInstances {
		if p, ok := positions[inst.ID]; ok {
			inst.X = p.X
			inst.Y = p.Y
		}
	}

	var moves []models.Op
	if resolved == layout.ModeFull {
		for _, inst := range existingInstances {
			p, ok := positions[inst.ID]
			if !ok || (p.X == inst.X && p.Y == inst.Y) {
				continue
			}
			x, y := p.X, p.Y
			moves = append(moves, models.Op{
				Type:       models.OpMoveNodeInstance,
				GraphID:    graphID,
				InstanceID: inst.ID,
				X:          &x,
				Y:          &y,
			})
		}
	}
	return moves
}

// resolveEndpoint maps an edge endpoint name to an instance id: the batch
// first, then existing placements in the target graph.
func (e *Executor) resolveEndpoint(graphID, name string, instByName map[string]string, inNewGraph bool) (string, error) {
	if id, ok := instByName[foldName(name)]; ok {
		return id, nil
	}
	if !inNewGraph {
		if p := e.mirror.PrototypeByName(name); p != nil {
			if id := e.mirror.InstanceOfPrototype(graphID, p.ID); id != "" {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("Invalid edge: node %q not found in batch or graph", name)
}

// resolveDefinition finds or creates the definition prototype for a
// connection label. Labels are normalized to Title Case; colors derive from
// the normalized name so repeated synthesis stays stable.
func (e *Executor) resolveDefinition(label string, defByName map[string]string, meta models.Meta) (string, *models.Op) {
	normalized := graph.TitleCase(label)
	folded := foldName(normalized)
	if id, ok := defByName[folded]; ok {
		return id, nil
	}
	if p := e.mirror.PrototypeByName(normalized); p != nil {
		defByName[folded] = p.ID
		return p.ID, nil
	}
	if p, score := e.mirror.SimilarPrototype(normalized, e.fuzzyThreshold); p != nil {
		now := time.Now()
		e.tracer.Record(meta.CID, trace.Span{
			Stage: StageFuzzy, StartedAt: now, EndedAt: now, Status: trace.StatusOK,
			Detail: fmt.Sprintf("%q matched existing %q (%.2f)", normalized, p.Name, score),
		})
		defByName[folded] = p.ID
		return p.ID, nil
	}

	op := &models.Op{
		Type: models.OpAddNodePrototype,
		Prototype: &models.NodePrototype{
			ID:    uuid.NewString(),
			Name:  normalized,
			Color: graph.ColorForName(normalized),
		},
	}
	defByName[folded] = op.Prototype.ID
	return op.Prototype.ID, op
}

// foldName is the dedup key for batch caches: names differing only in case
// or surrounding whitespace are the same concept.
func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
