package mirror

import (
	"fmt"
	"log/slog"

	"github.com/graphweave/bridge/pkg/models"
)

// Apply applies a list of ops to the mirror synchronously, in array order,
// so reads later in the same turn observe the agent's own changes. Entries
// created here carry the local provenance mark until the UI confirms them.
//
// Apply stops at the first failing op and returns its error; ops already
// applied stay applied (the committer re-audits before the UI sees them).
func (m *Mirror) Apply(ops []models.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range ops {
		if err := m.applyOne(&ops[i]); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, ops[i].Type, err)
		}
	}
	m.lastUpdate = timeNow()
	return nil
}

func (m *Mirror) applyOne(op *models.Op) error {
	switch op.Type {
	case models.OpCreateNewGraph:
		if op.Graph == nil {
			return errMissingField("graph")
		}
		g := *op.Graph
		if g.InstanceIDs == nil {
			g.InstanceIDs = []string{}
		}
		if g.EdgeIDs == nil {
			g.EdgeIDs = []string{}
		}
		m.graphs[g.ID] = &g
		m.localGraphs[g.ID] = true

	case models.OpDeleteGraph:
		g, ok := m.graphs[op.GraphID]
		if !ok {
			return fmt.Errorf("graph %q not found", op.GraphID)
		}
		for _, instID := range g.InstanceIDs {
			delete(m.instances, instID)
			delete(m.localInstances, instID)
		}
		for _, edgeID := range g.EdgeIDs {
			delete(m.edges, edgeID)
			delete(m.localEdges, edgeID)
		}
		delete(m.graphs, g.ID)
		delete(m.localGraphs, g.ID)
		// The active pointer nulls out iff it pointed at the deleted graph.
		if m.activeGraphID == g.ID {
			m.activeGraphID = ""
		}
		m.openGraphIDs = removeString(m.openGraphIDs, g.ID)

	case models.OpAddNodePrototype:
		if op.Prototype == nil {
			return errMissingField("prototype")
		}
		p := *op.Prototype
		m.prototypes[p.ID] = &p
		m.localPrototypes[p.ID] = true

	case models.OpUpdateNodePrototype:
		if op.Prototype == nil {
			return errMissingField("prototype")
		}
		existing, ok := m.prototypes[op.Prototype.ID]
		if !ok {
			return fmt.Errorf("prototype %q not found", op.Prototype.ID)
		}
		updatePrototype(existing, op.Prototype)

	case models.OpDeleteNodePrototype:
		if _, ok := m.prototypes[op.PrototypeID]; !ok {
			return fmt.Errorf("prototype %q not found", op.PrototypeID)
		}
		delete(m.prototypes, op.PrototypeID)
		delete(m.localPrototypes, op.PrototypeID)
		// Cascade: instances of the prototype and their edges go with it.
		for id, inst := range m.instances {
			if inst.PrototypeID == op.PrototypeID {
				m.removeInstanceLocked(id)
			}
		}

	case models.OpAddNodeInstance:
		if op.Instance == nil {
			return errMissingField("instance")
		}
		inst := *op.Instance
		g, ok := m.graphs[inst.GraphID]
		if !ok {
			return fmt.Errorf("graph %q not found", inst.GraphID)
		}
		if _, ok := m.prototypes[inst.PrototypeID]; !ok {
			return fmt.Errorf("prototype %q not found", inst.PrototypeID)
		}
		m.instances[inst.ID] = &inst
		m.localInstances[inst.ID] = true
		g.InstanceIDs = appendUnique(g.InstanceIDs, inst.ID)

	case models.OpMoveNodeInstance:
		inst, ok := m.instances[op.InstanceID]
		if !ok {
			return fmt.Errorf("instance %q not found", op.InstanceID)
		}
		if op.X != nil {
			inst.X = *op.X
		}
		if op.Y != nil {
			inst.Y = *op.Y
		}

	case models.OpDeleteNodeInstance:
		if _, ok := m.instances[op.InstanceID]; !ok {
			return fmt.Errorf("instance %q not found", op.InstanceID)
		}
		m.removeInstanceLocked(op.InstanceID)

	case models.OpAddEdge:
		if op.Edge == nil {
			return errMissingField("edge")
		}
		e := *op.Edge
		src, ok := m.instances[e.SourceID]
		if !ok {
			return fmt.Errorf("source instance %q not found", e.SourceID)
		}
		if _, ok := m.instances[e.DestinationID]; !ok {
			return fmt.Errorf("destination instance %q not found", e.DestinationID)
		}
		g, ok := m.graphs[src.GraphID]
		if !ok {
			return fmt.Errorf("graph %q not found", src.GraphID)
		}
		m.edges[e.ID] = &e
		m.localEdges[e.ID] = true
		g.EdgeIDs = appendUnique(g.EdgeIDs, e.ID)

	case models.OpDeleteEdge:
		e, ok := m.edges[op.EdgeID]
		if !ok {
			return fmt.Errorf("edge %q not found", op.EdgeID)
		}
		delete(m.edges, op.EdgeID)
		delete(m.localEdges, op.EdgeID)
		if src, ok := m.instances[e.SourceID]; ok {
			if g, ok := m.graphs[src.GraphID]; ok {
				g.EdgeIDs = removeString(g.EdgeIDs, e.ID)
			}
		}

	case models.OpUpdateEdgeDefinition:
		e, ok := m.edges[op.EdgeID]
		if !ok {
			return fmt.Errorf("edge %q not found", op.EdgeID)
		}
		e.DefinitionNodeIDs = append([]string(nil), op.DefinitionNodeIDs...)

	case models.OpSetActiveGraph:
		if _, ok := m.graphs[op.ActiveGraph]; !ok {
			return fmt.Errorf("graph %q not found", op.ActiveGraph)
		}
		m.activeGraphID = op.ActiveGraph

	case models.OpCreateGroup, models.OpConvertToNodeGroup:
		// Groups are a canvas-side concept; the mirror tracks no group
		// state. The op still flows to the UI through the outbox.
		slog.Debug("Group op passed through", "type", op.Type, "group", op.GroupName)

	case models.OpReadResponse:
		// No state effect; the committer delivers the payload on the chat
		// channel.

	default:
		return fmt.Errorf("unknown op type %q", op.Type)
	}
	return nil
}

// removeInstanceLocked deletes an instance, its graph-list entry, and every
// edge touching it. Caller must hold m.mu.
func (m *Mirror) removeInstanceLocked(instanceID string) {
	inst := m.instances[instanceID]
	delete(m.instances, instanceID)
	delete(m.localInstances, instanceID)
	if g, ok := m.graphs[inst.GraphID]; ok {
		g.InstanceIDs = removeString(g.InstanceIDs, instanceID)
		kept := g.EdgeIDs[:0]
		for _, edgeID := range g.EdgeIDs {
			e, ok := m.edges[edgeID]
			if ok && (e.SourceID == instanceID || e.DestinationID == instanceID) {
				delete(m.edges, edgeID)
				delete(m.localEdges, edgeID)
				continue
			}
			kept = append(kept, edgeID)
		}
		g.EdgeIDs = kept
	}
}

func updatePrototype(dst, src *models.NodePrototype) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.Color != "" {
		dst.Color = src.Color
	}
	if src.ParentTypeID != "" {
		dst.ParentTypeID = src.ParentTypeID
	}
	if src.DefinitionGraphs != nil {
		dst.DefinitionGraphs = append([]string(nil), src.DefinitionGraphs...)
	}
}

func errMissingField(field string) error {
	return fmt.Errorf("missing required field %q", field)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
