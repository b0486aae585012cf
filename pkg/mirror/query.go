package mirror

import (
	"strings"
	"time"

	"github.com/graphweave/bridge/pkg/graph"
	"github.com/graphweave/bridge/pkg/models"
)

var timeNow = time.Now

// StructureOptions controls which optional fields the semantic projection
// carries.
type StructureOptions struct {
	IncludeDescriptions bool
	IncludeColors       bool
}

// SemanticNode is one node in the AI-facing projection. It never carries
// coordinates; spatial data stays on the UI side of the bridge.
type SemanticNode struct {
	ID          string `json:"id"`
	PrototypeID string `json:"prototypeId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// SemanticEdge is one edge in the AI-facing projection, endpoints resolved
// to prototype names.
type SemanticEdge struct {
	ID                string   `json:"id"`
	SourceID          string   `json:"sourceId"`
	DestinationID     string   `json:"destinationId"`
	Label             string   `json:"label"`
	Directionality    string   `json:"directionality"`
	DefinitionNodeIDs []string `json:"definitionNodeIds,omitempty"`
}

// SemanticStructure is the coordinate-free view of one graph returned by
// read_graph_structure.
type SemanticStructure struct {
	GraphID   string         `json:"graphId"`
	GraphName string         `json:"graphName"`
	Nodes     []SemanticNode `json:"nodes"`
	Edges     []SemanticEdge `json:"edges"`
	NodeCount int            `json:"nodeCount"`
	EdgeCount int            `json:"edgeCount"`
	IsEmpty   bool           `json:"isEmpty"`
}

// ActiveGraph returns the active graph, or nil when no graph is active.
func (m *Mirror) ActiveGraph() *models.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeGraphID == "" {
		return nil
	}
	return copyGraph(m.graphs[m.activeGraphID])
}

// ActiveGraphID returns the active graph pointer ("" = none).
func (m *Mirror) ActiveGraphID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeGraphID
}

// GraphByID returns a copy of the graph, or nil.
func (m *Mirror) GraphByID(id string) *models.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyGraph(m.graphs[id])
}

// GraphByName resolves a graph by case-insensitive name match. Used by
// delete_graph when the provided id matches nothing.
func (m *Mirror) GraphByName(name string) *models.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.graphs {
		if strings.EqualFold(g.Name, name) {
			return copyGraph(g)
		}
	}
	return nil
}

// ListGraphs returns copies of all graphs.
func (m *Mirror) ListGraphs() []models.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Graph, 0, len(m.graphs))
	for _, g := range m.graphs {
		out = append(out, *copyGraph(g))
	}
	return out
}

// FindGraphsByName returns graphs whose name contains the substring,
// case-insensitively.
func (m *Mirror) FindGraphsByName(substr string) []models.Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(substr)
	var out []models.Graph
	for _, g := range m.graphs {
		if strings.Contains(strings.ToLower(g.Name), needle) {
			out = append(out, *copyGraph(g))
		}
	}
	return out
}

// PrototypeByID returns a copy of the prototype, or nil.
func (m *Mirror) PrototypeByID(id string) *models.NodePrototype {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prototypes[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// PrototypeByName resolves a prototype by exact case-insensitive name.
func (m *Mirror) PrototypeByName(name string) *models.NodePrototype {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.prototypes {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp
		}
	}
	return nil
}

// SimilarPrototype returns the best fuzzy match at or above the threshold,
// with its similarity score. Exact case-insensitive matches score 1.
func (m *Mirror) SimilarPrototype(name string, threshold float64) (*models.NodePrototype, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *models.NodePrototype
	bestScore := 0.0
	for _, p := range m.prototypes {
		score := graph.DiceSimilarity(p.Name, name)
		if score >= threshold && score > bestScore {
			cp := *p
			best = &cp
			bestScore = score
		}
	}
	return best, bestScore
}

// InstanceOfPrototype returns the id of an existing instance of the
// prototype in the given graph, or "".
func (m *Mirror) InstanceOfPrototype(graphID, prototypeID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[graphID]
	if !ok {
		return ""
	}
	for _, instID := range g.InstanceIDs {
		if inst, ok := m.instances[instID]; ok && inst.PrototypeID == prototypeID {
			return instID
		}
	}
	return ""
}

// InstanceByID returns a copy of the instance, or nil.
func (m *Mirror) InstanceByID(id string) *models.NodeInstance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inst, ok := m.instances[id]; ok {
		cp := *inst
		return &cp
	}
	return nil
}

// EdgeByID returns a copy of the edge, or nil.
func (m *Mirror) EdgeByID(id string) *models.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.edges[id]; ok {
		cp := *e
		cp.ArrowsToward = append([]string(nil), e.ArrowsToward...)
		cp.DefinitionNodeIDs = append([]string(nil), e.DefinitionNodeIDs...)
		return &cp
	}
	return nil
}

// GraphContents returns the instances and edges of a graph in stored order.
// The executor feeds these to the layout engine for full relayouts.
func (m *Mirror) GraphContents(graphID string) ([]models.NodeInstance, []models.Edge) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.graphs[graphID]
	if !ok {
		return nil, nil
	}
	instances := make([]models.NodeInstance, 0, len(g.InstanceIDs))
	for _, id := range g.InstanceIDs {
		if inst, ok := m.instances[id]; ok {
			instances = append(instances, *inst)
		}
	}
	edges := make([]models.Edge, 0, len(g.EdgeIDs))
	for _, id := range g.EdgeIDs {
		if e, ok := m.edges[id]; ok {
			edges = append(edges, *e)
		}
	}
	return instances, edges
}

// SemanticStructure builds the coordinate-free projection of one graph.
// Prototype names are resolved; unresolvable references degrade to ids
// rather than failing the read.
func (m *Mirror) SemanticStructure(graphID string, opts StructureOptions) *SemanticStructure {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.graphs[graphID]
	if !ok {
		return nil
	}

	out := &SemanticStructure{
		GraphID:   g.ID,
		GraphName: g.Name,
		Nodes:     make([]SemanticNode, 0, len(g.InstanceIDs)),
		Edges:     make([]SemanticEdge, 0, len(g.EdgeIDs)),
	}

	names := make(map[string]string, len(g.InstanceIDs)) // instance id → name
	for _, instID := range g.InstanceIDs {
		inst, ok := m.instances[instID]
		if !ok {
			continue
		}
		node := SemanticNode{ID: inst.ID, PrototypeID: inst.PrototypeID}
		if p, ok := m.prototypes[inst.PrototypeID]; ok {
			node.Name = p.Name
			if opts.IncludeDescriptions {
				node.Description = p.Description
			}
			if opts.IncludeColors {
				node.Color = p.Color
			}
		} else {
			node.Name = inst.PrototypeID
		}
		names[inst.ID] = node.Name
		out.Nodes = append(out.Nodes, node)
	}

	for _, edgeID := range g.EdgeIDs {
		e, ok := m.edges[edgeID]
		if !ok {
			continue
		}
		out.Edges = append(out.Edges, SemanticEdge{
			ID:                e.ID,
			SourceID:          e.SourceID,
			DestinationID:     e.DestinationID,
			Label:             names[e.SourceID] + " → " + names[e.DestinationID],
			Directionality:    e.Directionality(),
			DefinitionNodeIDs: append([]string(nil), e.DefinitionNodeIDs...),
		})
	}

	out.NodeCount = len(out.Nodes)
	out.EdgeCount = len(out.Edges)
	out.IsEmpty = out.NodeCount == 0
	return out
}

func copyGraph(g *models.Graph) *models.Graph {
	if g == nil {
		return nil
	}
	cp := *g
	cp.InstanceIDs = append([]string(nil), g.InstanceIDs...)
	cp.EdgeIDs = append([]string(nil), g.EdgeIDs...)
	return &cp
}
