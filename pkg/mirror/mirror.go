// Package mirror maintains the bridge's merged view of UI state: the last
// registered snapshot from the UI combined with ops the pipeline has applied
// locally. The executor reads exclusively from here so the agent's
// perception is immediately consistent within a turn.
package mirror

import (
	"log/slog"
	"sync"
	"time"

	"github.com/graphweave/bridge/pkg/models"
)

// Mirror is the single mutable shared resource of the pipeline. Writers
// (SmartMerge, Apply) are exclusive; readers work under a shared lock so an
// executor never observes a half-merged state.
type Mirror struct {
	mu sync.RWMutex

	graphs     map[string]*models.Graph
	prototypes map[string]*models.NodePrototype
	instances  map[string]*models.NodeInstance
	edges      map[string]*models.Edge

	activeGraphID string
	openGraphIDs  []string
	lastUpdate    time.Time

	// Provenance marks for entries created by local op application. They
	// survive an incoming snapshot that does not mention them yet.
	localGraphs     map[string]bool
	localPrototypes map[string]bool
	localInstances  map[string]bool
	localEdges      map[string]bool
}

// New creates an empty mirror.
func New() *Mirror {
	return &Mirror{
		graphs:          make(map[string]*models.Graph),
		prototypes:      make(map[string]*models.NodePrototype),
		instances:       make(map[string]*models.NodeInstance),
		edges:           make(map[string]*models.Edge),
		localGraphs:     make(map[string]bool),
		localPrototypes: make(map[string]bool),
		localInstances:  make(map[string]bool),
		localEdges:      make(map[string]bool),
	}
}

// SmartMerge folds an incoming UI snapshot into the mirror. The merge is
// union-biased: incoming entries replace same-id entries wholesale, entries
// the snapshot lacks are dropped unless they carry the local provenance
// mark, and scalar pointers are overwritten only when present. Containers
// are normalized from the UI's array shape into id-keyed maps.
func (m *Mirror) SmartMerge(snap *models.StateSnapshot) {
	if snap == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Graphs != nil {
		merged := make(map[string]*models.Graph, len(snap.Graphs))
		for i := range snap.Graphs {
			g := snap.Graphs[i]
			merged[g.ID] = &g
			// Confirmed by the UI; provenance mark no longer needed.
			delete(m.localGraphs, g.ID)
		}
		for id := range m.localGraphs {
			if _, ok := merged[id]; !ok {
				merged[id] = m.graphs[id]
			}
		}
		m.graphs = merged
	}

	if snap.Prototypes != nil {
		merged := make(map[string]*models.NodePrototype, len(snap.Prototypes))
		for i := range snap.Prototypes {
			p := snap.Prototypes[i]
			merged[p.ID] = &p
			delete(m.localPrototypes, p.ID)
		}
		for id := range m.localPrototypes {
			if _, ok := merged[id]; !ok {
				merged[id] = m.prototypes[id]
			}
		}
		m.prototypes = merged
	}

	if snap.Instances != nil {
		merged := make(map[string]*models.NodeInstance, len(snap.Instances))
		for i := range snap.Instances {
			inst := snap.Instances[i]
			merged[inst.ID] = &inst
			delete(m.localInstances, inst.ID)
		}
		// Locally-applied instances the snapshot has not confirmed yet
		// survive, as do instances of locally-created graphs.
		for id, inst := range m.instances {
			if _, ok := merged[id]; !ok && (m.localInstances[id] || m.localGraphs[inst.GraphID]) {
				merged[id] = inst
			}
		}
		m.instances = merged
	}

	if snap.Edges != nil {
		merged := make(map[string]*models.Edge, len(snap.Edges))
		for i := range snap.Edges {
			e := snap.Edges[i]
			merged[e.ID] = &e
			delete(m.localEdges, e.ID)
		}
		for id, e := range m.edges {
			if _, ok := merged[id]; !ok && (m.localEdges[id] || m.edgeInLocalGraph(e)) {
				merged[id] = e
			}
		}
		m.edges = merged
	}

	if snap.ActiveGraphID != nil {
		m.activeGraphID = *snap.ActiveGraphID
	}
	if snap.OpenGraphIDs != nil {
		m.openGraphIDs = append([]string(nil), (*snap.OpenGraphIDs)...)
	}

	m.lastUpdate = time.Now()
	slog.Debug("State snapshot merged",
		"graphs", len(m.graphs),
		"prototypes", len(m.prototypes),
		"instances", len(m.instances),
		"edges", len(m.edges))
}

// edgeInLocalGraph reports whether the edge belongs to a locally-created
// graph. Caller must hold m.mu.
func (m *Mirror) edgeInLocalGraph(e *models.Edge) bool {
	src, ok := m.instances[e.SourceID]
	return ok && m.localGraphs[src.GraphID]
}

// Snapshot exports the full mirror state in the UI wire shape, with
// deterministic container ordering (per-graph id lists first, then any
// strays by map iteration).
func (m *Mirror) Snapshot() *models.StateSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &models.StateSnapshot{
		Graphs:     make([]models.Graph, 0, len(m.graphs)),
		Prototypes: make([]models.NodePrototype, 0, len(m.prototypes)),
		Instances:  make([]models.NodeInstance, 0, len(m.instances)),
		Edges:      make([]models.Edge, 0, len(m.edges)),
	}
	for _, g := range m.graphs {
		snap.Graphs = append(snap.Graphs, *g)
	}
	for _, p := range m.prototypes {
		snap.Prototypes = append(snap.Prototypes, *p)
	}
	for _, inst := range m.instances {
		snap.Instances = append(snap.Instances, *inst)
	}
	for _, e := range m.edges {
		snap.Edges = append(snap.Edges, *e)
	}
	active := m.activeGraphID
	snap.ActiveGraphID = &active
	open := append([]string(nil), m.openGraphIDs...)
	snap.OpenGraphIDs = &open
	return snap
}

// Summary returns bookkeeping counters for the health/state endpoints.
func (m *Mirror) Summary() models.StateSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.StateSummary{
		LastUpdate:     m.lastUpdate,
		GraphCount:     len(m.graphs),
		PrototypeCount: len(m.prototypes),
		InstanceCount:  len(m.instances),
		EdgeCount:      len(m.edges),
	}
}
