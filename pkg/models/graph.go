// Package models contains the domain types shared across the bridge:
// graphs, prototypes, instances, edges, ops, patches, and the pipeline
// records that flow through the queues.
package models

import "time"

// Graph is a named container of node instances and edges. It owns its
// instances; deleting the graph removes them and their edges.
type Graph struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	InstanceIDs []string `json:"instanceIds"`
	EdgeIDs     []string `json:"edgeIds"`
}

// NodePrototype is a reusable concept identity. Prototypes are shared across
// graphs; names are unique by case-insensitive comparison within a store.
type NodePrototype struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Color            string   `json:"color,omitempty"`
	ParentTypeID     string   `json:"parentTypeId,omitempty"`
	DefinitionGraphs []string `json:"definitionGraphIds,omitempty"`
}

// NodeInstance is a placement of a prototype in one graph.
type NodeInstance struct {
	ID          string  `json:"id"`
	GraphID     string  `json:"graphId"`
	PrototypeID string  `json:"prototypeId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Scale       float64 `json:"scale,omitempty"`
}

// Edge connects two instances within one graph. ArrowsToward is the set of
// instance ids that arrowheads point at: empty means undirected, one element
// unidirectional, both endpoints bidirectional.
type Edge struct {
	ID                string   `json:"id"`
	SourceID          string   `json:"sourceId"`
	DestinationID     string   `json:"destinationId"`
	Name              string   `json:"name,omitempty"`
	TypeNodeID        string   `json:"typeNodeId,omitempty"`
	ArrowsToward      []string `json:"arrowsToward,omitempty"`
	DefinitionNodeIDs []string `json:"definitionNodeIds,omitempty"`
}

// Directionality classifications for the AI-facing projection.
const (
	DirectionalityNone           = "none"
	DirectionalityUnidirectional = "unidirectional"
	DirectionalityBidirectional  = "bidirectional"
)

// Directionality classifies the edge's arrow set.
func (e *Edge) Directionality() string {
	switch len(e.ArrowsToward) {
	case 0:
		return DirectionalityNone
	case 1:
		return DirectionalityUnidirectional
	default:
		return DirectionalityBidirectional
	}
}

// PointsToward reports whether an arrowhead targets the given instance.
func (e *Edge) PointsToward(instanceID string) bool {
	for _, id := range e.ArrowsToward {
		if id == instanceID {
			return true
		}
	}
	return false
}

// StateSnapshot is the wire shape the UI posts to register or refresh its
// authoritative state. Containers arrive as arrays and are normalized into
// id-keyed maps by the mirror. Pointer fields distinguish "absent" from
// "present but empty" so partial snapshots do not clobber scalar pointers.
type StateSnapshot struct {
	Graphs        []Graph         `json:"graphs,omitempty"`
	Prototypes    []NodePrototype `json:"nodePrototypes,omitempty"`
	Instances     []NodeInstance  `json:"nodeInstances,omitempty"`
	Edges         []Edge          `json:"edges,omitempty"`
	ActiveGraphID *string         `json:"activeGraphId,omitempty"`
	OpenGraphIDs  *[]string       `json:"openGraphIds,omitempty"`
}

// StateSummary carries mirror bookkeeping exposed on the read endpoints.
type StateSummary struct {
	LastUpdate     time.Time `json:"lastUpdate"`
	GraphCount     int       `json:"graphCount"`
	PrototypeCount int       `json:"prototypeCount"`
	InstanceCount  int       `json:"instanceCount"`
	EdgeCount      int       `json:"edgeCount"`
}
