package models

// OpType identifies a single mutation kind. The set is closed: the executor
// only emits these, the auditor only approves these, and the committer and
// UI only apply these.
type OpType string

// The closed op set.
const (
	OpCreateNewGraph       OpType = "createNewGraph"
	OpDeleteGraph          OpType = "deleteGraph"
	OpAddNodePrototype     OpType = "addNodePrototype"
	OpUpdateNodePrototype  OpType = "updateNodePrototype"
	OpDeleteNodePrototype  OpType = "deleteNodePrototype"
	OpAddNodeInstance      OpType = "addNodeInstance"
	OpMoveNodeInstance     OpType = "moveNodeInstance"
	OpDeleteNodeInstance   OpType = "deleteNodeInstance"
	OpAddEdge              OpType = "addEdge"
	OpDeleteEdge           OpType = "deleteEdge"
	OpUpdateEdgeDefinition OpType = "updateEdgeDefinition"
	OpCreateGroup          OpType = "createGroup"
	OpConvertToNodeGroup   OpType = "convertToNodeGroup"
	OpSetActiveGraph       OpType = "setActiveGraph"
	OpReadResponse         OpType = "readResponse"
)

// KnownOpType reports whether t belongs to the closed op set.
func KnownOpType(t OpType) bool {
	switch t {
	case OpCreateNewGraph, OpDeleteGraph,
		OpAddNodePrototype, OpUpdateNodePrototype, OpDeleteNodePrototype,
		OpAddNodeInstance, OpMoveNodeInstance, OpDeleteNodeInstance,
		OpAddEdge, OpDeleteEdge, OpUpdateEdgeDefinition,
		OpCreateGroup, OpConvertToNodeGroup,
		OpSetActiveGraph, OpReadResponse:
		return true
	}
	return false
}

// Op is one mutation. Only the fields relevant to the op's type are set;
// the rest stay zero and are omitted on the wire.
type Op struct {
	Type    OpType `json:"type"`
	GraphID string `json:"graphId,omitempty"`

	Graph     *Graph         `json:"graph,omitempty"`     // createNewGraph
	Prototype *NodePrototype `json:"prototype,omitempty"` // addNodePrototype, updateNodePrototype
	Instance  *NodeInstance  `json:"instance,omitempty"`  // addNodeInstance
	Edge      *Edge          `json:"edge,omitempty"`      // addEdge

	PrototypeID string `json:"prototypeId,omitempty"` // deleteNodePrototype
	InstanceID  string `json:"instanceId,omitempty"`  // moveNodeInstance, deleteNodeInstance
	EdgeID      string `json:"edgeId,omitempty"`      // deleteEdge, updateEdgeDefinition

	X *float64 `json:"x,omitempty"` // moveNodeInstance
	Y *float64 `json:"y,omitempty"` // moveNodeInstance

	DefinitionNodeIDs []string `json:"definitionNodeIds,omitempty"` // updateEdgeDefinition

	GroupName   string   `json:"groupName,omitempty"`   // createGroup, convertToNodeGroup
	MemberIDs   []string `json:"memberIds,omitempty"`   // createGroup, convertToNodeGroup
	ActiveGraph string   `json:"activeGraph,omitempty"` // setActiveGraph

	Payload map[string]any `json:"payload,omitempty"` // readResponse
}

// Patch is an ordered list of ops produced by the executor for one task.
// Ops are applied by the committer in array order; the whole patch is
// atomic from the UI's perspective.
type Patch struct {
	PatchID  string  `json:"patchId"`
	ThreadID string  `json:"threadId"`
	GraphID  string  `json:"graphId,omitempty"`
	BaseHash *string `json:"baseHash"`
	Ops      []Op    `json:"ops"`
	Meta     Meta    `json:"meta"`
}

// NewGraphPlaceholder builds the placeholder graph id used by
// create_subgraph_in_new_graph. The committer resolves it against the
// createNewGraph op that precedes it in the same patch.
func NewGraphPlaceholder(name string) string {
	return newGraphPrefix + name
}

// ResolveNewGraphPlaceholder returns the graph name inside a placeholder id,
// or ("", false) when the id is a regular graph id.
func ResolveNewGraphPlaceholder(id string) (string, bool) {
	if len(id) > len(newGraphPrefix) && id[:len(newGraphPrefix)] == newGraphPrefix {
		return id[len(newGraphPrefix):], true
	}
	return "", false
}

const newGraphPrefix = "NEW_GRAPH:"
