package tools

// Tool names. The set is closed: the planner refuses calls outside it and
// the executor dispatches on it.
const (
	CreateNode               = "create_node"
	CreateNodePrototype      = "create_node_prototype"
	CreateNodeInstance       = "create_node_instance"
	CreateGraph              = "create_graph"
	CreateEdge               = "create_edge"
	CreateSubgraph           = "create_subgraph"
	CreatePopulatedGraph     = "create_populated_graph"
	CreateSubgraphInNewGraph = "create_subgraph_in_new_graph"
	DefineConnections        = "define_connections"
	ReadGraphStructure       = "read_graph_structure"
	GetEdgeInfo              = "get_edge_info"
	GetNodeDefinition        = "get_node_definition"
	SparqlQuery              = "sparql_query"
	SemanticSearch           = "semantic_search"
	UpdateNodePrototype      = "update_node_prototype"
	DeleteNodeInstance       = "delete_node_instance"
	DeleteNodePrototype      = "delete_node_prototype"
	DeleteGraph              = "delete_graph"
	DeleteEdge               = "delete_edge"
	CreateGroup              = "create_group"
	ConvertToNodeGroup       = "convert_to_node_group"
	SetActiveGraph           = "set_active_graph"
	VerifyState              = "verify_state"
)

// Directions accepted on edge inputs. "reverse" flips source/destination
// arrowheads at synthesis time.
var directionEnum = []string{"unidirectional", "bidirectional", "none", "reverse"}

var layoutEnum = []string{"force", "hierarchical", "radial", "linear"}
var layoutModeEnum = []string{"full", "partial", "auto"}

func f64(v float64) *float64 { return &v }

// subgraphNodeFields describes one node input of the bulk-create tools.
var subgraphNodeFields = []Field{
	{Name: "name", Type: TypeString, Required: true},
	{Name: "description", Type: TypeString},
	{Name: "color", Type: TypeString, Color: true},
}

// subgraphEdgeFields describes one edge input; endpoints are node names,
// resolved against new and existing instances at synthesis time.
var subgraphEdgeFields = []Field{
	{Name: "source", Type: TypeString, Required: true},
	{Name: "destination", Type: TypeString, Required: true},
	{Name: "name", Type: TypeString},
	{Name: "direction", Type: TypeString, Enum: directionEnum, Default: "unidirectional"},
	{Name: "definition", Type: TypeString},
}

// DefaultSpecs returns the full tool surface.
func DefaultSpecs() []*Spec {
	return []*Spec{
		{
			Name:        CreateNode,
			Description: "Create a node in a graph, reusing an existing prototype of the same name when one exists.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "color", Type: TypeString, Color: true},
				{Name: "x", Type: TypeNumber},
				{Name: "y", Type: TypeNumber},
			},
		},
		{
			Name:        CreateNodePrototype,
			Description: "Create a reusable node prototype.",
			Fields: []Field{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "color", Type: TypeString, Color: true},
				{Name: "parent_type_id", Type: TypeString},
			},
		},
		{
			Name:        CreateNodeInstance,
			Description: "Place an existing prototype into a graph.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "prototype_id", Type: TypeString, Required: true},
				{Name: "x", Type: TypeNumber, Default: float64(0)},
				{Name: "y", Type: TypeNumber, Default: float64(0)},
			},
		},
		{
			Name:        CreateGraph,
			Description: "Create a new empty graph.",
			Fields: []Field{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "color", Type: TypeString, Color: true},
			},
		},
		{
			Name:        CreateEdge,
			Description: "Connect two instances in a graph.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "source_id", Type: TypeString, Required: true},
				{Name: "destination_id", Type: TypeString, Required: true},
				{Name: "name", Type: TypeString},
				{Name: "direction", Type: TypeString, Enum: directionEnum, Default: "unidirectional"},
				{Name: "type_node_id", Type: TypeString},
			},
		},
		{
			Name:        CreateSubgraph,
			Description: "Bulk-create nodes and edges in an existing graph with automatic layout.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "nodes", Type: TypeArray, Required: true, Items: subgraphNodeFields},
				{Name: "edges", Type: TypeArray, Items: subgraphEdgeFields},
				{Name: "layout", Type: TypeString, Enum: layoutEnum, Default: "force"},
				{Name: "layout_mode", Type: TypeString, Enum: layoutModeEnum, Default: "auto"},
			},
		},
		{
			Name:        CreatePopulatedGraph,
			Description: "Atomically create a graph and populate it with nodes and edges.",
			Fields: []Field{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "color", Type: TypeString, Color: true},
				{Name: "nodes", Type: TypeArray, Required: true, Items: subgraphNodeFields},
				{Name: "edges", Type: TypeArray, Items: subgraphEdgeFields},
				{Name: "layout", Type: TypeString, Enum: layoutEnum, Default: "force"},
				{Name: "layout_mode", Type: TypeString, Enum: layoutModeEnum, Default: "auto"},
			},
		},
		{
			Name:        CreateSubgraphInNewGraph,
			Description: "Create a subgraph inside a graph that is itself created by the same patch.",
			Fields: []Field{
				{Name: "graph_name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "nodes", Type: TypeArray, Required: true, Items: subgraphNodeFields},
				{Name: "edges", Type: TypeArray, Items: subgraphEdgeFields},
				{Name: "layout", Type: TypeString, Enum: layoutEnum, Default: "force"},
				{Name: "layout_mode", Type: TypeString, Enum: layoutModeEnum, Default: "auto"},
			},
		},
		{
			Name:        DefineConnections,
			Description: "Synthesize definition prototypes for edges that lack them.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "limit", Type: TypeInteger, Default: float64(10), Min: f64(1), Max: f64(100)},
				{Name: "skip_generic", Type: TypeBoolean, Default: true},
			},
		},
		{
			Name:        ReadGraphStructure,
			Description: "Read the coordinate-free semantic structure of a graph.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString},
				{Name: "include_descriptions", Type: TypeBoolean, Default: false},
				{Name: "include_colors", Type: TypeBoolean, Default: false},
			},
		},
		{
			Name:        GetEdgeInfo,
			Description: "Read one edge with resolved endpoint names.",
			Fields: []Field{
				{Name: "edge_id", Type: TypeString, Required: true},
			},
		},
		{
			Name:        GetNodeDefinition,
			Description: "Read a prototype's definition by id or name.",
			Fields: []Field{
				{Name: "prototype_id", Type: TypeString},
				{Name: "name", Type: TypeString},
			},
		},
		{
			Name:        SparqlQuery,
			Description: "Run a SPARQL query against an external endpoint.",
			Fields: []Field{
				{Name: "endpoint", Type: TypeString, Required: true},
				{Name: "query", Type: TypeString, Required: true},
				{Name: "timeout_seconds", Type: TypeInteger, Default: float64(30), Min: f64(1), Max: f64(45)},
			},
		},
		{
			Name:        SemanticSearch,
			Description: "Search the configured semantic index.",
			Fields: []Field{
				{Name: "query", Type: TypeString, Required: true},
				{Name: "limit", Type: TypeInteger, Default: float64(10), Min: f64(1), Max: f64(50)},
			},
		},
		{
			Name:        UpdateNodePrototype,
			Description: "Update fields of an existing prototype.",
			Fields: []Field{
				{Name: "prototype_id", Type: TypeString, Required: true},
				{Name: "name", Type: TypeString},
				{Name: "description", Type: TypeString},
				{Name: "color", Type: TypeString, Color: true},
			},
		},
		{
			Name:        DeleteNodeInstance,
			Description: "Remove one instance from its graph.",
			Fields: []Field{
				{Name: "instance_id", Type: TypeString, Required: true},
			},
		},
		{
			Name:        DeleteNodePrototype,
			Description: "Delete a prototype and its placements.",
			Fields: []Field{
				{Name: "prototype_id", Type: TypeString, Required: true},
			},
		},
		{
			Name:        DeleteGraph,
			Description: "Delete a graph; accepts an id or, failing that, a case-insensitive name.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
			},
		},
		{
			Name:        DeleteEdge,
			Description: "Delete one edge.",
			Fields: []Field{
				{Name: "edge_id", Type: TypeString, Required: true},
			},
		},
		{
			Name:        CreateGroup,
			Description: "Group instances on the canvas.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "name", Type: TypeString, Required: true},
				{Name: "member_ids", Type: TypeArray, Required: true},
			},
		},
		{
			Name:        ConvertToNodeGroup,
			Description: "Convert selected instances into a node group.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
				{Name: "instance_ids", Type: TypeArray, Required: true},
			},
		},
		{
			Name:        SetActiveGraph,
			Description: "Switch the active graph.",
			Fields: []Field{
				{Name: "graph_id", Type: TypeString, Required: true},
			},
		},
		{
			Name:        VerifyState,
			Description: "No-op task emitted for goals with an empty plan.",
			Fields:      []Field{},
		},
	}
}
