package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(DefaultSpecs())
}

func TestValidateUnknownTool(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate("drop_database", json.RawMessage(`{}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, ErrToolNotAllowed)
}

func TestValidateMissingRequired(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(CreateGraph, json.RawMessage(`{}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, "missing required")
	assert.Contains(t, res.Err, "name")
}

func TestValidateTrimsAndDefaults(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(CreateSubgraph, json.RawMessage(`{
		"graph_id": "  g1  ",
		"nodes": [{"name": " Paris ", "junk": 1}]
	}`))
	require.True(t, res.Valid, res.Err)

	assert.Equal(t, "g1", res.Sanitized["graph_id"])
	assert.Equal(t, "force", res.Sanitized["layout"], "default applied")
	assert.Equal(t, "auto", res.Sanitized["layout_mode"])

	nodes := res.Sanitized["nodes"].([]any)
	node := nodes[0].(map[string]any)
	assert.Equal(t, "Paris", node["name"])
	_, hasJunk := node["junk"]
	assert.False(t, hasJunk, "unknown fields are dropped")
}

func TestValidateDropsCamelCaseKeys(t *testing.T) {
	r := testRegistry(t)
	// The surface is snake_case only; a camelCase key is unknown and its
	// absence then fails the required check.
	res := r.Validate(DeleteGraph, json.RawMessage(`{"graphId": "g1"}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, "missing required")
}

func TestValidateCoercesTypes(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(DefineConnections, json.RawMessage(`{
		"graph_id": "g1",
		"limit": "25",
		"skip_generic": "false"
	}`))
	require.True(t, res.Valid, res.Err)
	assert.Equal(t, float64(25), res.Sanitized["limit"])
	assert.Equal(t, false, res.Sanitized["skip_generic"])
}

func TestValidateRangeViolations(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(SparqlQuery, json.RawMessage(`{
		"endpoint": "https://example.org/sparql",
		"query": "SELECT * WHERE { ?s ?p ?o }",
		"timeout_seconds": 120
	}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, "Validation failed")
}

func TestValidateEnum(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(CreateEdge, json.RawMessage(`{
		"graph_id": "g1", "source_id": "i1", "destination_id": "i2",
		"direction": "sideways"
	}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, "Validation failed")
}

func TestValidateNormalizesColor(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(CreateGraph, json.RawMessage(`{"name": "Cities", "color": "#A1F"}`))
	require.True(t, res.Valid, res.Err)
	assert.Equal(t, "#aa11ff", res.Sanitized["color"])
}

func TestValidateEmptyStringCountsAsAbsent(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(DeleteGraph, json.RawMessage(`{"graph_id": "   "}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, "missing required")
}

func TestValidateNonObjectArguments(t *testing.T) {
	r := testRegistry(t)
	res := r.Validate(DeleteGraph, json.RawMessage(`[1,2,3]`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Err, "Validation failed")
}

func TestDefinitionsShape(t *testing.T) {
	r := testRegistry(t)
	defs := r.Definitions()
	require.Len(t, defs, len(DefaultSpecs()))

	fn := defs[0]["function"].(map[string]any)
	assert.Equal(t, CreateNode, fn["name"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
}

func TestNamesStable(t *testing.T) {
	r := testRegistry(t)
	names := r.Names()
	require.NotEmpty(t, names)
	assert.Equal(t, CreateNode, names[0])
	assert.Contains(t, names, CreateSubgraphInNewGraph)
}
