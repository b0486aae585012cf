package mirror

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/bridge/pkg/models"
)

func citySnapshot() *models.StateSnapshot {
	return &models.StateSnapshot{
		Graphs: []models.Graph{{
			ID: "g1", Name: "Cities",
			InstanceIDs: []string{"i1", "i2"},
			EdgeIDs:     []string{"e1"},
		}},
		Prototypes: []models.NodePrototype{
			{ID: "p1", Name: "Paris", Description: "Capital", Color: "#ff0000"},
			{ID: "p2", Name: "Lyon"},
		},
		Instances: []models.NodeInstance{
			{ID: "i1", GraphID: "g1", PrototypeID: "p1", X: 100, Y: 200},
			{ID: "i2", GraphID: "g1", PrototypeID: "p2", X: -50, Y: 75},
		},
		Edges: []models.Edge{
			{ID: "e1", SourceID: "i1", DestinationID: "i2", Name: "rail", ArrowsToward: []string{"i2"}},
		},
		ActiveGraphID: strPtr("g1"),
	}
}

func TestSemanticStructureShape(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	s := m.SemanticStructure("g1", StructureOptions{IncludeDescriptions: true, IncludeColors: true})
	require.NotNil(t, s)

	assert.Equal(t, 2, s.NodeCount)
	assert.Equal(t, 1, s.EdgeCount)
	assert.False(t, s.IsEmpty)
	assert.Equal(t, "Paris", s.Nodes[0].Name)
	assert.Equal(t, "Capital", s.Nodes[0].Description)
	assert.Equal(t, "Paris → Lyon", s.Edges[0].Label)
	assert.Equal(t, models.DirectionalityUnidirectional, s.Edges[0].Directionality)
}

func TestSemanticStructureHasNoCoordinates(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	s := m.SemanticStructure("g1", StructureOptions{})
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, node := range decoded["nodes"].([]any) {
		fields := node.(map[string]any)
		_, hasX := fields["x"]
		_, hasY := fields["y"]
		assert.False(t, hasX, "projection must not leak x")
		assert.False(t, hasY, "projection must not leak y")
	}
}

func TestSemanticStructureUnknownGraph(t *testing.T) {
	m := New()
	assert.Nil(t, m.SemanticStructure("nope", StructureOptions{}))
}

func TestFindGraphsByName(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	assert.Len(t, m.FindGraphsByName("cit"), 1)
	assert.Len(t, m.FindGraphsByName("CITIES"), 1)
	assert.Empty(t, m.FindGraphsByName("energy"))
}

func TestGraphByNameCaseInsensitive(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	g := m.GraphByName("cities")
	require.NotNil(t, g)
	assert.Equal(t, "g1", g.ID)
}

func TestPrototypeLookups(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	p := m.PrototypeByName("PARIS")
	require.NotNil(t, p)
	assert.Equal(t, "p1", p.ID)

	// Fuzzy reflexivity: an existing name always dedupes to itself.
	match, score := m.SimilarPrototype("Paris", 0.80)
	require.NotNil(t, match)
	assert.Equal(t, "p1", match.ID)
	assert.Equal(t, 1.0, score)

	// Typo within threshold.
	match, score = m.SimilarPrototype("Lyonn", 0.80)
	require.NotNil(t, match)
	assert.Equal(t, "p2", match.ID)
	assert.Less(t, score, 1.0)

	// Nothing close enough.
	match, _ = m.SimilarPrototype("Marseille", 0.80)
	assert.Nil(t, match)
}

func TestInstanceOfPrototype(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	assert.Equal(t, "i1", m.InstanceOfPrototype("g1", "p1"))
	assert.Equal(t, "", m.InstanceOfPrototype("g1", "missing"))
	assert.Equal(t, "", m.InstanceOfPrototype("missing", "p1"))
}

func TestGraphContentsOrdered(t *testing.T) {
	m := New()
	m.SmartMerge(citySnapshot())

	instances, edges := m.GraphContents("g1")
	require.Len(t, instances, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, "i1", instances[0].ID)
	assert.Equal(t, "i2", instances[1].ID)
}
