package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanent(t *testing.T) {
	permanent := []string{
		`Validation failed for create_graph: missing required field "name"`,
		`Tool not allowed: "drop_database"`,
		`graph "g9" not found`,
		`Invalid edge: node "Ghost" not found in batch or graph`,
	}
	for _, msg := range permanent {
		assert.True(t, IsPermanent(msg), msg)
	}

	transient := []string{
		"connection refused",
		"context deadline exceeded",
		"temporary mirror contention",
	}
	for _, msg := range transient {
		assert.False(t, IsPermanent(msg), msg)
	}
}

func TestGuidanceTargetsTheFailure(t *testing.T) {
	assert.Contains(t, Guidance("delete_graph", `graph "x" not found`), "graph_id")
	assert.Contains(t, Guidance("create_node_instance", `prototype "p" not found`), "prototype")
	assert.Contains(t, Guidance("create_edge", `instance "i" not found`), "instance")
	assert.Contains(t, Guidance("create_graph", `missing required field "name"`), "required")
	assert.Empty(t, Guidance("create_graph", "connection refused"))
}
