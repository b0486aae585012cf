package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/bridge/pkg/models"
)

func TestPostErrorFormatsGuidance(t *testing.T) {
	c := New()
	c.PostError("cid-1", "delete_graph", `graph "Cities" not found`,
		map[string]any{"name": "Cities"}, "List existing graphs with verify_state first.")

	msgs := c.Messages("cid-1")
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Equal(t, models.ChatRoleSystem, msg.Role)
	assert.Contains(t, msg.Content, `Tool "delete_graph" failed`)
	assert.Contains(t, msg.Content, "not found")
	assert.Contains(t, msg.Content, "Guidance: List existing graphs")
	assert.Equal(t, "delete_graph", msg.Payload["tool"])
	assert.False(t, msg.Timestamp.IsZero())
}

func TestPostErrorWithoutGuidanceOmitsLine(t *testing.T) {
	c := New()
	c.PostError("cid-1", "create_edge", "Invalid edge", nil, "")

	msgs := c.Messages("cid-1")
	require.Len(t, msgs, 1)
	assert.NotContains(t, msgs[0].Content, "Guidance:")
}

func TestPostReadCarriesPayload(t *testing.T) {
	c := New()
	c.PostRead("cid-1", "verify_state", map[string]any{"graphCount": 2})

	msgs := c.Messages("cid-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ChatRoleAssistant, msgs[0].Role)
	assert.Equal(t, "Result of verify_state", msgs[0].Content)
	assert.Equal(t, 2, msgs[0].Payload["graphCount"])
}

func TestMessagesAreIsolatedByCid(t *testing.T) {
	c := New()
	c.Post(models.ChatMessage{CID: "a", Role: models.ChatRoleAssistant, Content: "one"})
	c.Post(models.ChatMessage{CID: "b", Role: models.ChatRoleAssistant, Content: "two"})
	c.Post(models.ChatMessage{CID: "a", Role: models.ChatRoleAssistant, Content: "three"})

	assert.Equal(t, 2, c.Count("a"))
	assert.Equal(t, 1, c.Count("b"))

	msgs := c.Messages("a")
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestMessageWithoutCidIsDropped(t *testing.T) {
	c := New()
	c.Post(models.ChatMessage{Role: models.ChatRoleSystem, Content: "orphan"})
	assert.Empty(t, c.Messages(""))
}
