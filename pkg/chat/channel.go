// Package chat is the feedback channel between the pipeline and the agent's
// conversation: permanent errors and read responses are posted here keyed
// by correlation id, where the agent (and the UI) can observe them.
package chat

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/graphweave/bridge/pkg/models"
)

// Channel stores messages per cid. Posting never fails upward; a channel
// problem must not turn a side-effect into a pipeline error.
type Channel struct {
	mu       sync.Mutex
	messages map[string][]models.ChatMessage
}

// New creates an empty channel.
func New() *Channel {
	return &Channel{messages: make(map[string][]models.ChatMessage)}
}

// Post appends a message for the cid.
func (c *Channel) Post(msg models.ChatMessage) {
	if msg.CID == "" {
		slog.Warn("Dropping chat message without cid", "role", msg.Role)
		return
	}
	msg.Timestamp = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[msg.CID] = append(c.messages[msg.CID], msg)
}

// PostError posts the formatted system message for a permanently failed
// tool call: tool name, error text, the arguments as submitted, and
// targeted guidance the agent can act on next turn.
func (c *Channel) PostError(cid, tool, errText string, args any, guidance string) {
	content := fmt.Sprintf("Tool %q failed: %s", tool, errText)
	if guidance != "" {
		content += "\nGuidance: " + guidance
	}
	c.Post(models.ChatMessage{
		CID:     cid,
		Role:    models.ChatRoleSystem,
		Content: content,
		Payload: map[string]any{
			"tool":      tool,
			"error":     errText,
			"arguments": args,
			"guidance":  guidance,
		},
	})
}

// PostRead delivers a readResponse payload as a structured message.
func (c *Channel) PostRead(cid, tool string, payload map[string]any) {
	c.Post(models.ChatMessage{
		CID:     cid,
		Role:    models.ChatRoleAssistant,
		Content: fmt.Sprintf("Result of %s", tool),
		Payload: payload,
	})
}

// Messages returns the messages recorded for a cid, oldest first.
func (c *Channel) Messages(cid string) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages[cid]...)
}

// Count returns the number of messages for a cid.
func (c *Channel) Count(cid string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages[cid])
}
