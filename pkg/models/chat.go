package models

import "time"

// Chat message roles.
const (
	ChatRoleSystem    = "system"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry on the per-conversation feedback channel.
// Permanent executor failures and readResponse payloads are delivered here,
// keyed by cid, so the agent can observe them on subsequent turns.
type ChatMessage struct {
	CID       string         `json:"cid"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
