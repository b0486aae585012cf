package models

import "encoding/json"

// Meta rides along every pipeline record. The correlation id is minted at
// the agent-turn boundary and propagated goal → task → patch → review so
// traces and chat feedback can be attached to the originating conversation.
type Meta struct {
	CID      string `json:"cid"`
	ThreadID string `json:"threadId"`
	Attempt  int    `json:"attempt,omitempty"`
}

// ToolCall is one tool invocation requested by the agent.
type ToolCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Goal is the unit the planner consumes: an ordered fan of tool calls for
// one agent turn.
type Goal struct {
	GoalID   string     `json:"goalId"`
	ThreadID string     `json:"threadId"`
	Calls    []ToolCall `json:"calls"`
	Meta     Meta       `json:"meta"`
}

// Task is one tool call scheduled for the executor.
type Task struct {
	TaskID   string          `json:"taskId"`
	GoalID   string          `json:"goalId"`
	ThreadID string          `json:"threadId"`
	Tool     string          `json:"tool"`
	Args     json.RawMessage `json:"args"`
	Meta     Meta            `json:"meta"`
}

// Review statuses stamped by the auditor.
const (
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// Review wraps an audited patch on its way to the committer.
type Review struct {
	ReviewStatus string `json:"reviewStatus"`
	GraphID      string `json:"graphId,omitempty"`
	Patch        Patch  `json:"patch"`
	Reason       string `json:"reason,omitempty"`
	Meta         Meta   `json:"meta"`
}

// PendingAction is one approved patch waiting in the outbox for the UI to
// drain and apply.
type PendingAction struct {
	ActionID string `json:"actionId"`
	Patch    Patch  `json:"patch"`
}
