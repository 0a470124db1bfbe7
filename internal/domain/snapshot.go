package domain

import (
	"encoding/json"
	"time"
)

// ToolCallSnapshot is a tool call as it appears inside a snapshot
type ToolCallSnapshot struct {
	CallID    string          `json:"callId"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Name      string          `json:"name"`
	Output    json.RawMessage `json:"output,omitempty"`
	StartedAt time.Time       `json:"startedAt"`
	State     ToolCallState   `json:"state"`
}

// NoteSnapshot is a note as it appears inside a snapshot
type NoteSnapshot struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Kind      NoteKind  `json:"kind"`
	TextID    string    `json:"textId,omitempty"`
}

// TodoSnapshot is one todo with its dependent tool calls and notes
type TodoSnapshot struct {
	ActiveForm string             `json:"activeForm"`
	Content    string             `json:"content"`
	Index      int                `json:"index"`
	Notes      []NoteSnapshot     `json:"notes,omitempty"`
	Status     TodoStatus         `json:"status"`
	ToolCalls  []ToolCallSnapshot `json:"toolCalls,omitempty"`
}

// GenerationState is the fully rebuilt, versioned view of a build,
// derived solely from durable storage. It is what subscribers receive
// and what the session caches as its raw-state blob.
type GenerationState struct {
	ActiveTodoIndex int                `json:"activeTodoIndex"`
	AgentState      json.RawMessage    `json:"agentState,omitempty"`
	BuildID         string             `json:"buildId"`
	Operation       OperationType      `json:"operation"`
	ProjectID       string             `json:"projectId"`
	ProjectName     string             `json:"projectName"`
	SessionID       string             `json:"sessionId"`
	StartedAt       time.Time          `json:"startedAt"`
	Status          SessionStatus      `json:"status"`
	Todos           []TodoSnapshot     `json:"todos"`
	Unassigned      []ToolCallSnapshot `json:"unassigned,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	Version         int64              `json:"version"`
}
