package domain

import "time"

// ToolCallState tracks how much of a tool invocation has arrived
type ToolCallState string

const (
	ToolInputAvailable  ToolCallState = "input-available"
	ToolOutputAvailable ToolCallState = "output-available"
)

// ToolCall records one agent tool invocation. CallID is the upstream
// call id and acts as the idempotency key within a session.
type ToolCall struct {
	CallID    string
	EndedAt   *time.Time
	Input     []byte
	Name      string
	Output    []byte
	SessionID string
	StartedAt time.Time
	State     ToolCallState
	TodoIndex int
}

// NoteKind distinguishes streamed prose from agent reasoning
type NoteKind string

const (
	NoteText      NoteKind = "text"
	NoteReasoning NoteKind = "reasoning"
)

// Note is accumulated free text belonging to a session and todo index.
// TextID, when set, is the upstream stream id used for incremental
// appends; appends are concatenative and order-preserving per TextID.
type Note struct {
	Content   string
	CreatedAt time.Time
	ID        uint
	Kind      NoteKind
	SessionID string
	TextID    string
	TodoIndex int
}
