package domain

import (
	"encoding/json"
	"fmt"
)

// BuildEvent is the closed set of events a build's feed can carry.
// Unrecognized wire types decode to UnknownEvent so dispatch stays
// exhaustive without erroring on new upstream event kinds.
type BuildEvent interface {
	eventType() string
}

// StartEvent opens a new agent message
type StartEvent struct {
	MessageID string
}

// TodoItem is one entry of a full todo-list replacement
type TodoItem struct {
	ActiveForm string `json:"activeForm"`
	Content    string `json:"content"`
	Status     string `json:"status"`
}

// TodoListEvent is a tool invocation that replaces the entire todo
// list. The call itself is persisted like any other tool call.
type TodoListEvent struct {
	CallID string
	Input  []byte
	Todos  []TodoItem
}

// ToolInputEvent is a tool invocation other than a todo-list
// replacement. TodoIndex is nil when the upstream event carries no
// explicit association.
type ToolInputEvent struct {
	CallID    string
	Input     []byte
	Name      string
	TodoIndex *int
}

// ToolOutputEvent carries the result of an earlier tool invocation.
// Name may be empty; the processor restores it from its id→name map.
type ToolOutputEvent struct {
	CallID string
	Name   string
	Output []byte
}

// TextDeltaEvent is an incremental chunk of streamed prose
type TextDeltaEvent struct {
	Delta  string
	TextID string
}

// ReasoningEvent is a freeform agent reasoning note
type ReasoningEvent struct {
	Text string
}

// MessageFinishEvent closes the current agent message. It does not
// finalize the build; one build spans many finished messages.
type MessageFinishEvent struct {
	MessageID string
}

// UnknownEvent is the ignore-fallback for unrecognized wire types
type UnknownEvent struct {
	Type string
}

func (StartEvent) eventType() string         { return "start" }
func (TodoListEvent) eventType() string      { return "todo-list" }
func (ToolInputEvent) eventType() string     { return "tool-input" }
func (ToolOutputEvent) eventType() string    { return "tool-output" }
func (TextDeltaEvent) eventType() string     { return "text-delta" }
func (ReasoningEvent) eventType() string     { return "reasoning" }
func (MessageFinishEvent) eventType() string { return "finish" }
func (UnknownEvent) eventType() string       { return "unknown" }

// TodoWriteTool is the tool name whose invocation replaces the todo list
const TodoWriteTool = "TodoWrite"

// wireEvent is the envelope every feed message shares
type wireEvent struct {
	Delta      string          `json:"delta"`
	ID         string          `json:"id"`
	Input      json.RawMessage `json:"input"`
	MessageID  string          `json:"messageId"`
	Output     json.RawMessage `json:"output"`
	Text       string          `json:"text"`
	TodoIndex  *int            `json:"todoIndex"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Type       string          `json:"type"`
}

// DecodeEvent parses a raw feed message into a BuildEvent. Malformed
// JSON is an error (the event is dropped by the caller); an
// unrecognized type decodes successfully to UnknownEvent.
func DecodeEvent(data []byte) (BuildEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch w.Type {
	case "start":
		return StartEvent{MessageID: w.MessageID}, nil
	case "tool-input-available":
		if w.ToolName == TodoWriteTool {
			var input struct {
				Todos []TodoItem `json:"todos"`
			}
			if err := json.Unmarshal(w.Input, &input); err != nil {
				return nil, fmt.Errorf("decode %s input: %w", TodoWriteTool, err)
			}
			return TodoListEvent{
				CallID: w.ToolCallID,
				Input:  w.Input,
				Todos:  input.Todos,
			}, nil
		}
		return ToolInputEvent{
			CallID:    w.ToolCallID,
			Input:     w.Input,
			Name:      w.ToolName,
			TodoIndex: w.TodoIndex,
		}, nil
	case "tool-output-available":
		return ToolOutputEvent{
			CallID: w.ToolCallID,
			Name:   w.ToolName,
			Output: w.Output,
		}, nil
	case "text-delta":
		return TextDeltaEvent{Delta: w.Delta, TextID: w.ID}, nil
	case "reasoning":
		return ReasoningEvent{Text: w.Text}, nil
	case "finish":
		return MessageFinishEvent{MessageID: w.MessageID}, nil
	default:
		return UnknownEvent{Type: w.Type}, nil
	}
}
