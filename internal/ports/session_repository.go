package ports

import (
	"context"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

// SessionReader reads session data
type SessionReader interface {
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListNotes(ctx context.Context, sessionID string) ([]domain.Note, error)
	ListStaleSessions(ctx context.Context, cutoff time.Time) ([]domain.Session, error)
	ListTodos(ctx context.Context, sessionID string) ([]domain.Todo, error)
	ListToolCalls(ctx context.Context, sessionID string) ([]domain.ToolCall, error)
}

// SessionWriter creates sessions and drives their lifecycle
type SessionWriter interface {
	CreateSession(ctx context.Context, session domain.Session) error
	UpdateProjectStatus(ctx context.Context, projectID, status string) error
	UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error
}

// TodoStore persists the ordered task list
type TodoStore interface {
	// ReplaceTodos upserts the full list by position and prunes rows
	// (with their dependent tool calls and notes) beyond the new
	// length, all in one transaction.
	ReplaceTodos(ctx context.Context, sessionID string, todos []domain.Todo) error
}

// ToolCallStore persists tool invocations keyed by upstream call id
type ToolCallStore interface {
	// ResolveToolCall marks a call output-available. When no row
	// matches the call id, a row is created if a name is known,
	// otherwise the result is dropped; resolved reports whether a row
	// was written.
	ResolveToolCall(ctx context.Context, sessionID, callID, name string, output []byte) (resolved bool, err error)
	UpsertToolCall(ctx context.Context, call domain.ToolCall) error
}

// NoteStore persists accumulated free text
type NoteStore interface {
	// AppendNote concatenates onto an existing note when the session
	// already holds one for note.TextID, otherwise creates a new row.
	AppendNote(ctx context.Context, note domain.Note) error
}

// SnapshotStore caches the rebuilt state blob on the session row
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, sessionID string) (raw []byte, version int64, err error)
	// SaveSnapshot writes the cached blob with the given version. The
	// write is rejected unless version is strictly greater than the
	// stored one, keeping the counter monotonic.
	SaveSnapshot(ctx context.Context, sessionID string, raw []byte, version int64) error
}

// SessionRepository is the composite interface
type SessionRepository interface {
	SessionReader
	SessionWriter
	TodoStore
	ToolCallStore
	NoteStore
	SnapshotStore
	Close() error
}
