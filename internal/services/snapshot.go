package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

// SnapshotBuilder re-derives a complete GenerationState from the
// session store. It never reads processor cursor state, so any two
// processes rebuilding from the same store see identical snapshots.
type SnapshotBuilder struct {
	repo ports.SessionRepository
}

// NewSnapshotBuilder creates a snapshot builder
func NewSnapshotBuilder(repo ports.SessionRepository) *SnapshotBuilder {
	return &SnapshotBuilder{repo: repo}
}

// Rebuild fetches the session's rows, assembles the snapshot, writes
// it back as the cached raw-state blob with a strictly increased
// version, and returns it. Callers serialize invocations per build.
func (b *SnapshotBuilder) Rebuild(ctx context.Context, sessionID string) (*domain.GenerationState, []byte, error) {
	session, err := b.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	var (
		projectName string
		todos       []domain.Todo
		calls       []domain.ToolCall
		notes       []domain.Note
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		project, err := b.repo.GetProject(gctx, session.ProjectID)
		if err != nil {
			if errors.Is(err, domain.ErrProjectNotFound) {
				return nil
			}
			return err
		}
		projectName = project.Name
		return nil
	})
	g.Go(func() error {
		var err error
		todos, err = b.repo.ListTodos(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		calls, err = b.repo.ListToolCalls(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		notes, err = b.repo.ListNotes(gctx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch session rows: %w", err)
	}

	state := assemble(session, projectName, todos, calls, notes)
	state.Version = session.StateVersion + 1

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	if err := b.repo.SaveSnapshot(ctx, sessionID, raw, state.Version); err != nil {
		return nil, nil, err
	}

	logging.Logger.Debug("rebuilt snapshot",
		"session_id", sessionID,
		"version", state.Version,
		"todos", len(state.Todos),
	)
	return state, raw, nil
}

// assemble is the pure derivation from rows to snapshot
func assemble(session *domain.Session, projectName string, todos []domain.Todo, calls []domain.ToolCall, notes []domain.Note) *domain.GenerationState {
	callsByTodo := make(map[int][]domain.ToolCallSnapshot)
	for _, c := range calls {
		callsByTodo[c.TodoIndex] = append(callsByTodo[c.TodoIndex], domain.ToolCallSnapshot{
			CallID:    c.CallID,
			EndedAt:   c.EndedAt,
			Input:     c.Input,
			Name:      c.Name,
			Output:    c.Output,
			StartedAt: c.StartedAt,
			State:     c.State,
		})
	}

	notesByTodo := make(map[int][]domain.NoteSnapshot)
	for _, n := range notes {
		notesByTodo[n.TodoIndex] = append(notesByTodo[n.TodoIndex], domain.NoteSnapshot{
			Content:   n.Content,
			CreatedAt: n.CreatedAt,
			Kind:      n.Kind,
			TextID:    n.TextID,
		})
	}

	todoSnapshots := make([]domain.TodoSnapshot, len(todos))
	for i, t := range todos {
		todoSnapshots[i] = domain.TodoSnapshot{
			ActiveForm: t.ActiveForm,
			Content:    t.Content,
			Index:      t.Index,
			Notes:      notesByTodo[t.Index],
			Status:     t.Status,
			ToolCalls:  callsByTodo[t.Index],
		}
	}

	return &domain.GenerationState{
		ActiveTodoIndex: domain.ActiveTodoIndex(todos),
		AgentState:      carryAgentState(session.RawState),
		BuildID:         session.BuildID,
		Operation:       session.Operation,
		ProjectID:       session.ProjectID,
		ProjectName:     projectName,
		SessionID:       session.ID,
		StartedAt:       session.StartedAt,
		Status:          session.Status,
		Todos:           todoSnapshots,
		Unassigned:      callsByTodo[domain.NoTodo],
		UpdatedAt:       time.Now().UTC(),
	}
}

// carryAgentState extracts the opaque nested agent state from the
// previously persisted blob. An unreadable blob drops the carry-over
// rather than failing the rebuild.
func carryAgentState(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var prior struct {
		AgentState json.RawMessage `json:"agentState"`
	}
	if err := json.Unmarshal(raw, &prior); err != nil {
		logging.Logger.Warn("failed to parse cached snapshot blob, dropping agent state", "error", err)
		return nil
	}
	return prior.AgentState
}
