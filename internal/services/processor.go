package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

// RegisterParams identifies one build to track
type RegisterParams struct {
	AgentID   string
	BuildID   string
	CommandID string
	ModelID   string
	Operation domain.OperationType
	ProjectID string
	SessionID string
}

func (p RegisterParams) validate() error {
	switch {
	case p.CommandID == "":
		return errors.New("command id is required")
	case p.SessionID == "":
		return errors.New("session id is required")
	case p.ProjectID == "":
		return errors.New("project id is required")
	case p.BuildID == "":
		return errors.New("build id is required")
	case p.AgentID == "":
		return errors.New("agent id is required")
	}
	return nil
}

// build is the per-command tracking state. Cursor fields are advisory
// only; snapshots always re-derive from the store.
type build struct {
	activeIdx    int
	done         atomic.Bool
	msg          *messageBuffer
	params       RegisterParams
	registeredAt time.Time
	stopFeed     func()
	teardown     func()
	toolNames    map[string]string
}

// SessionManager is the build session state synchronizer: it
// subscribes each registered build to its event feed, persists
// per-event deltas, and triggers serialized snapshot refreshes. The
// registry map is held by the instance, not a package global.
type SessionManager struct {
	builds    map[string]*build
	feed      ports.EventFeed
	mu        sync.Mutex
	publisher ports.SnapshotPublisher
	refreshMu map[string]*sync.Mutex
	repo      ports.SessionRepository
	snapshots *SnapshotBuilder
}

// NewSessionManager creates a session manager
func NewSessionManager(repo ports.SessionRepository, feed ports.EventFeed, publisher ports.SnapshotPublisher) *SessionManager {
	return &SessionManager{
		builds:    make(map[string]*build),
		feed:      feed,
		publisher: publisher,
		refreshMu: make(map[string]*sync.Mutex),
		repo:      repo,
		snapshots: NewSnapshotBuilder(repo),
	}
}

// Register starts tracking a build and subscribes to its event feed.
// Registering an already-active command id is a no-op returning the
// existing teardown handle.
func (m *SessionManager) Register(ctx context.Context, params RegisterParams) (func(), error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}
	if params.Operation == "" {
		params.Operation = domain.OperationInitialBuild
	}

	m.mu.Lock()
	if existing, ok := m.builds[params.CommandID]; ok {
		m.mu.Unlock()
		logging.Logger.Debug("build already registered", "command_id", params.CommandID)
		return existing.teardown, nil
	}
	m.mu.Unlock()

	if err := m.ensureSession(ctx, params); err != nil {
		return nil, err
	}

	events, stopFeed, err := m.feed.Subscribe(ctx, params.CommandID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to event feed: %w", err)
	}

	b := &build{
		activeIdx:    domain.NoTodo,
		params:       params,
		registeredAt: time.Now().UTC(),
		stopFeed:     stopFeed,
		toolNames:    make(map[string]string),
	}

	var once sync.Once
	b.teardown = func() {
		once.Do(func() {
			// Mark done first so events already buffered by the feed
			// are dropped instead of landing on the finalized session
			b.done.Store(true)
			b.stopFeed()
			m.mu.Lock()
			delete(m.builds, params.CommandID)
			delete(m.refreshMu, params.SessionID)
			m.mu.Unlock()
			logging.Logger.Info("build torn down", "command_id", params.CommandID)
		})
	}

	m.mu.Lock()
	if existing, ok := m.builds[params.CommandID]; ok {
		// Raced with another registration; keep the first
		m.mu.Unlock()
		stopFeed()
		return existing.teardown, nil
	}
	m.builds[params.CommandID] = b
	m.mu.Unlock()

	go m.run(b, events)

	logging.Logger.Info("build registered",
		"command_id", params.CommandID,
		"session_id", params.SessionID,
		"project_id", params.ProjectID,
		"build_id", params.BuildID,
	)
	return b.teardown, nil
}

// ensureSession creates the session row unless a prior registration
// (or process restart) already did.
func (m *SessionManager) ensureSession(ctx context.Context, params RegisterParams) error {
	_, err := m.repo.GetSession(ctx, params.SessionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	return m.repo.CreateSession(ctx, domain.Session{
		AgentID:   params.AgentID,
		BuildID:   params.BuildID,
		CommandID: params.CommandID,
		ID:        params.SessionID,
		ModelID:   params.ModelID,
		Operation: params.Operation,
		ProjectID: params.ProjectID,
		StartedAt: time.Now().UTC(),
		Status:    domain.StatusPending,
	})
}

// run drains the build's feed channel. Events are handled strictly in
// arrival order; a failed event is logged and dropped so the pipeline
// keeps going.
func (m *SessionManager) run(b *build, events <-chan domain.BuildEvent) {
	for event := range events {
		// Persistence uses a background context: tearing down the
		// subscription must not abort a write already in flight.
		if err := m.handleEvent(context.Background(), b, event); err != nil {
			logging.Logger.Error("failed to handle build event",
				"command_id", b.params.CommandID,
				"error", err,
			)
		}
	}
}

func (m *SessionManager) handleEvent(ctx context.Context, b *build, event domain.BuildEvent) error {
	if b.done.Load() {
		logging.Logger.Debug("dropping event for torn-down build",
			"command_id", b.params.CommandID,
		)
		return nil
	}

	switch ev := event.(type) {
	case domain.StartEvent:
		return m.handleStart(ctx, b, ev)
	case domain.TodoListEvent:
		return m.handleTodoList(ctx, b, ev)
	case domain.ToolInputEvent:
		return m.handleToolInput(ctx, b, ev)
	case domain.ToolOutputEvent:
		return m.handleToolOutput(ctx, b, ev)
	case domain.TextDeltaEvent:
		return m.handleTextDelta(ctx, b, ev)
	case domain.ReasoningEvent:
		return m.handleReasoning(ctx, b, ev)
	case domain.MessageFinishEvent:
		return m.handleFinish(b, ev)
	case domain.UnknownEvent:
		logging.Logger.Debug("ignoring unknown event type",
			"command_id", b.params.CommandID,
			"type", ev.Type,
		)
		return nil
	default:
		return nil
	}
}

func (m *SessionManager) handleStart(ctx context.Context, b *build, ev domain.StartEvent) error {
	if err := m.repo.UpdateSessionStatus(ctx, b.params.SessionID, domain.StatusActive); err != nil {
		return err
	}
	b.msg = newMessageBuffer(ev.MessageID)
	return m.Refresh(ctx, b.params.SessionID, b.params.ProjectID)
}

func (m *SessionManager) handleTodoList(ctx context.Context, b *build, ev domain.TodoListEvent) error {
	todos := make([]domain.Todo, len(ev.Todos))
	for i, item := range ev.Todos {
		todos[i] = domain.Todo{
			ActiveForm: item.ActiveForm,
			Content:    item.Content,
			Index:      i,
			SessionID:  b.params.SessionID,
			Status:     todoStatusFromWire(item.Status),
		}
	}
	todos = domain.NormalizeTodos(todos)

	if err := m.repo.ReplaceTodos(ctx, b.params.SessionID, todos); err != nil {
		return err
	}
	b.activeIdx = domain.ActiveTodoIndex(todos)

	if err := m.repo.UpsertToolCall(ctx, domain.ToolCall{
		CallID:    ev.CallID,
		Input:     ev.Input,
		Name:      domain.TodoWriteTool,
		SessionID: b.params.SessionID,
		StartedAt: time.Now().UTC(),
		State:     domain.ToolInputAvailable,
		TodoIndex: b.activeIdx,
	}); err != nil {
		return err
	}
	b.toolNames[ev.CallID] = domain.TodoWriteTool
	if b.msg != nil {
		b.msg.addToolPart(ev.CallID, domain.TodoWriteTool)
	}

	// Refresh immediately so dependent tool events find the todos
	if err := m.Refresh(ctx, b.params.SessionID, b.params.ProjectID); err != nil {
		return err
	}

	if domain.AllTodosCompleted(todos) {
		// Defends against a missing or delayed terminal signal
		logging.Logger.Info("all todos completed, auto-finalizing build",
			"command_id", b.params.CommandID,
		)
		return m.finalize(ctx, b, domain.StatusCompleted)
	}
	return nil
}

func (m *SessionManager) handleToolInput(ctx context.Context, b *build, ev domain.ToolInputEvent) error {
	idx := b.activeIdx
	if ev.TodoIndex != nil {
		idx = *ev.TodoIndex
	}

	b.toolNames[ev.CallID] = ev.Name
	if err := m.repo.UpsertToolCall(ctx, domain.ToolCall{
		CallID:    ev.CallID,
		Input:     ev.Input,
		Name:      ev.Name,
		SessionID: b.params.SessionID,
		StartedAt: time.Now().UTC(),
		State:     domain.ToolInputAvailable,
		TodoIndex: idx,
	}); err != nil {
		return err
	}
	if b.msg != nil {
		b.msg.addToolPart(ev.CallID, ev.Name)
	}

	return m.Refresh(ctx, b.params.SessionID, b.params.ProjectID)
}

func (m *SessionManager) handleToolOutput(ctx context.Context, b *build, ev domain.ToolOutputEvent) error {
	name := ev.Name
	if name == "" {
		name = b.toolNames[ev.CallID]
	}

	resolved, err := m.repo.ResolveToolCall(ctx, b.params.SessionID, ev.CallID, name, ev.Output)
	if err != nil {
		return err
	}
	if !resolved {
		logging.Logger.Debug("dropped tool result with unknown call id and no name",
			"command_id", b.params.CommandID,
			"call_id", ev.CallID,
		)
		return nil
	}
	if b.msg != nil {
		b.msg.completeToolPart(ev.CallID)
	}

	return m.Refresh(ctx, b.params.SessionID, b.params.ProjectID)
}

func (m *SessionManager) handleTextDelta(ctx context.Context, b *build, ev domain.TextDeltaEvent) error {
	if err := m.repo.AppendNote(ctx, domain.Note{
		Content:   ev.Delta,
		Kind:      domain.NoteText,
		SessionID: b.params.SessionID,
		TextID:    ev.TextID,
		TodoIndex: b.activeIdx,
	}); err != nil {
		return err
	}
	if b.msg != nil {
		b.msg.appendText(ev.Delta)
	}

	return m.Refresh(ctx, b.params.SessionID, b.params.ProjectID)
}

func (m *SessionManager) handleReasoning(ctx context.Context, b *build, ev domain.ReasoningEvent) error {
	if err := m.repo.AppendNote(ctx, domain.Note{
		Content:   ev.Text,
		Kind:      domain.NoteReasoning,
		SessionID: b.params.SessionID,
		TodoIndex: b.activeIdx,
	}); err != nil {
		return err
	}

	return m.Refresh(ctx, b.params.SessionID, b.params.ProjectID)
}

func (m *SessionManager) handleFinish(b *build, ev domain.MessageFinishEvent) error {
	if b.msg == nil {
		return nil
	}
	tools, texts := b.msg.flush()
	logging.Logger.Debug("message finished",
		"command_id", b.params.CommandID,
		"message_id", ev.MessageID,
		"tool_parts", tools,
		"text_parts", texts,
	)
	b.msg = nil
	return nil
}

// NotifyCompleted finalizes a build after an out-of-band
// build-completed lifecycle signal.
func (m *SessionManager) NotifyCompleted(ctx context.Context, commandID string) error {
	return m.notifyTerminal(ctx, commandID, domain.StatusCompleted)
}

// NotifyFailed finalizes a build after an out-of-band build-failed
// lifecycle signal.
func (m *SessionManager) NotifyFailed(ctx context.Context, commandID string) error {
	return m.notifyTerminal(ctx, commandID, domain.StatusFailed)
}

func (m *SessionManager) notifyTerminal(ctx context.Context, commandID string, status domain.SessionStatus) error {
	m.mu.Lock()
	b, ok := m.builds[commandID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrBuildNotRegistered, commandID)
	}
	return m.finalize(ctx, b, status)
}

// finalize records the terminal status, mirrors it onto the project,
// forces a final refresh and tears the subscription down.
func (m *SessionManager) finalize(ctx context.Context, b *build, status domain.SessionStatus) error {
	if err := m.finalizeSession(ctx, b.params.SessionID, b.params.ProjectID, status); err != nil {
		return err
	}
	b.teardown()
	return nil
}

func (m *SessionManager) finalizeSession(ctx context.Context, sessionID, projectID string, status domain.SessionStatus) error {
	if err := m.repo.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		return err
	}

	projectStatus := domain.ProjectStatusReady
	if status == domain.StatusFailed {
		projectStatus = domain.ProjectStatusFailed
	}
	if err := m.repo.UpdateProjectStatus(ctx, projectID, projectStatus); err != nil {
		if !errors.Is(err, domain.ErrProjectNotFound) {
			return err
		}
		logging.Logger.Warn("project missing while finalizing build",
			"project_id", projectID,
			"session_id", sessionID,
		)
	}

	if err := m.Refresh(ctx, sessionID, projectID); err != nil {
		return err
	}

	logging.Logger.Info("build finalized",
		"session_id", sessionID,
		"status", status,
	)
	return nil
}

// Refresh rebuilds and broadcasts the session's snapshot. At most one
// rebuild runs per build; a second caller blocks until the in-flight
// one finishes, then performs its own rebuild against fresh state.
func (m *SessionManager) Refresh(ctx context.Context, sessionID, projectID string) error {
	mu := m.refreshLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	state, raw, err := m.snapshots.Rebuild(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to rebuild snapshot: %w", err)
	}

	if err := m.publisher.Publish(ctx, projectID, sessionID, raw, state.Version); err != nil {
		return fmt.Errorf("failed to broadcast snapshot: %w", err)
	}
	return nil
}

func (m *SessionManager) refreshLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.refreshMu[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.refreshMu[sessionID] = mu
	}
	return mu
}

// Rebuild forces a fresh snapshot from the store without
// broadcasting. It serializes against live refreshes.
func (m *SessionManager) Rebuild(ctx context.Context, sessionID string) (*domain.GenerationState, []byte, error) {
	mu := m.refreshLock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	return m.snapshots.Rebuild(ctx, sessionID)
}

// LatestSnapshot is the pull/reconciliation path: the last cached
// blob and its version straight from the store.
func (m *SessionManager) LatestSnapshot(ctx context.Context, sessionID string) ([]byte, int64, error) {
	return m.repo.LatestSnapshot(ctx, sessionID)
}

// CleanupStuckBuilds finalizes builds older than maxAge that never
// received a terminal event: completed when every todo is complete,
// failed otherwise. Live subscriptions for swept builds are torn down.
// Returns the number of builds finalized.
func (m *SessionManager) CleanupStuckBuilds(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	stale, err := m.repo.ListStaleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	cleaned := 0
	for _, session := range stale {
		todos, err := m.repo.ListTodos(ctx, session.ID)
		if err != nil {
			logging.Logger.Error("reaper failed to load todos",
				"session_id", session.ID,
				"error", err,
			)
			continue
		}

		status := domain.StatusFailed
		if domain.AllTodosCompleted(todos) {
			status = domain.StatusCompleted
		}

		if err := m.finalizeSession(ctx, session.ID, session.ProjectID, status); err != nil {
			logging.Logger.Error("reaper failed to finalize build",
				"session_id", session.ID,
				"error", err,
			)
			continue
		}

		// Tear down regardless of how the finalization resolved. For
		// sessions with no live build the refresh lock entry still has
		// to go, or the map grows with every sweep.
		m.mu.Lock()
		b, ok := m.builds[session.CommandID]
		if !ok {
			delete(m.refreshMu, session.ID)
		}
		m.mu.Unlock()
		if ok {
			b.teardown()
		}

		logging.Logger.Warn("reaped stuck build",
			"session_id", session.ID,
			"command_id", session.CommandID,
			"status", status,
		)
		cleaned++
	}

	return cleaned, nil
}

// todoStatusFromWire maps the upstream status string, defaulting
// unknown values to pending.
func todoStatusFromWire(status string) domain.TodoStatus {
	switch domain.TodoStatus(status) {
	case domain.TodoPending, domain.TodoInProgress, domain.TodoCompleted, domain.TodoCancelled:
		return domain.TodoStatus(status)
	default:
		return domain.TodoPending
	}
}

// messageBuffer accumulates the structured parts of one agent message
// between start and finish. It is cursor state only; nothing in it
// feeds snapshots.
type messageBuffer struct {
	id    string
	parts []messagePart
}

type messagePart struct {
	callID string
	kind   string // "tool" or "text"
	name   string
	state  domain.ToolCallState
	text   string
}

func newMessageBuffer(id string) *messageBuffer {
	return &messageBuffer{id: id}
}

func (mb *messageBuffer) addToolPart(callID, name string) {
	mb.parts = append(mb.parts, messagePart{
		callID: callID,
		kind:   "tool",
		name:   name,
		state:  domain.ToolInputAvailable,
	})
}

func (mb *messageBuffer) completeToolPart(callID string) {
	for i := len(mb.parts) - 1; i >= 0; i-- {
		if mb.parts[i].kind == "tool" && mb.parts[i].callID == callID {
			mb.parts[i].state = domain.ToolOutputAvailable
			return
		}
	}
}

// appendText extends the trailing text part, or opens one when the
// message's last part is not text.
func (mb *messageBuffer) appendText(delta string) {
	if n := len(mb.parts); n > 0 && mb.parts[n-1].kind == "text" {
		mb.parts[n-1].text += delta
		return
	}
	mb.parts = append(mb.parts, messagePart{kind: "text", text: delta})
}

// flush returns the tool and text part counts and empties the buffer
func (mb *messageBuffer) flush() (toolParts, textParts int) {
	for _, p := range mb.parts {
		if p.kind == "tool" {
			toolParts++
		} else {
			textParts++
		}
	}
	mb.parts = nil
	return toolParts, textParts
}
