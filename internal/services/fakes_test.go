package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

// fakeSessionRepo is an in-memory SessionRepository mirroring the
// SQLite adapter's semantics closely enough for service tests.
type fakeSessionRepo struct {
	mu       sync.Mutex
	notes    map[string][]domain.Note
	noteSeq  uint
	projects map[string]*domain.Project
	sessions map[string]*domain.Session
	todos    map[string][]domain.Todo
	calls    map[string][]domain.ToolCall
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		notes:    make(map[string][]domain.Note),
		projects: make(map[string]*domain.Project),
		sessions: make(map[string]*domain.Session),
		todos:    make(map[string][]domain.Todo),
		calls:    make(map[string][]domain.ToolCall),
	}
}

func (r *fakeSessionRepo) addProject(id, name, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[id] = &domain.Project{ID: id, Name: name, Status: status}
}

func (r *fakeSessionRepo) GetSession(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) GetProject(_ context.Context, projectID string) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeSessionRepo) ListTodos(_ context.Context, sessionID string) ([]domain.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Todo(nil), r.todos[sessionID]...), nil
}

func (r *fakeSessionRepo) ListToolCalls(_ context.Context, sessionID string) ([]domain.ToolCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ToolCall(nil), r.calls[sessionID]...), nil
}

func (r *fakeSessionRepo) ListNotes(_ context.Context, sessionID string) ([]domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Note(nil), r.notes[sessionID]...), nil
}

func (r *fakeSessionRepo) ListStaleSessions(_ context.Context, cutoff time.Time) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []domain.Session
	for _, s := range r.sessions {
		if !s.Status.IsTerminal() && s.StartedAt.Before(cutoff) {
			stale = append(stale, *s)
		}
	}
	return stale, nil
}

func (r *fakeSessionRepo) CreateSession(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	copied := session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) UpdateSessionStatus(_ context.Context, id string, status domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status.IsTerminal() {
		return nil
	}
	if !s.Status.CanTransitionTo(status) {
		return fmt.Errorf("invalid transition %s -> %s", s.Status, status)
	}
	s.Status = status
	if status.IsTerminal() {
		now := time.Now().UTC()
		s.EndedAt = &now
	}
	return nil
}

func (r *fakeSessionRepo) UpdateProjectStatus(_ context.Context, projectID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return domain.ErrProjectNotFound
	}
	p.Status = status
	return nil
}

func (r *fakeSessionRepo) ReplaceTodos(_ context.Context, sessionID string, todos []domain.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.todos[sessionID] = append([]domain.Todo(nil), todos...)

	n := len(todos)
	kept := r.calls[sessionID][:0]
	for _, c := range r.calls[sessionID] {
		if c.TodoIndex < n {
			kept = append(kept, c)
		}
	}
	r.calls[sessionID] = kept

	keptNotes := r.notes[sessionID][:0]
	for _, note := range r.notes[sessionID] {
		if note.TodoIndex < n {
			keptNotes = append(keptNotes, note)
		}
	}
	r.notes[sessionID] = keptNotes
	return nil
}

func (r *fakeSessionRepo) UpsertToolCall(_ context.Context, call domain.ToolCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls[call.SessionID] {
		if c.CallID == call.CallID {
			c.Input = call.Input
			c.Name = call.Name
			c.TodoIndex = call.TodoIndex
			r.calls[call.SessionID][i] = c
			return nil
		}
	}
	r.calls[call.SessionID] = append(r.calls[call.SessionID], call)
	return nil
}

func (r *fakeSessionRepo) ResolveToolCall(_ context.Context, sessionID, callID, name string, output []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for i, c := range r.calls[sessionID] {
		if c.CallID == callID {
			c.Output = output
			c.State = domain.ToolOutputAvailable
			c.EndedAt = &now
			if c.Name == "" {
				c.Name = name
			}
			r.calls[sessionID][i] = c
			return true, nil
		}
	}
	if name == "" {
		return false, nil
	}
	r.calls[sessionID] = append(r.calls[sessionID], domain.ToolCall{
		CallID:    callID,
		EndedAt:   &now,
		Name:      name,
		Output:    output,
		SessionID: sessionID,
		StartedAt: now,
		State:     domain.ToolOutputAvailable,
		TodoIndex: domain.NoTodo,
	})
	return true, nil
}

func (r *fakeSessionRepo) AppendNote(_ context.Context, note domain.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if note.TextID != "" {
		for i, n := range r.notes[note.SessionID] {
			if n.TextID == note.TextID {
				n.Content += note.Content
				r.notes[note.SessionID][i] = n
				return nil
			}
		}
	}
	r.noteSeq++
	note.ID = r.noteSeq
	note.CreatedAt = time.Now().UTC()
	r.notes[note.SessionID] = append(r.notes[note.SessionID], note)
	return nil
}

func (r *fakeSessionRepo) LatestSnapshot(_ context.Context, sessionID string) ([]byte, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, 0, domain.ErrSessionNotFound
	}
	return append([]byte(nil), s.RawState...), s.StateVersion, nil
}

func (r *fakeSessionRepo) SaveSnapshot(_ context.Context, sessionID string, raw []byte, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if version <= s.StateVersion {
		return fmt.Errorf("stale snapshot version %d (have %d)", version, s.StateVersion)
	}
	s.RawState = append([]byte(nil), raw...)
	s.StateVersion = version
	return nil
}

func (r *fakeSessionRepo) Close() error { return nil }

// fakeFeed lets tests push events into a registered build's stream
type fakeFeed struct {
	mu       sync.Mutex
	channels map[string]chan domain.BuildEvent
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{channels: make(map[string]chan domain.BuildEvent)}
}

func (f *fakeFeed) Subscribe(_ context.Context, commandID string) (<-chan domain.BuildEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.BuildEvent, 64)
	f.channels[commandID] = ch
	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.channels, commandID)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop, nil
}

func (f *fakeFeed) push(commandID string, ev domain.BuildEvent) {
	f.mu.Lock()
	ch, ok := f.channels[commandID]
	f.mu.Unlock()
	if ok {
		ch <- ev
	}
}

// fakePublisher records every broadcast in order
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedSnapshot
}

type publishedSnapshot struct {
	projectID string
	raw       []byte
	sessionID string
	version   int64
}

func (p *fakePublisher) Publish(_ context.Context, projectID, sessionID string, raw []byte, version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedSnapshot{
		projectID: projectID,
		raw:       append([]byte(nil), raw...),
		sessionID: sessionID,
		version:   version,
	})
	return nil
}

func (p *fakePublisher) all() []publishedSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedSnapshot(nil), p.published...)
}

// fakePortRepo is an in-memory reservation table
type fakePortRepo struct {
	mu     sync.Mutex
	rows   map[int]*fakePortRow
	active map[string]bool
}

type fakePortRow struct {
	framework  string
	projectID  string
	reservedAt time.Time
}

func newFakePortRepo() *fakePortRepo {
	return &fakePortRepo{
		rows:   make(map[int]*fakePortRow),
		active: make(map[string]bool),
	}
}

func (r *fakePortRepo) AllocationForProject(_ context.Context, projectID string) (*domain.PortAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for port, row := range r.rows {
		if row.projectID == projectID && projectID != "" {
			return &domain.PortAllocation{
				Framework:  row.framework,
				Port:       port,
				ProjectID:  row.projectID,
				ReservedAt: row.reservedAt,
			}, nil
		}
	}
	return nil, nil
}

func (r *fakePortRepo) Assign(_ context.Context, projectID string, port int, framework string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[port]; ok && row.projectID != "" && row.projectID != projectID {
		return domain.ErrPortTaken
	}
	for p, row := range r.rows {
		if row.projectID == projectID && p != port {
			row.projectID = ""
		}
	}
	r.rows[port] = &fakePortRow{
		framework:  framework,
		projectID:  projectID,
		reservedAt: time.Now().UTC(),
	}
	return nil
}

func (r *fakePortRepo) Release(_ context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.projectID == projectID {
			row.projectID = ""
		}
	}
	return nil
}

func (r *fakePortRepo) ReleaseOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	released := 0
	for _, row := range r.rows {
		if row.projectID != "" && row.reservedAt.Before(cutoff) && !r.active[row.projectID] {
			row.projectID = ""
			released++
		}
	}
	return released, nil
}

// fakeProber reports busy for the ports in its set
type fakeProber struct {
	mu   sync.Mutex
	busy map[int]bool
}

func newFakeProber(busy ...int) *fakeProber {
	p := &fakeProber{busy: make(map[int]bool)}
	for _, port := range busy {
		p.busy[port] = true
	}
	return p
}

func (p *fakeProber) Probe(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.busy[port]
}

func (p *fakeProber) setBusy(port int, busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy[port] = busy
}
