package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

// SQLiteRepository implements ports.SessionRepository using GORM
type SQLiteRepository struct {
	db *gorm.DB
}

// Verify interface compliance at compile time
var _ ports.SessionRepository = (*SQLiteRepository)(nil)

// gormLogger routes GORM logs through the application logger
type gormLogger struct {
	level logger.LogLevel
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level < logger.Info {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logging.Logger.Error("gorm query error",
			"error", err,
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else if elapsed > 200*time.Millisecond {
		logging.Logger.Warn("slow query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else {
		logging.Logger.Debug("gorm query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	}
}

func newGormLogger() logger.Interface {
	if os.Getenv("SENTRYVIBE_DEBUG") == "1" {
		return (&gormLogger{}).LogMode(logger.Info)
	}
	return (&gormLogger{}).LogMode(logger.Silent)
}

// Open opens the SQLite database with WAL mode and migrates the schema.
// The returned handle is shared by the session and port repositories.
func Open(dbPath string) (*gorm.DB, error) {
	// Expand home directory if present
	if len(dbPath) > 0 && dbPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: false,
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger:      newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent access
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")
	db.Exec("PRAGMA foreign_keys=ON")

	if err := db.AutoMigrate(
		&ProjectModel{},
		&SessionModel{},
		&TodoModel{},
		&ToolCallModel{},
		&NoteModel{},
		&PortAllocationModel{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteRepository creates a session repository on an open handle
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetSession implements SessionReader.GetSession
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var model SessionModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	session := sessionModelToDomain(model)
	return &session, nil
}

// GetProject implements SessionReader.GetProject
func (r *SQLiteRepository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	var model ProjectModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", projectID).First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}

	return &domain.Project{ID: model.ID, Name: model.Name, Status: model.Status}, nil
}

// ListTodos implements SessionReader.ListTodos
func (r *SQLiteRepository) ListTodos(ctx context.Context, sessionID string) ([]domain.Todo, error) {
	var models []TodoModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("idx ASC").
			Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	todos := make([]domain.Todo, len(models))
	for i, m := range models {
		todos[i] = todoModelToDomain(m)
	}
	return todos, nil
}

// ListToolCalls implements SessionReader.ListToolCalls
func (r *SQLiteRepository) ListToolCalls(ctx context.Context, sessionID string) ([]domain.ToolCall, error) {
	var models []ToolCallModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("started_at ASC, id ASC").
			Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	calls := make([]domain.ToolCall, len(models))
	for i, m := range models {
		calls[i] = toolCallModelToDomain(m)
	}
	return calls, nil
}

// ListNotes implements SessionReader.ListNotes
func (r *SQLiteRepository) ListNotes(ctx context.Context, sessionID string) ([]domain.Note, error) {
	var models []NoteModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("id ASC").
			Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	notes := make([]domain.Note, len(models))
	for i, m := range models {
		notes[i] = noteModelToDomain(m)
	}
	return notes, nil
}

// ListStaleSessions implements SessionReader.ListStaleSessions
func (r *SQLiteRepository) ListStaleSessions(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	var models []SessionModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Where("status IN ('pending','active') AND started_at < ?", cutoff.UTC()).
			Order("started_at ASC").
			Find(&models).Error
	}, 3)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, len(models))
	for i, m := range models {
		sessions[i] = sessionModelToDomain(m)
	}
	return sessions, nil
}

// CreateSession implements SessionWriter.CreateSession
func (r *SQLiteRepository) CreateSession(ctx context.Context, session domain.Session) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			model := domainToSessionModel(session)
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			return nil
		})
	}, 3)
}

// UpdateSessionStatus implements SessionWriter.UpdateSessionStatus.
// Terminal sessions absorb further transitions as no-ops; invalid
// forward transitions are rejected.
func (r *SQLiteRepository) UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var model SessionModel
			if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrSessionNotFound
				}
				return err
			}

			current := domain.SessionStatus(model.Status)
			if current == status || current.IsTerminal() {
				return nil
			}
			if !current.CanTransitionTo(status) {
				return fmt.Errorf("invalid status transition %s -> %s for session %s", current, status, id)
			}

			updates := map[string]any{"status": string(status)}
			if status.IsTerminal() {
				now := time.Now().UTC()
				updates["ended_at"] = &now
			}
			return tx.Model(&SessionModel{}).Where("id = ?", id).Updates(updates).Error
		})
	}, 3)
}

// UpdateProjectStatus implements SessionWriter.UpdateProjectStatus
func (r *SQLiteRepository) UpdateProjectStatus(ctx context.Context, projectID, status string) error {
	return withRetry(func() error {
		result := r.db.WithContext(ctx).Model(&ProjectModel{}).
			Where("id = ?", projectID).
			Update("status", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrProjectNotFound
		}
		return nil
	}, 3)
}

// ReplaceTodos implements TodoStore.ReplaceTodos. The upsert and the
// prune of rows beyond the new length happen in one transaction so a
// reader never observes a half-replaced list.
func (r *SQLiteRepository) ReplaceTodos(ctx context.Context, sessionID string, todos []domain.Todo) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, todo := range todos {
				model := domainToTodoModel(todo)
				model.SessionID = sessionID
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "session_id"}, {Name: "idx"}},
					DoUpdates: clause.AssignmentColumns([]string{"content", "active_form", "status", "updated_at"}),
				}).Create(&model).Error; err != nil {
					return fmt.Errorf("failed to upsert todo %d: %w", todo.Index, err)
				}
			}

			// Prune indices beyond the new list, cascading to
			// dependent tool calls and notes
			length := len(todos)
			if err := tx.Where("session_id = ? AND idx >= ?", sessionID, length).
				Delete(&TodoModel{}).Error; err != nil {
				return fmt.Errorf("failed to prune todos: %w", err)
			}
			if err := tx.Where("session_id = ? AND todo_idx >= ?", sessionID, length).
				Delete(&ToolCallModel{}).Error; err != nil {
				return fmt.Errorf("failed to prune tool calls: %w", err)
			}
			if err := tx.Where("session_id = ? AND todo_idx >= ?", sessionID, length).
				Delete(&NoteModel{}).Error; err != nil {
				return fmt.Errorf("failed to prune notes: %w", err)
			}

			return nil
		})
	}, 3)
}

// UpsertToolCall implements ToolCallStore.UpsertToolCall. A repeated
// call id updates the input side in place and never clobbers an
// already-arrived output.
func (r *SQLiteRepository) UpsertToolCall(ctx context.Context, call domain.ToolCall) error {
	return withRetry(func() error {
		model := ToolCallModel{
			CallID:    call.CallID,
			EndedAt:   call.EndedAt,
			Input:     call.Input,
			Name:      call.Name,
			Output:    call.Output,
			SessionID: call.SessionID,
			StartedAt: call.StartedAt,
			State:     string(call.State),
			TodoIdx:   call.TodoIndex,
		}
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "call_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "input", "todo_idx", "updated_at"}),
		}).Create(&model).Error
	}, 3)
}

// ResolveToolCall implements ToolCallStore.ResolveToolCall
func (r *SQLiteRepository) ResolveToolCall(ctx context.Context, sessionID, callID, name string, output []byte) (bool, error) {
	resolved := false
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var model ToolCallModel
			err := tx.Where("session_id = ? AND call_id = ?", sessionID, callID).First(&model).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				if name == "" {
					// No row and no name: nothing meaningful to record
					return nil
				}
				now := time.Now().UTC()
				created := ToolCallModel{
					CallID:    callID,
					EndedAt:   &now,
					Name:      name,
					Output:    output,
					SessionID: sessionID,
					StartedAt: now,
					State:     string(domain.ToolOutputAvailable),
					TodoIdx:   domain.NoTodo,
				}
				if err := tx.Create(&created).Error; err != nil {
					return fmt.Errorf("failed to create resolved tool call: %w", err)
				}
				resolved = true
				return nil
			}
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			updates := map[string]any{
				"output":   output,
				"state":    string(domain.ToolOutputAvailable),
				"ended_at": &now,
			}
			if model.Name == "" && name != "" {
				updates["name"] = name
			}
			if err := tx.Model(&ToolCallModel{}).Where("id = ?", model.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to resolve tool call: %w", err)
			}
			resolved = true
			return nil
		})
	}, 3)
	return resolved, err
}

// AppendNote implements NoteStore.AppendNote
func (r *SQLiteRepository) AppendNote(ctx context.Context, note domain.Note) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if note.TextID != "" {
				var existing NoteModel
				err := tx.Where("session_id = ? AND text_id = ?", note.SessionID, note.TextID).
					First(&existing).Error
				if err == nil {
					return tx.Model(&NoteModel{}).Where("id = ?", existing.ID).
						Update("content", existing.Content+note.Content).Error
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
			}

			model := NoteModel{
				Content:   note.Content,
				Kind:      string(note.Kind),
				SessionID: note.SessionID,
				TextID:    note.TextID,
				TodoIdx:   note.TodoIndex,
			}
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("failed to create note: %w", err)
			}
			return nil
		})
	}, 3)
}

// LatestSnapshot implements SnapshotStore.LatestSnapshot
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, sessionID string) ([]byte, int64, error) {
	var model SessionModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Select("raw_state", "state_version").
			Where("id = ?", sessionID).
			First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, domain.ErrSessionNotFound
		}
		return nil, 0, err
	}
	return model.RawState, model.StateVersion, nil
}

// SaveSnapshot implements SnapshotStore.SaveSnapshot. The guard on
// state_version keeps the counter strictly increasing even if a stale
// writer slips past the per-build serialization.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, sessionID string, raw []byte, version int64) error {
	return withRetry(func() error {
		result := r.db.WithContext(ctx).Model(&SessionModel{}).
			Where("id = ? AND state_version < ?", sessionID, version).
			Updates(map[string]any{
				"raw_state":     raw,
				"state_version": version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			r.db.WithContext(ctx).Model(&SessionModel{}).Where("id = ?", sessionID).Count(&count)
			if count == 0 {
				return domain.ErrSessionNotFound
			}
			return fmt.Errorf("stale snapshot version %d for session %s", version, sessionID)
		}
		return nil
	}, 3)
}

// withRetry retries operations on SQLITE_BUSY with exponential backoff.
// Non-transient errors propagate immediately.
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}
