package storage

import "time"

// ProjectModel is the GORM model for the projects table
type ProjectModel struct {
	CreatedAt time.Time
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null;default:''"`
	Status    string `gorm:"not null;default:''"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (ProjectModel) TableName() string { return "projects" }

// SessionModel is the GORM model for the sessions table
type SessionModel struct {
	AgentID      string `gorm:"default:''"`
	BuildID      string `gorm:"not null;index:idx_sessions_build"`
	CommandID    string `gorm:"not null;index:idx_sessions_command"`
	CreatedAt    time.Time
	EndedAt      *time.Time `gorm:"default:null"`
	ID           string     `gorm:"primaryKey"`
	ModelID      string     `gorm:"default:''"`
	Operation    string     `gorm:"not null;default:'initial_build'"`
	ProjectID    string     `gorm:"not null;index:idx_sessions_project"`
	RawState     []byte     `gorm:"type:blob"`
	StartedAt    time.Time  `gorm:"not null;index:idx_sessions_started"`
	StateVersion int64      `gorm:"not null;default:0"`
	Status       string     `gorm:"not null;default:'pending';check:status IN ('pending','active','completed','failed')"`
	UpdatedAt    time.Time
}

// TableName specifies the table name for GORM
func (SessionModel) TableName() string { return "sessions" }

// TodoModel is the GORM model for the ordered task list
type TodoModel struct {
	ActiveForm string `gorm:"not null;default:''"`
	Content    string `gorm:"not null;default:''"`
	CreatedAt  time.Time
	Idx        int    `gorm:"primaryKey;autoIncrement:false"`
	SessionID  string `gorm:"primaryKey"`
	Status     string `gorm:"not null;default:'pending';check:status IN ('pending','in_progress','completed','cancelled')"`
	UpdatedAt  time.Time
}

// TableName specifies the table name for GORM
func (TodoModel) TableName() string { return "todos" }

// ToolCallModel is the GORM model for tool invocations. CallID is
// unique per session and acts as the upsert key.
type ToolCallModel struct {
	CallID    string `gorm:"not null;uniqueIndex:idx_tool_calls_session_call"`
	CreatedAt time.Time
	EndedAt   *time.Time `gorm:"default:null"`
	ID        uint       `gorm:"primaryKey"`
	Input     []byte     `gorm:"type:blob"`
	Name      string     `gorm:"not null;default:''"`
	Output    []byte     `gorm:"type:blob"`
	SessionID string     `gorm:"not null;uniqueIndex:idx_tool_calls_session_call"`
	StartedAt time.Time
	State     string `gorm:"not null;default:'input-available';check:state IN ('input-available','output-available')"`
	TodoIdx   int    `gorm:"not null;default:-1;index:idx_tool_calls_todo"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (ToolCallModel) TableName() string { return "tool_calls" }

// NoteModel is the GORM model for accumulated free text
type NoteModel struct {
	Content   string `gorm:"not null;default:''"`
	CreatedAt time.Time
	ID        uint     `gorm:"primaryKey"`
	Kind      string   `gorm:"not null;default:'text';check:kind IN ('text','reasoning')"`
	SessionID string   `gorm:"not null;index:idx_notes_session_text"`
	TextID    string   `gorm:"default:'';index:idx_notes_session_text"`
	TodoIdx   int      `gorm:"not null;default:-1"`
	UpdatedAt time.Time
}

// TableName specifies the table name for GORM
func (NoteModel) TableName() string { return "notes" }

// PortAllocationModel is the GORM model for the global port
// reservation table. A NULL project_id means the port is free; rows
// are reused, never deleted.
type PortAllocationModel struct {
	CreatedAt  time.Time
	Framework  string  `gorm:"not null;default:''"`
	Port       int     `gorm:"primaryKey;autoIncrement:false"`
	ProjectID  *string `gorm:"default:null;index:idx_port_allocations_project"`
	ReservedAt time.Time
	UpdatedAt  time.Time
}

// TableName specifies the table name for GORM
func (PortAllocationModel) TableName() string { return "port_allocations" }
