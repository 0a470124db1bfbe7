package domain

import "time"

// SessionStatus represents the lifecycle status of a build session
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// IsTerminal reports whether the status is final
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the one-directional lifecycle allows
// moving from s to next. Terminal states accept no further transitions.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusCompleted || next == StatusFailed
	case StatusActive:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// OperationType classifies what kind of build a session performs
type OperationType string

const (
	OperationInitialBuild OperationType = "initial_build"
	OperationEnhancement  OperationType = "enhancement"
	OperationEdit         OperationType = "edit"
	OperationContinuation OperationType = "continuation"
)

// Session represents one build attempt against a project (domain entity)
type Session struct {
	AgentID      string
	BuildID      string
	CommandID    string
	EndedAt      *time.Time
	ID           string
	ModelID      string
	Operation    OperationType
	ProjectID    string
	RawState     []byte
	StartedAt    time.Time
	StateVersion int64
	Status       SessionStatus
}

// Project status values mirrored onto the owning project when its
// session finalizes.
const (
	ProjectStatusBuilding = "building"
	ProjectStatusReady    = "ready"
	ProjectStatusFailed   = "failed"
)

// Project is the minimal projection of a project this system needs: a
// display name for snapshots and a status updated on finalization.
// Project CRUD lives elsewhere.
type Project struct {
	ID     string
	Name   string
	Status string
}
