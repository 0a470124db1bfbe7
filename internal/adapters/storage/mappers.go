package storage

import (
	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

// sessionModelToDomain converts a SessionModel (GORM) to domain.Session
func sessionModelToDomain(m SessionModel) domain.Session {
	return domain.Session{
		AgentID:      m.AgentID,
		BuildID:      m.BuildID,
		CommandID:    m.CommandID,
		EndedAt:      m.EndedAt,
		ID:           m.ID,
		ModelID:      m.ModelID,
		Operation:    domain.OperationType(m.Operation),
		ProjectID:    m.ProjectID,
		RawState:     m.RawState,
		StartedAt:    m.StartedAt,
		StateVersion: m.StateVersion,
		Status:       domain.SessionStatus(m.Status),
	}
}

// domainToSessionModel converts a domain.Session to SessionModel (GORM)
func domainToSessionModel(s domain.Session) SessionModel {
	return SessionModel{
		AgentID:      s.AgentID,
		BuildID:      s.BuildID,
		CommandID:    s.CommandID,
		EndedAt:      s.EndedAt,
		ID:           s.ID,
		ModelID:      s.ModelID,
		Operation:    string(s.Operation),
		ProjectID:    s.ProjectID,
		RawState:     s.RawState,
		StartedAt:    s.StartedAt,
		StateVersion: s.StateVersion,
		Status:       string(s.Status),
	}
}

// todoModelToDomain converts a TodoModel (GORM) to domain.Todo
func todoModelToDomain(m TodoModel) domain.Todo {
	return domain.Todo{
		ActiveForm: m.ActiveForm,
		Content:    m.Content,
		Index:      m.Idx,
		SessionID:  m.SessionID,
		Status:     domain.TodoStatus(m.Status),
	}
}

// domainToTodoModel converts a domain.Todo to TodoModel (GORM)
func domainToTodoModel(t domain.Todo) TodoModel {
	return TodoModel{
		ActiveForm: t.ActiveForm,
		Content:    t.Content,
		Idx:        t.Index,
		SessionID:  t.SessionID,
		Status:     string(t.Status),
	}
}

// toolCallModelToDomain converts a ToolCallModel (GORM) to domain.ToolCall
func toolCallModelToDomain(m ToolCallModel) domain.ToolCall {
	return domain.ToolCall{
		CallID:    m.CallID,
		EndedAt:   m.EndedAt,
		Input:     m.Input,
		Name:      m.Name,
		Output:    m.Output,
		SessionID: m.SessionID,
		StartedAt: m.StartedAt,
		State:     domain.ToolCallState(m.State),
		TodoIndex: m.TodoIdx,
	}
}

// noteModelToDomain converts a NoteModel (GORM) to domain.Note
func noteModelToDomain(m NoteModel) domain.Note {
	return domain.Note{
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		ID:        m.ID,
		Kind:      domain.NoteKind(m.Kind),
		SessionID: m.SessionID,
		TextID:    m.TextID,
		TodoIndex: m.TodoIdx,
	}
}

// portModelToDomain converts a PortAllocationModel (GORM) to
// domain.PortAllocation
func portModelToDomain(m PortAllocationModel) domain.PortAllocation {
	owner := ""
	if m.ProjectID != nil {
		owner = *m.ProjectID
	}
	return domain.PortAllocation{
		Framework:  m.Framework,
		Port:       m.Port,
		ProjectID:  owner,
		ReservedAt: m.ReservedAt,
	}
}
