package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveTodoIndex(t *testing.T) {
	tests := []struct {
		name     string
		todos    []Todo
		expected int
	}{
		{
			name:     "empty list",
			todos:    nil,
			expected: NoTodo,
		},
		{
			name: "first in-progress wins",
			todos: []Todo{
				{Index: 0, Status: TodoCompleted},
				{Index: 1, Status: TodoInProgress},
				{Index: 2, Status: TodoInProgress},
			},
			expected: 1,
		},
		{
			name: "none in progress",
			todos: []Todo{
				{Index: 0, Status: TodoCompleted},
				{Index: 1, Status: TodoPending},
			},
			expected: NoTodo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ActiveTodoIndex(tt.todos))
		})
	}
}

func TestNormalizeTodos(t *testing.T) {
	tests := []struct {
		name     string
		todos    []Todo
		expected []TodoStatus
	}{
		{
			name:     "empty list",
			todos:    nil,
			expected: nil,
		},
		{
			name: "single active kept",
			todos: []Todo{
				{Index: 0, Status: TodoCompleted},
				{Index: 1, Status: TodoInProgress},
			},
			expected: []TodoStatus{TodoCompleted, TodoInProgress},
		},
		{
			name: "later actives demoted to pending",
			todos: []Todo{
				{Index: 0, Status: TodoInProgress},
				{Index: 1, Status: TodoInProgress},
				{Index: 2, Status: TodoCompleted},
				{Index: 3, Status: TodoInProgress},
			},
			expected: []TodoStatus{TodoInProgress, TodoPending, TodoCompleted, TodoPending},
		},
		{
			name: "none active unchanged",
			todos: []Todo{
				{Index: 0, Status: TodoPending},
				{Index: 1, Status: TodoCancelled},
			},
			expected: []TodoStatus{TodoPending, TodoCancelled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTodos(tt.todos)
			statuses := make([]TodoStatus, 0, len(got))
			for _, todo := range got {
				statuses = append(statuses, todo.Status)
			}
			if tt.expected == nil {
				assert.Empty(t, statuses)
				return
			}
			assert.Equal(t, tt.expected, statuses)
		})
	}
}

func TestAllTodosCompleted(t *testing.T) {
	assert.False(t, AllTodosCompleted(nil), "empty list never counts as done")
	assert.False(t, AllTodosCompleted([]Todo{
		{Status: TodoCompleted},
		{Status: TodoPending},
	}))
	assert.True(t, AllTodosCompleted([]Todo{
		{Status: TodoCompleted},
		{Status: TodoCompleted},
	}))
}

func TestSessionStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusActive))
	assert.True(t, StatusActive.CanTransitionTo(StatusFailed))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusActive))
	assert.False(t, StatusFailed.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
}
