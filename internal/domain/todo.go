package domain

// TodoStatus represents the lifecycle status of a single task
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoCancelled  TodoStatus = "cancelled"
)

// Todo is one step in a build's task list, addressed by a zero-based
// index unique within its session.
type Todo struct {
	ActiveForm string
	Content    string
	Index      int
	SessionID  string
	Status     TodoStatus
}

// NoTodo is the todo index meaning "not associated with any todo".
const NoTodo = -1

// ActiveTodoIndex returns the index of the first in_progress todo, or
// NoTodo when none is in progress.
func ActiveTodoIndex(todos []Todo) int {
	for _, t := range todos {
		if t.Status == TodoInProgress {
			return t.Index
		}
	}
	return NoTodo
}

// NormalizeTodos enforces the single-active invariant on a
// replacement list: the first in_progress entry stays, any later ones
// are demoted to pending. The input slice is modified in place and
// returned.
func NormalizeTodos(todos []Todo) []Todo {
	active := false
	for i := range todos {
		if todos[i].Status != TodoInProgress {
			continue
		}
		if active {
			todos[i].Status = TodoPending
		}
		active = true
	}
	return todos
}

// AllTodosCompleted reports whether every todo in the list is
// completed. An empty list is not considered complete.
func AllTodosCompleted(todos []Todo) bool {
	if len(todos) == 0 {
		return false
	}
	for _, t := range todos {
		if t.Status != TodoCompleted {
			return false
		}
	}
	return true
}
