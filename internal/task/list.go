package task

import (
	"errors"
	"fmt"
)

// ErrInvalidPosition is returned for a position outside 1..Len().
var ErrInvalidPosition = errors.New("invalid task number")

// PositionError reports the rejected position.
type PositionError struct {
	Position int
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("%s: %d", ErrInvalidPosition, e.Position)
}

func (e *PositionError) Unwrap() error {
	return ErrInvalidPosition
}

// List is the ordered task list of one room. Positions are 1-based and
// follow insertion order. List knows nothing about persistence.
type List struct {
	tasks []*Task
}

func NewList(tasks ...*Task) *List {
	return &List{tasks: tasks}
}

func (l *List) Len() int {
	return len(l.tasks)
}

// Add appends a new task whose ID is the list length before insertion.
func (l *List) Add(actor, title string) *Task {
	t := New(actor, len(l.tasks), title)
	l.tasks = append(l.tasks, t)
	return t
}

func (l *List) Get(position int) (*Task, error) {
	if position < 1 || position > len(l.tasks) {
		return nil, &PositionError{Position: position}
	}
	return l.tasks[position-1], nil
}

// RemoveAt deletes the task at position. Later tasks shift up by one; their
// IDs are left as they are.
func (l *List) RemoveAt(position int) (*Task, error) {
	t, err := l.Get(position)
	if err != nil {
		return nil, err
	}
	l.tasks = append(l.tasks[:position-1:position-1], l.tasks[position:]...)
	return t, nil
}

// Clear removes every task and reports how many were removed.
func (l *List) Clear() int {
	n := len(l.tasks)
	l.tasks = nil
	return n
}

// Tasks returns the tasks in display order. The slice is a copy.
func (l *List) Tasks() []*Task {
	out := make([]*Task, len(l.tasks))
	copy(out, l.tasks)
	return out
}
