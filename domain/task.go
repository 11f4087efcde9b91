package domain

import (
	"strings"
	"time"
)

// Priority ranks a task. The zero value is not a valid priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists the valid priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Next cycles low -> medium -> high -> low.
func (p Priority) Next() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityLow
	}
}

// ParsePriority maps free text onto a Priority. Empty input yields medium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}
	return p, nil
}

// Task represents a single to-do item. ID and CreatedAt never change after
// construction; the store only hands out copies.
type Task struct {
	ID        string
	Name      string
	Done      bool
	Priority  Priority
	CreatedAt time.Time
}

// TaskFields carries construction input for NewTask. Zero values are
// replaced with defaults.
type TaskFields struct {
	ID        string
	Name      string
	Done      bool
	Priority  Priority
	CreatedAt time.Time
}

// NewTask builds a task, generating an id and timestamp when absent and
// defaulting the priority to medium.
func NewTask(f TaskFields) Task {
	t := Task{
		ID:        f.ID,
		Name:      f.Name,
		Done:      f.Done,
		Priority:  f.Priority,
		CreatedAt: f.CreatedAt,
	}
	if t.ID == "" {
		t.ID = NewID()
	}
	if !t.Priority.Valid() {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = t.CreatedAt.Truncate(time.Millisecond)
	return t
}

// ToggleDone flips the completion flag.
func (t *Task) ToggleDone() {
	t.Done = !t.Done
}

// Rename replaces the name. Callers validate beforehand.
func (t *Task) Rename(name string) {
	t.Name = name
}

// SetPriority replaces the priority.
func (t *Task) SetPriority(p Priority) error {
	if !p.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}
	t.Priority = p
	return nil
}

// Snapshot is the structural form of a task used for persistence and
// transport.
type Snapshot struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Done      bool     `json:"done"`
	Priority  Priority `json:"priority"`
	CreatedAt int64    `json:"createdAt"`
}

// Snapshot returns a plain copy of all fields.
func (t Task) Snapshot() Snapshot {
	return Snapshot{
		ID:        t.ID,
		Name:      t.Name,
		Done:      t.Done,
		Priority:  t.Priority,
		CreatedAt: t.CreatedAt.UnixMilli(),
	}
}

// FromSnapshot rebuilds a task. An empty id or unknown priority gets the
// NewTask default; CreatedAt is taken as given, including zero and
// pre-epoch values.
func FromSnapshot(s Snapshot) Task {
	return NewTask(TaskFields{
		ID:        s.ID,
		Name:      s.Name,
		Done:      s.Done,
		Priority:  Priority(strings.ToLower(string(s.Priority))),
		CreatedAt: time.UnixMilli(s.CreatedAt),
	})
}

// NormalizeName trims surrounding whitespace and rejects empty names.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return trimmed, nil
}
