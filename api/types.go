package api

import (
	"context"

	"tasklist/domain"
	"tasklist/view"
)

// TaskStore is the slice of the task store the handlers need.
type TaskStore interface {
	All() []domain.Task
	Get(id string) (domain.Task, bool)
	Add(ctx context.Context, name string, priority domain.Priority) (domain.Task, error)
	Remove(ctx context.Context, id string) (bool, error)
	Toggle(ctx context.Context, id string) (bool, error)
	Edit(ctx context.Context, id, name string) (bool, error)
	SetPriority(ctx context.Context, id string, p domain.Priority) (bool, error)
	Clear(ctx context.Context) error
	Subscribe(fn func(domain.Change)) func()
}

type createTaskRequest struct {
	Name     string `json:"name"`
	Priority string `json:"priority"`
}

type updateTaskRequest struct {
	Name     *string `json:"name"`
	Priority *string `json:"priority"`
}

type tasksResponse struct {
	Tasks   []domain.Snapshot `json:"tasks"`
	Summary view.Summary      `json:"summary"`
}

type taskResponse struct {
	Task    domain.Snapshot `json:"task"`
	Warning string          `json:"warning,omitempty"`
}

type warningResponse struct {
	Warning string `json:"warning"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func snapshots(tasks []domain.Task) []domain.Snapshot {
	out := make([]domain.Snapshot, len(tasks))
	for i, t := range tasks {
		out[i] = t.Snapshot()
	}
	return out
}
