package domain

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	TaskAdded           ChangeKind = "task-added"
	TaskRemoved         ChangeKind = "task-removed"
	TaskToggled         ChangeKind = "task-toggled"
	TaskRenamed         ChangeKind = "task-renamed"
	TaskPriorityChanged ChangeKind = "task-priority-changed"
	TasksCleared        ChangeKind = "tasks-cleared"
	TasksRestored       ChangeKind = "tasks-restored"
)

// Change is delivered to subscribers after every applied mutation.
type Change struct {
	Kind     ChangeKind
	TaskID   string
	Revision uint64
	// SaveErr is set when the mutation could not be persisted.
	SaveErr error
}
