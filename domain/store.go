package domain

import (
	"context"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Persister saves and loads the full ordered task collection.
type Persister interface {
	// Save writes the snapshot. Failures are returned as *StorageError.
	Save(ctx context.Context, tasks []Task) error
	// Load returns the stored tasks, or an empty collection when nothing
	// usable is stored.
	Load(ctx context.Context) []Task
}

// Store owns the ordered task collection and is its only mutator. Every
// applied mutation is persisted and then announced to subscribers.
type Store struct {
	persister Persister
	logger    *log.Logger

	mu    sync.RWMutex
	tasks []Task
	rev   uint64

	saveMu   sync.Mutex
	savedRev uint64

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// NewStore creates an empty store. A nil persister keeps state in memory only.
func NewStore(p Persister, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		persister: p,
		logger:    logger,
		subs:      make(map[int]func(Change)),
	}
}

// Restore replaces the collection with whatever the persister loads.
func (s *Store) Restore(ctx context.Context) int {
	var loaded []Task
	if s.persister != nil {
		loaded = s.persister.Load(ctx)
	}
	s.mu.Lock()
	s.tasks = slices.Clone(loaded)
	s.rev++
	rev := s.rev
	s.mu.Unlock()

	s.saveMu.Lock()
	s.savedRev = rev
	s.saveMu.Unlock()

	s.logger.WithField("tasks", len(loaded)).Info("tasks restored")
	s.notify(Change{Kind: TasksRestored, Revision: rev})
	return len(loaded)
}

// Add appends a new task. The stored name is trimmed.
func (s *Store) Add(ctx context.Context, name string, priority Priority) (Task, error) {
	clean, err := NormalizeName(name)
	if err != nil {
		return Task{}, err
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Task{}, &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}

	s.mu.Lock()
	t := NewTask(TaskFields{Name: clean, Priority: priority})
	for s.indexLocked(t.ID) >= 0 {
		t.ID = NewID()
	}
	s.tasks = append(s.tasks, t)
	rev, snap := s.commitLocked()
	s.mu.Unlock()

	return t, s.finish(ctx, Change{Kind: TaskAdded, TaskID: t.ID, Revision: rev}, snap)
}

// Remove deletes the task with the given id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	rev, snap := s.commitLocked()
	s.mu.Unlock()

	return true, s.finish(ctx, Change{Kind: TaskRemoved, TaskID: id, Revision: rev}, snap)
}

// Toggle flips the completion flag of the task. Unknown ids are a no-op.
func (s *Store) Toggle(ctx context.Context, id string) (bool, error) {
	return s.update(ctx, id, TaskToggled, func(t *Task) error {
		t.ToggleDone()
		return nil
	})
}

// Edit renames the task. Empty names are rejected before the lookup;
// unknown ids are a no-op.
func (s *Store) Edit(ctx context.Context, id, name string) (bool, error) {
	clean, err := NormalizeName(name)
	if err != nil {
		return false, err
	}
	return s.update(ctx, id, TaskRenamed, func(t *Task) error {
		t.Rename(clean)
		return nil
	})
}

// SetPriority changes the priority of the task. Unknown ids are a no-op.
func (s *Store) SetPriority(ctx context.Context, id string, p Priority) (bool, error) {
	if !p.Valid() {
		return false, &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}
	return s.update(ctx, id, TaskPriorityChanged, func(t *Task) error {
		return t.SetPriority(p)
	})
}

// Clear removes every task. Confirmation is the caller's job.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.tasks = nil
	rev, snap := s.commitLocked()
	s.mu.Unlock()

	return s.finish(ctx, Change{Kind: TasksCleared, Revision: rev}, snap)
}

// All returns a copy of the collection in insertion order.
func (s *Store) All() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks)
}

// Get returns the task with the given id.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Task{}, false
	}
	return s.tasks[i], true
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Subscribe registers fn for change notifications. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) update(ctx context.Context, id string, kind ChangeKind, apply func(*Task) error) (bool, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	if err := apply(&s.tasks[i]); err != nil {
		s.mu.Unlock()
		return true, err
	}
	rev, snap := s.commitLocked()
	s.mu.Unlock()

	return true, s.finish(ctx, Change{Kind: kind, TaskID: id, Revision: rev}, snap)
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.tasks, func(t Task) bool { return t.ID == id })
}

// commitLocked bumps the revision and captures the snapshot to persist.
func (s *Store) commitLocked() (uint64, []Task) {
	s.rev++
	return s.rev, slices.Clone(s.tasks)
}

func (s *Store) finish(ctx context.Context, ch Change, snap []Task) error {
	err := s.persist(ctx, ch.Revision, snap)
	ch.SaveErr = err
	s.notify(ch)
	return err
}

// persist writes snap unless a newer revision already reached the slot.
func (s *Store) persist(ctx context.Context, rev uint64, snap []Task) error {
	if s.persister == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if rev <= s.savedRev {
		return nil
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		s.logger.WithFields(log.Fields{"revision": rev, "tasks": len(snap)}).WithError(err).Warn("save failed; keeping changes in memory")
		return err
	}
	s.savedRev = rev
	return nil
}

func (s *Store) notify(ch Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
