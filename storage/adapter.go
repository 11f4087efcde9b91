package storage

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"tasklist/domain"
)

// DefaultKey names the durable slot. The suffix is the layout version; an
// incompatible layout gets a new key instead of breaking older data.
const DefaultKey = "tasklist_tasks_v1"

// Adapter persists the task collection as a JSON array of snapshots under
// a single key.
type Adapter struct {
	slot   Slot
	key    string
	logger *log.Logger
}

// NewAdapter wraps slot. An empty key selects DefaultKey.
func NewAdapter(slot Slot, key string, logger *log.Logger) *Adapter {
	if slot == nil {
		panic("storage.NewAdapter: slot is nil")
	}
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Adapter{slot: slot, key: key, logger: logger}
}

// Key returns the slot key in use.
func (a *Adapter) Key() string { return a.key }

// Save writes the full ordered collection.
func (a *Adapter) Save(ctx context.Context, tasks []domain.Task) error {
	start := time.Now()
	data, err := encodeTasks(tasks)
	if err != nil {
		return &domain.StorageError{Op: "encode", Err: err}
	}
	if err := a.slot.Put(ctx, a.key, data); err != nil {
		return &domain.StorageError{Op: "save", Err: err}
	}
	a.logger.WithFields(log.Fields{
		"key":     a.key,
		"tasks":   len(tasks),
		"bytes":   len(data),
		"save_ms": durationToMillis(time.Since(start)),
	}).Debug("tasks saved")
	return nil
}

// Load reads the collection back. It never fails: absent, unreadable or
// malformed data yields an empty collection.
func (a *Adapter) Load(ctx context.Context) []domain.Task {
	tasks, err := a.load(ctx)
	if err != nil {
		entry := a.logger.WithField("key", a.key)
		if errors.Is(err, ErrSlotEmpty) {
			entry.Debug("no stored tasks")
		} else {
			entry.WithError(err).Debug("stored tasks unusable; starting empty")
		}
		return []domain.Task{}
	}
	return tasks
}

func (a *Adapter) load(ctx context.Context) ([]domain.Task, error) {
	data, err := a.slot.Get(ctx, a.key)
	if err != nil {
		return nil, err
	}
	snaps, err := decodeSnapshots(data, time.Now())
	if err != nil {
		return nil, &domain.DeserializationError{Key: a.key, Err: err}
	}

	tasks := make([]domain.Task, 0, len(snaps))
	seen := make(map[string]struct{}, len(snaps))
	for i, s := range snaps {
		name, err := domain.NormalizeName(s.Name)
		if err != nil {
			a.logger.WithFields(log.Fields{"key": a.key, "index": i}).Debug("skipping stored task without a name")
			continue
		}
		s.Name = name
		t := domain.FromSnapshot(s)
		if _, dup := seen[t.ID]; dup {
			a.logger.WithFields(log.Fields{"key": a.key, "id": t.ID}).Debug("skipping stored task with duplicate id")
			continue
		}
		seen[t.ID] = struct{}{}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
