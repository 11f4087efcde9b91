package storage

import (
	"time"

	"github.com/bytedance/sonic"

	"tasklist/domain"
)

// storedTask is the decode form of a snapshot. CreatedAt is a pointer so
// an absent field can be told apart from an explicit 0.
type storedTask struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Done      bool            `json:"done"`
	Priority  domain.Priority `json:"priority"`
	CreatedAt *int64          `json:"createdAt"`
}

func (r storedTask) snapshot(now time.Time) domain.Snapshot {
	s := domain.Snapshot{
		ID:       r.ID,
		Name:     r.Name,
		Done:     r.Done,
		Priority: r.Priority,
	}
	if r.CreatedAt != nil {
		s.CreatedAt = *r.CreatedAt
	} else {
		s.CreatedAt = now.UnixMilli()
	}
	return s
}

func encodeTasks(tasks []domain.Task) ([]byte, error) {
	snaps := make([]domain.Snapshot, len(tasks))
	for i, t := range tasks {
		snaps[i] = t.Snapshot()
	}
	return sonic.Marshal(snaps)
}

// decodeSnapshots parses a stored array. Records without createdAt are
// stamped with now.
func decodeSnapshots(data []byte, now time.Time) ([]domain.Snapshot, error) {
	var records []storedTask
	if err := sonic.ConfigStd.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	snaps := make([]domain.Snapshot, len(records))
	for i, r := range records {
		snaps[i] = r.snapshot(now)
	}
	return snaps, nil
}
