package domain

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random UUID, or a timestamp with a random suffix when
// the system random source is unavailable.
func NewID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallbackID(time.Now())
	}
	return id.String()
}

func fallbackID(now time.Time) string {
	return fmt.Sprintf("id_%d_%x", now.UnixMilli(), rand.Uint64())
}
