package pipeline

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTrackerSize is the number of recent message ids remembered.
const DefaultTrackerSize = 256

// Tracker remembers recently processed message ids so that repeated
// notifications for the same latest message are handled once.
// It lives in memory only.
type Tracker struct {
	seen *lru.Cache[string, struct{}]
}

// NewTracker creates a tracker holding up to size ids.
func NewTracker(size int) (*Tracker, error) {
	if size < 1 {
		size = DefaultTrackerSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Tracker{seen: cache}, nil
}

// Claim marks id as processed. It returns false when id was already claimed.
// Concurrent claims for the same id succeed exactly once.
func (t *Tracker) Claim(id string) bool {
	found, _ := t.seen.ContainsOrAdd(id, struct{}{})
	return !found
}

// Len returns the number of remembered ids.
func (t *Tracker) Len() int {
	return t.seen.Len()
}
