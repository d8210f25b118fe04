package live

import (
	"sync"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

// DefaultFeedCapacity bounds the global activity feed.
const DefaultFeedCapacity = 5

// Feed is the global recent-activity list: all subjects, deduplicated by
// id, ordered purely by insertion (newest first), bounded. No statistics.
type Feed struct {
	mu       sync.Mutex
	capacity int
	events   []model.IoTEvent
}

// NewFeed creates a feed with the given capacity (<=0 means
// DefaultFeedCapacity).
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{capacity: capacity}
}

// Add folds one event into the feed with the same dedup-then-truncate
// discipline as the reducer. Malformed events are dropped.
func (f *Feed) Add(e model.IoTEvent) bool {
	if e.ID == "" || e.MetricType == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	next := make([]model.IoTEvent, 0, len(f.events)+1)
	next = append(next, e)
	for _, old := range f.events {
		if old.ID == e.ID {
			continue
		}
		next = append(next, old)
	}
	if len(next) > f.capacity {
		next = next[:f.capacity]
	}
	f.events = next
	return true
}

// Recent returns up to limit events, newest first. limit <= 0 returns the
// whole retained feed.
func (f *Feed) Recent(limit int) []model.IoTEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.IoTEvent, n)
	copy(out, f.events[:n])
	return out
}

// Len reports the retained feed depth.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
