// Package live reduces the unbounded IoT event stream into bounded
// per-subject state: latest reading per metric type, a rolling average and
// a trend for one designated metric, and a global recent-activity feed.
package live

import (
	"sync"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

// DefaultCapacity bounds the per-subject buffer.
const DefaultCapacity = 20

// Trend is the 3-way direction of the designated metric over the retained
// window.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Stats are the rolling statistics for the designated metric type. The
// trend compares the current reading to the oldest reading still retained
// in the bounded window.
type Stats struct {
	Metric  model.MetricType `json:"metric_type"`
	Current float64          `json:"current"`
	Average float64          `json:"average"`
	Trend   Trend            `json:"trend"`
	Unit    string           `json:"unit,omitempty"`
	Samples int              `json:"samples"`
}

// Snapshot is a consistent view of one subject's live state. Events are
// newest-insertion first. Stats is nil when the buffer holds no reading of
// the designated metric; consumers must treat that as no data, not zero.
type Snapshot struct {
	Subject string                              `json:"subject"`
	Events  []model.IoTEvent                    `json:"events"`
	Latest  map[model.MetricType]model.IoTEvent `json:"latest_per_type"`
	Stats   *Stats                              `json:"stats,omitempty"`
}

// Reducer maintains independent bounded buffers per subject (po_id or
// "global"). Updates to one subject are serialized; subjects never block
// each other.
type Reducer struct {
	capacity   int
	statMetric model.MetricType

	mu       sync.RWMutex
	subjects map[string]*subject
}

type subject struct {
	mu     sync.Mutex
	name   string
	events []model.IoTEvent // newest-insertion first
	subs   map[*Subscription]struct{}
}

// NewReducer creates a reducer with the given buffer capacity (<=0 means
// DefaultCapacity) tracking statistics for statMetric (empty means
// production_rate).
func NewReducer(capacity int, statMetric model.MetricType) *Reducer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if statMetric == "" {
		statMetric = model.MetricProductionRate
	}
	return &Reducer{
		capacity:   capacity,
		statMetric: statMetric,
		subjects:   make(map[string]*subject),
	}
}

// Apply folds one event into its subject's buffer: dedup by id, prepend,
// truncate to capacity. Malformed events (missing id or metric_type) are
// dropped without disturbing existing state. It reports whether the event
// was applied and whether it replaced a previously-seen id.
func (r *Reducer) Apply(e model.IoTEvent) (applied bool, replaced bool) {
	if e.ID == "" || e.MetricType == "" {
		return false, false
	}
	s := r.subjectFor(e.Subject())

	s.mu.Lock()
	next := make([]model.IoTEvent, 0, len(s.events)+1)
	next = append(next, e)
	for _, old := range s.events {
		if old.ID == e.ID {
			replaced = true
			continue
		}
		next = append(next, old)
	}
	if len(next) > r.capacity {
		next = next[:r.capacity]
	}
	s.events = next
	snap := r.snapshotLocked(s)
	for sub := range s.subs {
		sub.push(snap)
	}
	s.mu.Unlock()
	return true, replaced
}

// Snapshot returns the current view of a subject. An unseen subject yields
// an empty snapshot, never an error.
func (r *Reducer) Snapshot(name string) Snapshot {
	r.mu.RLock()
	s := r.subjects[name]
	r.mu.RUnlock()
	if s == nil {
		return Snapshot{Subject: name, Latest: map[model.MetricType]model.IoTEvent{}}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.snapshotLocked(s)
}

// Latest returns the greatest-timestamp reading per metric type for a
// subject.
func (r *Reducer) Latest(name string) map[model.MetricType]model.IoTEvent {
	return r.Snapshot(name).Latest
}

// Stats returns the rolling statistics for the designated metric, or false
// when the subject has no reading of it.
func (r *Reducer) Stats(name string) (Stats, bool) {
	snap := r.Snapshot(name)
	if snap.Stats == nil {
		return Stats{}, false
	}
	return *snap.Stats, true
}

func (r *Reducer) subjectFor(name string) *subject {
	r.mu.RLock()
	s := r.subjects[name]
	r.mu.RUnlock()
	if s != nil {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s = r.subjects[name]; s == nil {
		s = &subject{name: name, subs: make(map[*Subscription]struct{})}
		r.subjects[name] = s
	}
	return s
}

// snapshotLocked derives the read model from the buffer. Caller holds s.mu.
func (r *Reducer) snapshotLocked(s *subject) Snapshot {
	events := make([]model.IoTEvent, len(s.events))
	copy(events, s.events)

	latest := make(map[model.MetricType]model.IoTEvent, len(events))
	for _, e := range events {
		// Front of the buffer is the most recent insertion, so a tie on
		// timestamp keeps the first one seen.
		if cur, ok := latest[e.MetricType]; !ok || e.Timestamp > cur.Timestamp {
			latest[e.MetricType] = e
		}
	}

	snap := Snapshot{Subject: s.name, Events: events, Latest: latest}

	var window []model.IoTEvent
	for _, e := range events {
		if e.MetricType == r.statMetric {
			window = append(window, e)
		}
	}
	if len(window) == 0 {
		return snap
	}
	sum := 0.0
	for _, e := range window {
		sum += e.MetricValue
	}
	cur := latest[r.statMetric]
	oldest := window[len(window)-1]
	trend := TrendStable
	switch {
	case cur.MetricValue > oldest.MetricValue:
		trend = TrendUp
	case cur.MetricValue < oldest.MetricValue:
		trend = TrendDown
	}
	snap.Stats = &Stats{
		Metric:  r.statMetric,
		Current: cur.MetricValue,
		Average: sum / float64(len(window)),
		Trend:   trend,
		Unit:    cur.MetricUnit,
		Samples: len(window),
	}
	return snap
}
