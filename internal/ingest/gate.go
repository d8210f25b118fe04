package ingest

import (
	"sort"
	"sync"
)

// Gate holds live deliveries back while the historical load runs. Events that
// arrive before Open are buffered; Open flushes them in timestamp order and
// from then on deliveries pass straight through. Duplicate ids are harmless
// because the downstream reducer dedups, so an event seen both in the
// historical load and through the gate lands exactly once.
type Gate struct {
	mu      sync.Mutex
	open    bool
	pending []Delivery
	apply   func(Delivery)
}

func NewGate(apply func(Delivery)) *Gate {
	return &Gate{apply: apply}
}

// Deliver routes one event through the gate.
func (g *Gate) Deliver(d Delivery) {
	g.mu.Lock()
	if !g.open {
		g.pending = append(g.pending, d)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.apply(d)
}

// Open flushes buffered deliveries in timestamp order and switches the gate
// to pass-through. Safe to call once the historical load has completed.
func (g *Gate) Open() {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.open = true
	g.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Event.Timestamp < pending[j].Event.Timestamp
	})
	for _, d := range pending {
		g.apply(d)
	}
}

// Buffered reports how many deliveries are waiting behind a closed gate.
func (g *Gate) Buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
