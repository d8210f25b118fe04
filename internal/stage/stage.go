package stage

import (
	"github.com/quenishay-arch/traceloom2/internal/model"
)

// DisplayStatus is the derived state of a stage relative to the order's
// current status.
type DisplayStatus string

const (
	Completed DisplayStatus = "completed"
	Current   DisplayStatus = "current"
	Pending   DisplayStatus = "pending"
)

// Item is one row of the derived stage timeline. Entry is nil when the
// order has no timeline record for the stage; that does not change the
// display status.
type Item struct {
	Stage   model.Stage          `json:"stage"`
	Display DisplayStatus        `json:"display_status"`
	Entry   *model.TimelineEntry `json:"entry,omitempty"`
}

// Index returns the position of s in the canonical stage order, or -1 when
// s is not a known stage.
func Index(s model.Stage) int {
	for i, st := range model.Stages() {
		if st == s {
			return i
		}
	}
	return -1
}

// Timeline derives the per-stage view for an order: stages before the
// current status are completed, the current one is current, the rest are
// pending. An unknown status yields all stages pending.
func Timeline(current model.Stage, entries []model.TimelineEntry) []Item {
	cur := Index(current)

	// Last appended entry per stage wins.
	byStage := make(map[model.Stage]model.TimelineEntry, len(entries))
	for _, e := range entries {
		if e.Stage == "" {
			continue
		}
		byStage[e.Stage] = e
	}

	stages := model.Stages()
	items := make([]Item, 0, len(stages))
	for i, s := range stages {
		it := Item{Stage: s, Display: Pending}
		switch {
		case cur < 0:
			// unknown status: everything pending
		case i < cur:
			it.Display = Completed
		case i == cur:
			it.Display = Current
		}
		if e, ok := byStage[s]; ok {
			e := e
			it.Entry = &e
		}
		items = append(items, it)
	}
	return items
}

// Progress maps the current status onto [0,1] for continuous display.
// Unknown statuses report zero progress.
func Progress(current model.Stage) float64 {
	i := Index(current)
	if i <= 0 {
		return 0
	}
	n := len(model.Stages())
	p := float64(i) / float64(n-1)
	if p > 1 {
		p = 1
	}
	return p
}

// Entry returns the authoritative timeline entry for one stage, or false
// when the order has none.
func Entry(entries []model.TimelineEntry, s model.Stage) (model.TimelineEntry, bool) {
	var found model.TimelineEntry
	ok := false
	for _, e := range entries {
		if e.Stage == s {
			found = e
			ok = true
		}
	}
	return found, ok
}
