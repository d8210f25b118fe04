// Package tracker is the read-model facade over the durable store and the
// live sensor pipeline. All purchase order and alert mutations flow through
// it so that every write gets a sequence number and a journal entry.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quenishay-arch/traceloom2/internal/alerts"
	"github.com/quenishay-arch/traceloom2/internal/insight"
	"github.com/quenishay-arch/traceloom2/internal/journal"
	"github.com/quenishay-arch/traceloom2/internal/live"
	"github.com/quenishay-arch/traceloom2/internal/metrics"
	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/risk"
	"github.com/quenishay-arch/traceloom2/internal/stage"
	"github.com/quenishay-arch/traceloom2/internal/store"
)

var ErrNotFound = fmt.Errorf("not found")

type Tracker struct {
	store    store.Store
	journal  journal.Writer
	reducer  *live.Reducer
	feed     *live.Feed
	metrics  *metrics.Registry
	insights insight.Generator
	log      *zap.Logger

	// muMu serializes seq assignment across mutations so revision+1 is
	// never computed twice for the same value.
	muMu sync.Mutex
}

func New(st store.Store, jw journal.Writer, red *live.Reducer, feed *live.Feed, reg *metrics.Registry, gen insight.Generator, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Tracker{
		store:    st,
		journal:  jw,
		reducer:  red,
		feed:     feed,
		metrics:  reg,
		insights: gen,
		log:      log,
	}
}

// --- read models ---

func (t *Tracker) ListPurchaseOrders(order store.SortOrder, limit int) ([]model.PurchaseOrder, error) {
	return t.store.ListPurchaseOrders(order, limit)
}

func (t *Tracker) GetPurchaseOrder(id string) (model.PurchaseOrder, error) {
	po, ok, err := t.store.GetPurchaseOrder(id)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if !ok {
		return model.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", id, ErrNotFound)
	}
	return po, nil
}

func (t *Tracker) FindPurchaseOrderByNumber(num string) (model.PurchaseOrder, error) {
	po, ok, err := t.store.FindPurchaseOrderByNumber(num)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if !ok {
		return model.PurchaseOrder{}, fmt.Errorf("purchase order number %s: %w", num, ErrNotFound)
	}
	return po, nil
}

// StageTimeline derives the full per-stage view for one purchase order.
func (t *Tracker) StageTimeline(id string) ([]stage.Item, error) {
	po, err := t.GetPurchaseOrder(id)
	if err != nil {
		return nil, err
	}
	return stage.Timeline(po.Status, po.Timeline), nil
}

func (t *Tracker) TrustScore(id string) (float64, error) {
	po, err := t.GetPurchaseOrder(id)
	if err != nil {
		return 0, err
	}
	return risk.TrustScore(po), nil
}

// RiskLevel buckets a score. The stored level on a purchase order is a
// convenience copy; this derivation is authoritative.
func (t *Tracker) RiskLevel(score float64) model.RiskLevel {
	return risk.Level(score)
}

func (t *Tracker) LiveMetrics(subject string) live.Snapshot {
	return t.reducer.Snapshot(subject)
}

func (t *Tracker) Subscribe(subject string) *live.Subscription {
	return t.reducer.Subscribe(subject)
}

func (t *Tracker) RecentActivity(limit int) []model.IoTEvent {
	return t.feed.Recent(limit)
}

func (t *Tracker) FleetStats() (risk.FleetStats, error) {
	pos, err := t.store.ListPurchaseOrders(store.SortCreatedDesc, 0)
	if err != nil {
		return risk.FleetStats{}, err
	}
	return risk.Fleet(pos), nil
}

// ListAlerts returns alerts in display order: severity rank first, newest
// within a rank. Unknown types and severities degrade to their defaults
// instead of failing.
func (t *Tracker) ListAlerts(limit int) ([]model.Alert, error) {
	as, err := t.store.ListAlerts(0)
	if err != nil {
		return nil, err
	}
	alerts.SortForDisplay(as)
	if limit > 0 && limit < len(as) {
		as = as[:limit]
	}
	return as, nil
}

// ClassifyAlert buckets an alert's type and severity, tolerating unknown
// values.
func (t *Tracker) ClassifyAlert(a model.Alert) alerts.Class {
	return alerts.Classify(a)
}

func (t *Tracker) ListIoTEvents(f store.EventFilter, limit int) ([]model.IoTEvent, error) {
	return t.store.ListIoTEvents(f, limit)
}

// --- live pipeline ---

// ApplyEvent routes one validated sensor event: durable store, per-subject
// reducer, global feed. Duplicate ids count as dedups, not new events.
func (t *Tracker) ApplyEvent(e model.IoTEvent) {
	if err := t.store.PutIoTEvent(e); err != nil {
		t.log.Warn("event not persisted", zap.String("event_id", e.ID), zap.Error(err))
	}
	applied, replaced := t.reducer.Apply(e)
	if !applied {
		t.metrics.EventsDropped.Inc()
		return
	}
	if replaced {
		t.metrics.EventsDeduped.Inc()
	} else {
		t.metrics.EventsApplied.Inc()
	}
	t.feed.Add(e)
	t.metrics.FeedDepth.Set(float64(t.feed.Len()))
}

// LoadHistoricalEvents replays stored sensor events into the live pipeline
// so subscribers see state from before this process started. The store lists
// newest first; replay walks the slice backwards so the bounded buffers
// receive events in timestamp order and truncate the oldest, not the newest.
func (t *Tracker) LoadHistoricalEvents() (int, error) {
	evs, err := t.store.ListIoTEvents(store.EventFilter{}, 0)
	if err != nil {
		return 0, err
	}
	for i := len(evs) - 1; i >= 0; i-- {
		t.ApplyEvent(evs[i])
	}
	return len(evs), nil
}

// --- mutations ---

func (t *Tracker) journalEntry(e journal.Entry) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Append(e); err != nil {
		t.log.Error("journal append failed",
			zap.String("kind", string(e.Kind)),
			zap.String("id", e.ID),
			zap.Error(err))
		return
	}
	t.metrics.JournalAppended.Inc()
}

// AdvanceStage moves a purchase order to the next stage in canonical order
// and appends an in-progress timeline entry for it. An unknown current
// status restarts at the first stage; a delivered order stays put.
func (t *Tracker) AdvanceStage(id string) (model.PurchaseOrder, error) {
	t.muMu.Lock()
	defer t.muMu.Unlock()

	po, err := t.GetPurchaseOrder(id)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if risk.LevelMismatch(po) {
		t.metrics.RiskLevelMismatch.Inc()
	}

	stages := model.Stages()
	idx := stage.Index(po.Status)
	next := idx + 1
	if next >= len(stages) {
		return po, fmt.Errorf("purchase order %s already %s", id, stages[len(stages)-1])
	}
	target := stages[next]

	entry := model.TimelineEntry{
		Stage:  target,
		Status: model.EntryInProgress,
		Date:   time.Now().UTC().Format("2006-01-02"),
	}
	patch := store.POPatch{Status: &target, AppendEntry: &entry}
	seq := t.store.PORevision(id) + 1
	applied, updated, err := t.store.UpdatePurchaseOrder(id, patch, seq)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if !applied {
		return po, fmt.Errorf("purchase order %s: stale sequence %d", id, seq)
	}
	t.journalEntry(journal.Entry{Kind: journal.KindPOUpdate, ID: id, Seq: seq, TS: time.Now().UTC().Unix(), Patch: &patch})
	t.metrics.POUpdates.Inc()
	t.log.Info("stage advanced",
		zap.String("po_id", id),
		zap.String("from", string(po.Status)),
		zap.String("to", string(target)))
	return updated, nil
}

// UpdateRisk applies new risk figures. The stored risk level is recomputed
// from the score inside the store.
func (t *Tracker) UpdateRisk(id string, patch store.POPatch) (model.PurchaseOrder, error) {
	t.muMu.Lock()
	defer t.muMu.Unlock()

	seq := t.store.PORevision(id) + 1
	applied, updated, err := t.store.UpdatePurchaseOrder(id, patch, seq)
	if err != nil {
		return model.PurchaseOrder{}, err
	}
	if !applied {
		if _, ok, _ := t.store.GetPurchaseOrder(id); !ok {
			return model.PurchaseOrder{}, fmt.Errorf("purchase order %s: %w", id, ErrNotFound)
		}
		return model.PurchaseOrder{}, fmt.Errorf("purchase order %s: stale sequence %d", id, seq)
	}
	t.journalEntry(journal.Entry{Kind: journal.KindPOUpdate, ID: id, Seq: seq, TS: time.Now().UTC().Unix(), Patch: &patch})
	t.metrics.POUpdates.Inc()
	return updated, nil
}

// AttachInsight asks the generator for narrative text about a stage and
// stores it verbatim on the matching timeline entries.
func (t *Tracker) AttachInsight(ctx context.Context, id string, st model.Stage) (string, error) {
	po, err := t.GetPurchaseOrder(id)
	if err != nil {
		return "", err
	}
	text, err := t.insights.Generate(ctx, po, st)
	if err != nil {
		return "", fmt.Errorf("generate insight: %w", err)
	}

	t.muMu.Lock()
	defer t.muMu.Unlock()
	patch := store.POPatch{InsightStage: st, InsightText: &text}
	seq := t.store.PORevision(id) + 1
	applied, _, err := t.store.UpdatePurchaseOrder(id, patch, seq)
	if err != nil {
		return "", err
	}
	if !applied {
		return "", fmt.Errorf("purchase order %s: stale sequence %d", id, seq)
	}
	t.journalEntry(journal.Entry{Kind: journal.KindPOUpdate, ID: id, Seq: seq, TS: time.Now().UTC().Unix(), Patch: &patch})
	t.metrics.POUpdates.Inc()
	return text, nil
}

// AcknowledgeAlert flips is_read to true. The flag never reverts, so
// acknowledging twice converges on the same state.
func (t *Tracker) AcknowledgeAlert(id string) error {
	t.muMu.Lock()
	defer t.muMu.Unlock()

	seq := t.store.AlertRevision(id) + 1
	applied, err := t.store.MarkAlertRead(id, seq)
	if err != nil {
		return err
	}
	if !applied {
		// Already read, or the alert is gone. Check which.
		if _, ok, _ := t.store.GetAlert(id); !ok {
			return fmt.Errorf("alert %s: %w", id, ErrNotFound)
		}
		return nil
	}
	t.journalEntry(journal.Entry{Kind: journal.KindAlertRead, ID: id, Seq: seq, TS: time.Now().UTC().Unix()})
	t.metrics.AlertsAcknowledged.Inc()
	return nil
}
