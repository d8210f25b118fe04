package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quenishay-arch/traceloom2/internal/insight"
	"github.com/quenishay-arch/traceloom2/internal/journal"
	"github.com/quenishay-arch/traceloom2/internal/live"
	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/store"
)

// recordingJournal captures appended entries for assertions.
type recordingJournal struct {
	entries []journal.Entry
}

func (r *recordingJournal) Append(e journal.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newTracker(t *testing.T) (*Tracker, store.Store, *recordingJournal) {
	t.Helper()
	st := store.NewInMemoryStore()
	jw := &recordingJournal{}
	red := live.NewReducer(0, "")
	feed := live.NewFeed(0)
	tr := New(st, jw, red, feed, nil, insight.NewTemplate(), nil)
	return tr, st, jw
}

func TestAdvanceStage_MovesToNextAndJournals(t *testing.T) {
	tr, st, jw := newTracker(t)
	st.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", Status: model.StageKnitting})

	po, err := tr.AdvanceStage("p1")
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if po.Status != model.StageDyeing {
		t.Fatalf("status = %s, want dyeing", po.Status)
	}
	last := po.Timeline[len(po.Timeline)-1]
	if last.Stage != model.StageDyeing || last.Status != model.EntryInProgress {
		t.Fatalf("timeline entry not appended: %+v", last)
	}
	if len(jw.entries) != 1 || jw.entries[0].Kind != journal.KindPOUpdate || jw.entries[0].Seq != 1 {
		t.Fatalf("journal entries: %+v", jw.entries)
	}
	if got := st.PORevision("p1"); got != 1 {
		t.Fatalf("revision = %d, want 1", got)
	}
}

func TestAdvanceStage_UnknownStatusRestartsAtFirst(t *testing.T) {
	tr, st, _ := newTracker(t)
	// Non-empty unknown status; PutPurchaseOrder only normalizes empty ones.
	st.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", Status: "warehouse"})

	po, err := tr.AdvanceStage("p1")
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if po.Status != model.StageYarnSourcing {
		t.Fatalf("status = %s, want yarn_sourcing", po.Status)
	}
}

func TestAdvanceStage_DeliveredStaysPut(t *testing.T) {
	tr, st, jw := newTracker(t)
	st.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", Status: model.StageDelivered})

	if _, err := tr.AdvanceStage("p1"); err == nil {
		t.Fatalf("expected error advancing a delivered order")
	}
	if len(jw.entries) != 0 {
		t.Fatalf("nothing should be journaled: %+v", jw.entries)
	}
}

func TestAdvanceStage_Missing(t *testing.T) {
	tr, _, _ := newTracker(t)
	if _, err := tr.AdvanceStage("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateRisk_RecomputesLevel(t *testing.T) {
	tr, st, jw := newTracker(t)
	st.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", RiskScore: 10})

	score := 62.0
	po, err := tr.UpdateRisk("p1", store.POPatch{RiskScore: &score})
	if err != nil {
		t.Fatalf("UpdateRisk: %v", err)
	}
	if po.RiskScore != 62 || po.RiskLevel != model.RiskHigh {
		t.Fatalf("risk not recomputed: %+v", po)
	}
	if len(jw.entries) != 1 || jw.entries[0].Patch == nil || *jw.entries[0].Patch.RiskScore != 62 {
		t.Fatalf("journal entries: %+v", jw.entries)
	}
}

func TestAttachInsight_StoresTextOnStage(t *testing.T) {
	tr, st, _ := newTracker(t)
	st.PutPurchaseOrder(model.PurchaseOrder{
		ID: "p1", PONumber: "PO-1001", Status: model.StageDyeing, RiskScore: 20,
		Timeline: []model.TimelineEntry{
			{Stage: model.StageKnitting, Status: model.EntryCompleted},
			{Stage: model.StageDyeing, Status: model.EntryInProgress},
		},
	})

	text, err := tr.AttachInsight(context.Background(), "p1", model.StageDyeing)
	if err != nil {
		t.Fatalf("AttachInsight: %v", err)
	}
	if !strings.Contains(text, "PO-1001") {
		t.Fatalf("unexpected text: %s", text)
	}
	po, _ := tr.GetPurchaseOrder("p1")
	var found bool
	for _, e := range po.Timeline {
		if e.Stage == model.StageDyeing && e.Insight == text {
			found = true
		}
		if e.Stage == model.StageKnitting && e.Insight != "" {
			t.Fatalf("insight leaked to other stages: %+v", e)
		}
	}
	if !found {
		t.Fatalf("insight not stored on dyeing entry: %+v", po.Timeline)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	tr, st, jw := newTracker(t)
	st.PutAlert(model.Alert{ID: "a1", Title: "delay risk", Severity: model.SeverityWarning})

	if err := tr.AcknowledgeAlert("a1"); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	a, _, _ := st.GetAlert("a1")
	if !a.IsRead {
		t.Fatalf("alert not marked read")
	}
	if len(jw.entries) != 1 || jw.entries[0].Kind != journal.KindAlertRead {
		t.Fatalf("journal entries: %+v", jw.entries)
	}

	// Second acknowledgement converges, no error.
	if err := tr.AcknowledgeAlert("a1"); err != nil {
		t.Fatalf("second ack: %v", err)
	}
	a, _, _ = st.GetAlert("a1")
	if !a.IsRead {
		t.Fatalf("is_read must never revert")
	}
}

func TestAcknowledgeAlert_Missing(t *testing.T) {
	tr, _, _ := newTracker(t)
	if err := tr.AcknowledgeAlert("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestApplyEvent_RoutesEverywhere(t *testing.T) {
	tr, st, _ := newTracker(t)

	e := model.IoTEvent{ID: "e1", POID: "p1", MetricType: model.MetricTemperature, MetricValue: 21, Timestamp: 100}
	tr.ApplyEvent(e)

	if snap := tr.LiveMetrics("p1"); len(snap.Events) != 1 {
		t.Fatalf("reducer missed the event: %+v", snap)
	}
	if got := tr.RecentActivity(10); len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("feed missed the event: %+v", got)
	}
	evs, _ := st.ListIoTEvents(store.EventFilter{}, 0)
	if len(evs) != 1 {
		t.Fatalf("store missed the event: %+v", evs)
	}

	// Same id again replaces rather than duplicates.
	e.MetricValue = 25
	tr.ApplyEvent(e)
	if snap := tr.LiveMetrics("p1"); len(snap.Events) != 1 || snap.Events[0].MetricValue != 25 {
		t.Fatalf("dedup failed: %+v", snap.Events)
	}
}

func TestLoadHistoricalEvents_NewestSurviveTruncation(t *testing.T) {
	st := store.NewInMemoryStore()
	for i := 1; i <= 5; i++ {
		st.PutIoTEvent(model.IoTEvent{
			ID:          fmt.Sprintf("e%d", i),
			POID:        "p1",
			MetricType:  model.MetricProductionRate,
			MetricValue: float64(i * 10),
			Timestamp:   int64(i * 100),
		})
	}

	// Capacity 3 forces truncation during replay; the store lists these
	// newest first.
	red := live.NewReducer(3, "")
	feed := live.NewFeed(0)
	tr := New(st, &recordingJournal{}, red, feed, nil, insight.NewTemplate(), nil)

	n, err := tr.LoadHistoricalEvents()
	if err != nil {
		t.Fatalf("LoadHistoricalEvents: %v", err)
	}
	if n != 5 {
		t.Fatalf("replayed %d events, want 5", n)
	}

	snap := tr.LiveMetrics("p1")
	if len(snap.Events) != 3 {
		t.Fatalf("retained %d events, want 3", len(snap.Events))
	}
	for _, e := range snap.Events {
		if e.Timestamp < 300 {
			t.Fatalf("replay truncated the newest events, retained ts=%d: %+v", e.Timestamp, snap.Events)
		}
	}
	if got := snap.Latest[model.MetricProductionRate]; got.Timestamp != 500 {
		t.Fatalf("latest reading ts = %d, want 500", got.Timestamp)
	}
	if snap.Stats == nil || snap.Stats.Trend != live.TrendUp {
		t.Fatalf("rising values should trend up: %+v", snap.Stats)
	}

	recent := tr.RecentActivity(1)
	if len(recent) != 1 || recent[0].Timestamp != 500 {
		t.Fatalf("feed head should be the newest event: %+v", recent)
	}
}

func TestStageTimelineAndTrustScore(t *testing.T) {
	tr, st, _ := newTracker(t)
	st.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", Status: model.StageDyeing, RiskScore: 30})

	items, err := tr.StageTimeline("p1")
	if err != nil {
		t.Fatalf("StageTimeline: %v", err)
	}
	if len(items) != len(model.Stages()) {
		t.Fatalf("timeline length = %d", len(items))
	}
	var current int
	for _, it := range items {
		if it.Display == "current" {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("exactly one current stage expected, got %d", current)
	}

	trust, err := tr.TrustScore("p1")
	if err != nil {
		t.Fatalf("TrustScore: %v", err)
	}
	if trust != 70 {
		t.Fatalf("trust = %v, want 70", trust)
	}
}

func TestFleetStats_EmptyDefaults(t *testing.T) {
	tr, _, _ := newTracker(t)
	fs, err := tr.FleetStats()
	if err != nil {
		t.Fatalf("FleetStats: %v", err)
	}
	if fs.AvgTrust != 95 || fs.DelayRate != 0 {
		t.Fatalf("empty fleet defaults wrong: %+v", fs)
	}
}
