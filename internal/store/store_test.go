package store

import (
	"testing"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

func f64(v float64) *float64 { return &v }

func seedPO(t *testing.T, s Store, id, num string, riskScore float64, created int64) {
	t.Helper()
	if err := s.PutPurchaseOrder(model.PurchaseOrder{
		ID: id, PONumber: num, Status: model.StageKnitting,
		RiskScore: riskScore, CreatedTS: created,
	}); err != nil {
		t.Fatalf("put po: %v", err)
	}
}

func TestUpdatePurchaseOrder_SeqRules(t *testing.T) {
	s := NewInMemoryStore()
	seedPO(t, s, "po-1", "PO-2024-001", 20, 100)

	st := model.StageDyeing
	applied, po, err := s.UpdatePurchaseOrder("po-1", POPatch{Status: &st}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied || po.Status != model.StageDyeing {
		t.Fatalf("first update should apply: applied=%v po=%+v", applied, po)
	}

	// Same seq: idempotent skip, state unchanged.
	back := model.StageKnitting
	applied, po, err = s.UpdatePurchaseOrder("po-1", POPatch{Status: &back}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied || po.Status != model.StageDyeing {
		t.Fatalf("same-seq update must skip: applied=%v status=%s", applied, po.Status)
	}

	// Gap allowed.
	ship := model.StageShipping
	applied, po, err = s.UpdatePurchaseOrder("po-1", POPatch{Status: &ship}, 3)
	if err != nil || !applied || po.Status != model.StageShipping {
		t.Fatalf("gap seq should apply: err=%v applied=%v status=%s", err, applied, po.Status)
	}
	if s.PORevision("po-1") != 3 {
		t.Fatalf("revision=%d want 3", s.PORevision("po-1"))
	}
}

func TestUpdatePurchaseOrder_NotFoundIsAbsentNotError(t *testing.T) {
	s := NewInMemoryStore()
	st := model.StageDyeing
	applied, _, err := s.UpdatePurchaseOrder("missing", POPatch{Status: &st}, 1)
	if err != nil || applied {
		t.Fatalf("missing po: applied=%v err=%v", applied, err)
	}
	if _, ok, err := s.GetPurchaseOrder("missing"); ok || err != nil {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
}

func TestUpdatePurchaseOrder_RiskLevelRecomputed(t *testing.T) {
	s := NewInMemoryStore()
	seedPO(t, s, "po-1", "PO-2024-001", 20, 100)
	po, _, _ := s.GetPurchaseOrder("po-1")
	if po.RiskLevel != model.RiskLow {
		t.Fatalf("seed level=%s want low", po.RiskLevel)
	}
	applied, po, err := s.UpdatePurchaseOrder("po-1", POPatch{RiskScore: f64(85)}, 1)
	if err != nil || !applied {
		t.Fatalf("update: applied=%v err=%v", applied, err)
	}
	if po.RiskLevel != model.RiskCritical {
		t.Fatalf("risk level must track the canonical bucketing, got %s", po.RiskLevel)
	}
}

func TestUpdatePurchaseOrder_AppendEntrySupersedesStage(t *testing.T) {
	s := NewInMemoryStore()
	seedPO(t, s, "po-1", "PO-2024-001", 20, 100)
	e1 := model.TimelineEntry{Stage: model.StageKnitting, Status: model.EntryInProgress, Supplier: "first"}
	e2 := model.TimelineEntry{Stage: model.StageKnitting, Status: model.EntryCompleted, Supplier: "second"}
	_, _, _ = s.UpdatePurchaseOrder("po-1", POPatch{AppendEntry: &e1}, 1)
	_, po, _ := s.UpdatePurchaseOrder("po-1", POPatch{AppendEntry: &e2}, 2)
	count := 0
	for _, e := range po.Timeline {
		if e.Stage == model.StageKnitting {
			count++
			if e.Supplier != "second" {
				t.Fatalf("superseded entry survived: %+v", e)
			}
		}
	}
	if count != 1 {
		t.Fatalf("want one authoritative entry per stage, got %d", count)
	}
}

func TestUpdatePurchaseOrder_InsightAttachedToStage(t *testing.T) {
	s := NewInMemoryStore()
	seedPO(t, s, "po-1", "PO-2024-001", 20, 100)
	e := model.TimelineEntry{Stage: model.StageDyeing, Status: model.EntryInProgress}
	_, _, _ = s.UpdatePurchaseOrder("po-1", POPatch{AppendEntry: &e}, 1)
	txt := "dye lot running 6% over target water usage"
	_, po, _ := s.UpdatePurchaseOrder("po-1", POPatch{InsightStage: model.StageDyeing, InsightText: &txt}, 2)
	if po.Timeline[len(po.Timeline)-1].Insight != txt {
		t.Fatalf("insight not stored verbatim: %+v", po.Timeline)
	}
}

func TestListPurchaseOrders_SortAndLimit(t *testing.T) {
	s := NewInMemoryStore()
	seedPO(t, s, "a", "PO-1", 70, 100)
	seedPO(t, s, "b", "PO-2", 10, 300)
	seedPO(t, s, "c", "PO-3", 40, 200)

	pos, err := s.ListPurchaseOrders(SortCreatedDesc, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pos[0].ID != "b" || pos[2].ID != "a" {
		t.Fatalf("created-desc order wrong: %v", ids(pos))
	}
	pos, _ = s.ListPurchaseOrders(SortRiskDesc, 2)
	if len(pos) != 2 || pos[0].ID != "a" {
		t.Fatalf("risk-desc limit wrong: %v", ids(pos))
	}
	// unknown sort reads as created-desc
	pos, _ = s.ListPurchaseOrders(SortOrder("bogus"), 0)
	if pos[0].ID != "b" {
		t.Fatalf("unknown sort should default: %v", ids(pos))
	}
}

func ids(pos []model.PurchaseOrder) []string {
	out := make([]string, len(pos))
	for i, po := range pos {
		out[i] = po.ID
	}
	return out
}

func TestFindPurchaseOrderByNumber(t *testing.T) {
	s := NewInMemoryStore()
	seedPO(t, s, "a", "PO-2024-017", 5, 1)
	po, ok, err := s.FindPurchaseOrderByNumber("PO-2024-017")
	if err != nil || !ok || po.ID != "a" {
		t.Fatalf("find: %+v ok=%v err=%v", po, ok, err)
	}
	if _, ok, _ := s.FindPurchaseOrderByNumber("PO-9999"); ok {
		t.Fatalf("missing number should be absent")
	}
}

func TestMarkAlertRead_NeverReverts(t *testing.T) {
	s := NewInMemoryStore()
	_ = s.PutAlert(model.Alert{ID: "al-1", Severity: model.SeverityWarning, CreatedTS: 10})
	applied, err := s.MarkAlertRead("al-1", 1)
	if err != nil || !applied {
		t.Fatalf("mark read: applied=%v err=%v", applied, err)
	}
	a, ok, _ := s.GetAlert("al-1")
	if !ok || !a.IsRead {
		t.Fatalf("alert not read: %+v", a)
	}
	// stale seq skips, read state survives
	if applied, _ := s.MarkAlertRead("al-1", 1); applied {
		t.Fatalf("stale seq must skip")
	}
	a, _, _ = s.GetAlert("al-1")
	if !a.IsRead {
		t.Fatalf("is_read reverted")
	}
	// missing alert: absent, not error
	if applied, err := s.MarkAlertRead("nope", 1); applied || err != nil {
		t.Fatalf("missing alert: applied=%v err=%v", applied, err)
	}
}

func TestListIoTEvents_FilterSortLimit(t *testing.T) {
	s := NewInMemoryStore()
	_ = s.PutIoTEvent(model.IoTEvent{ID: "e1", POID: "po-1", MetricType: model.MetricProductionRate, MetricValue: 10, Timestamp: 5})
	_ = s.PutIoTEvent(model.IoTEvent{ID: "e2", POID: "po-1", MetricType: model.MetricTemperature, MetricValue: 30, Timestamp: 9})
	_ = s.PutIoTEvent(model.IoTEvent{ID: "e3", POID: "po-2", MetricType: model.MetricProductionRate, MetricValue: 12, Timestamp: 7})

	events, err := s.ListIoTEvents(EventFilter{POID: "po-1"}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].ID != "e2" {
		t.Fatalf("po filter / desc order wrong: %+v", events)
	}
	events, _ = s.ListIoTEvents(EventFilter{POID: "po-1", MetricType: model.MetricProductionRate}, 0)
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("metric filter wrong: %+v", events)
	}
	events, _ = s.ListIoTEvents(EventFilter{}, 2)
	if len(events) != 2 {
		t.Fatalf("limit ignored: %d", len(events))
	}
	// upsert by id
	_ = s.PutIoTEvent(model.IoTEvent{ID: "e1", POID: "po-1", MetricType: model.MetricProductionRate, MetricValue: 99, Timestamp: 6})
	events, _ = s.ListIoTEvents(EventFilter{POID: "po-1", MetricType: model.MetricProductionRate}, 0)
	if len(events) != 1 || events[0].MetricValue != 99 {
		t.Fatalf("event update should replace: %+v", events)
	}
}

func TestExportLoadAll_RoundTrip(t *testing.T) {
	src := NewInMemoryStore()
	seedPO(t, src, "po-1", "PO-1", 60, 100)
	st := model.StageShipping
	_, _, _ = src.UpdatePurchaseOrder("po-1", POPatch{Status: &st}, 4)
	_ = src.PutAlert(model.Alert{ID: "al-1", Severity: model.SeverityCritical, CreatedTS: 5})

	dump, err := src.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	dst := NewInMemoryStore()
	dst.LoadAll(dump)
	po, ok, _ := dst.GetPurchaseOrder("po-1")
	if !ok || po.Status != model.StageShipping {
		t.Fatalf("po not restored: %+v ok=%v", po, ok)
	}
	if dst.PORevision("po-1") != 4 {
		t.Fatalf("revision not restored: %d", dst.PORevision("po-1"))
	}
	if _, ok, _ := dst.GetAlert("al-1"); !ok {
		t.Fatalf("alert not restored")
	}
}
