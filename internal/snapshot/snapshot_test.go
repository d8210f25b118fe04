package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/store"
)

func TestWriteSnapshot_WritesStateJSON(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemoryStore()
	s.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", RiskScore: 20})
	s.PutPurchaseOrder(model.PurchaseOrder{ID: "p2", PONumber: "PO-1002", RiskScore: 62})
	s.PutAlert(model.Alert{ID: "a1", Title: "delay risk", Severity: model.SeverityWarning})

	snap := NewFilesystemSnapshotter(dir)
	info, err := snap.WriteSnapshot("sid", s)
	if err != nil {
		t.Fatalf("WriteSnapshot error: %v", err)
	}
	if info.POs != 2 || info.Alerts != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}

	path := filepath.Join(dir, "sid", "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("state.json missing: %v", err)
	}
	var d store.Dump
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(d.POs) != 2 || len(d.Alerts) != 1 {
		t.Fatalf("unexpected dump: %d pos, %d alerts", len(d.POs), len(d.Alerts))
	}
}

func TestReadSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := store.NewInMemoryStore()
	s.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", RiskScore: 85})

	snap := NewFilesystemSnapshotter(dir)
	if _, err := snap.WriteSnapshot("sid", s); err != nil {
		t.Fatalf("WriteSnapshot error: %v", err)
	}
	d, err := snap.ReadSnapshot("sid")
	if err != nil {
		t.Fatalf("ReadSnapshot error: %v", err)
	}
	rec, ok := d.POs["p1"]
	if !ok {
		t.Fatalf("p1 missing from snapshot")
	}
	if rec.PO.RiskLevel != model.RiskCritical {
		t.Fatalf("risk level not preserved: %s", rec.PO.RiskLevel)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	snap := NewFilesystemSnapshotter(t.TempDir())
	if _, err := snap.ReadSnapshot("nope"); err == nil {
		t.Fatalf("expected error for missing snapshot")
	}
}
