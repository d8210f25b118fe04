package restore

import (
	"path/filepath"
	"testing"

	"github.com/quenishay-arch/traceloom2/internal/journal"
	"github.com/quenishay-arch/traceloom2/internal/manifest"
	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/snapshot"
	"github.com/quenishay-arch/traceloom2/internal/store"
)

func f64(v float64) *float64 { return &v }

func writeJournal(t *testing.T, dir string, entries ...journal.Entry) string {
	t.Helper()
	w, err := journal.NewFileWriter(dir, "mutations.jsonl")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return filepath.Join(dir, "mutations.jsonl")
}

func TestRestoreAndReplay_MinimalFlow(t *testing.T) {
	base := t.TempDir()

	// Snapshot holds p1 at rev 1 with score 40.
	seed := store.NewInMemoryStore()
	seed.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001", RiskScore: 40})
	if _, _, err := seed.UpdatePurchaseOrder("p1", store.POPatch{RiskScore: f64(40)}, 1); err != nil {
		t.Fatalf("seed update: %v", err)
	}
	snapDir := filepath.Join(base, "snapshots")
	snap := snapshot.NewFilesystemSnapshotter(snapDir)
	if _, err := snap.WriteSnapshot("sid-test", seed); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	// Journal: line 1 already covered by the snapshot, lines 2-3 are new.
	path := writeJournal(t, base,
		journal.Entry{Kind: journal.KindPOUpdate, ID: "p1", Seq: 1, TS: 1, Patch: &store.POPatch{RiskScore: f64(40)}},
		journal.Entry{Kind: journal.KindPOUpdate, ID: "p1", Seq: 2, TS: 2, Patch: &store.POPatch{RiskScore: f64(85)}},
		journal.Entry{Kind: journal.KindPOUpdate, ID: "p1", Seq: 3, TS: 3, Patch: &store.POPatch{EstimatedDelayDays: f64(4)}},
	)

	mf := manifest.NewFilesystemManifest(base)
	if err := mf.PublishLatest("sid-test", 1, manifest.Contents{POs: 1}); err != nil {
		t.Fatalf("publish manifest: %v", err)
	}

	st := store.NewInMemoryStore()
	r := NewRestorer(st, snap, mf, path, nil)
	res, err := r.RestoreAndReplay()
	if err != nil {
		t.Fatalf("RestoreAndReplay error: %v", err)
	}
	if res.Applied != 2 || res.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	po, ok, _ := st.GetPurchaseOrder("p1")
	if !ok {
		t.Fatalf("p1 missing after restore")
	}
	if po.RiskScore != 85 || po.RiskLevel != model.RiskCritical {
		t.Fatalf("replay did not apply risk update: %+v", po)
	}
	if po.EstimatedDelayDays != 4 {
		t.Fatalf("replay did not apply delay update: %+v", po)
	}
	if got := st.PORevision("p1"); got != 3 {
		t.Fatalf("revision = %d, want 3", got)
	}
}

func TestReplayJournal_SeqGuardSkipsDuplicates(t *testing.T) {
	base := t.TempDir()
	path := writeJournal(t, base,
		journal.Entry{Kind: journal.KindPOUpdate, ID: "p1", Seq: 1, TS: 1, Patch: &store.POPatch{RiskScore: f64(50)}},
		journal.Entry{Kind: journal.KindPOUpdate, ID: "p1", Seq: 1, TS: 1, Patch: &store.POPatch{RiskScore: f64(50)}},
		journal.Entry{Kind: journal.KindPOUpdate, ID: "p1", Seq: 2, TS: 2, Patch: &store.POPatch{RiskScore: f64(60)}},
	)

	st := store.NewInMemoryStore()
	st.PutPurchaseOrder(model.PurchaseOrder{ID: "p1", PONumber: "PO-1001"})

	r := NewRestorer(st, snapshot.NewFilesystemSnapshotter(base), manifest.NewFilesystemManifest(base), path, nil)
	res, err := r.ReplayJournal(path, 0)
	if err != nil {
		t.Fatalf("ReplayJournal error: %v", err)
	}
	if res.Applied != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	po, _, _ := st.GetPurchaseOrder("p1")
	if po.RiskScore != 60 {
		t.Fatalf("final score = %v, want 60", po.RiskScore)
	}
}

func TestReplayJournal_AlertRead(t *testing.T) {
	base := t.TempDir()
	path := writeJournal(t, base,
		journal.Entry{Kind: journal.KindAlertRead, ID: "a1", Seq: 1, TS: 1},
	)

	st := store.NewInMemoryStore()
	st.PutAlert(model.Alert{ID: "a1", Title: "delay risk", Severity: model.SeverityWarning})

	r := NewRestorer(st, snapshot.NewFilesystemSnapshotter(base), manifest.NewFilesystemManifest(base), path, nil)
	res, err := r.ReplayJournal(path, 0)
	if err != nil {
		t.Fatalf("ReplayJournal error: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	a, _, _ := st.GetAlert("a1")
	if !a.IsRead {
		t.Fatalf("alert not marked read")
	}
}

func TestRestoreAndReplay_ColdStart(t *testing.T) {
	base := t.TempDir()
	path := writeJournal(t, base,
		journal.Entry{Kind: journal.KindAlertRead, ID: "a1", Seq: 1, TS: 1},
	)

	st := store.NewInMemoryStore()
	st.PutAlert(model.Alert{ID: "a1", Title: "x", Severity: model.SeverityInfo})

	// No manifest published: replay the whole journal from offset zero.
	r := NewRestorer(st, snapshot.NewFilesystemSnapshotter(base), manifest.NewFilesystemManifest(base), path, nil)
	res, err := r.RestoreAndReplay()
	if err != nil {
		t.Fatalf("RestoreAndReplay error: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestReplayJournal_MissingFile(t *testing.T) {
	st := store.NewInMemoryStore()
	base := t.TempDir()
	r := NewRestorer(st, snapshot.NewFilesystemSnapshotter(base), manifest.NewFilesystemManifest(base), filepath.Join(base, "nope.jsonl"), nil)
	res, err := r.ReplayJournal(filepath.Join(base, "nope.jsonl"), 0)
	if err != nil {
		t.Fatalf("missing journal should not error: %v", err)
	}
	if res.Applied != 0 || res.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}
