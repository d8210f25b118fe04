package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/risk"
)

// Key prefixes partition the keyspace per record kind.
var (
	prefixPO    = []byte("po#")
	prefixAlert = []byte("alert#")
	prefixEvent = []byte("evt#")
)

// PebbleStore implements Store on PebbleDB.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 8,
		WALBytesPerSync:       1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func poKey(id string) []byte    { return append(append([]byte(nil), prefixPO...), id...) }
func alertKey(id string) []byte { return append(append([]byte(nil), prefixAlert...), id...) }
func eventKey(id string) []byte { return append(append([]byte(nil), prefixEvent...), id...) }

func (p *PebbleStore) getJSON(key []byte, out any) (bool, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, out); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) setJSON(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.db.Set(key, b, pebble.NoSync)
}

// rangePrefix visits every value under a prefix, decoded into fresh
// instances by the callback.
func (p *PebbleStore) rangePrefix(prefix []byte, fn func(key string, value []byte) error) error {
	upper := append(append([]byte(nil), prefix...), 0xff)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		if err := fn(string(k[len(prefix):]), v); err != nil {
			return err
		}
	}
	return nil
}

func (p *PebbleStore) ListPurchaseOrders(order SortOrder, limit int) ([]model.PurchaseOrder, error) {
	var pos []model.PurchaseOrder
	err := p.rangePrefix(prefixPO, func(_ string, v []byte) error {
		var rec PORecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		pos = append(pos, rec.PO)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pos: %w", err)
	}
	sortPOs(pos, order)
	if limit > 0 && limit < len(pos) {
		pos = pos[:limit]
	}
	return pos, nil
}

func (p *PebbleStore) GetPurchaseOrder(id string) (model.PurchaseOrder, bool, error) {
	var rec PORecord
	ok, err := p.getJSON(poKey(id), &rec)
	if err != nil {
		return model.PurchaseOrder{}, false, err
	}
	return rec.PO, ok, nil
}

func (p *PebbleStore) FindPurchaseOrderByNumber(num string) (model.PurchaseOrder, bool, error) {
	var found model.PurchaseOrder
	ok := false
	err := p.rangePrefix(prefixPO, func(_ string, v []byte) error {
		if ok {
			return nil
		}
		var rec PORecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if rec.PO.PONumber == num {
			found, ok = rec.PO, true
		}
		return nil
	})
	if err != nil {
		return model.PurchaseOrder{}, false, err
	}
	return found, ok, nil
}

func (p *PebbleStore) PutPurchaseOrder(po model.PurchaseOrder) error {
	if po.Status == "" {
		po.Status = model.Stages()[0]
	}
	po.RiskLevel = risk.Level(po.RiskScore)
	return p.setJSON(poKey(po.ID), PORecord{PO: po})
}

func (p *PebbleStore) UpdatePurchaseOrder(id string, patch POPatch, seq int64) (bool, model.PurchaseOrder, error) {
	var rec PORecord
	ok, err := p.getJSON(poKey(id), &rec)
	if err != nil {
		return false, model.PurchaseOrder{}, err
	}
	if !ok {
		return false, model.PurchaseOrder{}, nil
	}
	if seq <= rec.Rev {
		return false, rec.PO, nil
	}
	rec.PO = applyPOPatch(rec.PO, patch)
	rec.Rev = seq
	if err := p.setJSON(poKey(id), rec); err != nil {
		return false, model.PurchaseOrder{}, err
	}
	return true, rec.PO, nil
}

func (p *PebbleStore) PORevision(id string) int64 {
	var rec PORecord
	if ok, err := p.getJSON(poKey(id), &rec); err != nil || !ok {
		return 0
	}
	return rec.Rev
}

func (p *PebbleStore) ListAlerts(limit int) ([]model.Alert, error) {
	var as []model.Alert
	err := p.rangePrefix(prefixAlert, func(_ string, v []byte) error {
		var rec AlertRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		as = append(as, rec.Alert)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	sortAlertsDesc(as)
	if limit > 0 && limit < len(as) {
		as = as[:limit]
	}
	return as, nil
}

func (p *PebbleStore) GetAlert(id string) (model.Alert, bool, error) {
	var rec AlertRecord
	ok, err := p.getJSON(alertKey(id), &rec)
	if err != nil {
		return model.Alert{}, false, err
	}
	return rec.Alert, ok, nil
}

func (p *PebbleStore) PutAlert(a model.Alert) error {
	return p.setJSON(alertKey(a.ID), AlertRecord{Alert: a})
}

func (p *PebbleStore) MarkAlertRead(id string, seq int64) (bool, error) {
	var rec AlertRecord
	ok, err := p.getJSON(alertKey(id), &rec)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if seq <= rec.Rev {
		return false, nil
	}
	rec.Alert.IsRead = true
	rec.Rev = seq
	if err := p.setJSON(alertKey(id), rec); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) AlertRevision(id string) int64 {
	var rec AlertRecord
	if ok, err := p.getJSON(alertKey(id), &rec); err != nil || !ok {
		return 0
	}
	return rec.Rev
}

func (p *PebbleStore) PutIoTEvent(e model.IoTEvent) error {
	return p.setJSON(eventKey(e.ID), e)
}

func (p *PebbleStore) ListIoTEvents(f EventFilter, limit int) ([]model.IoTEvent, error) {
	var events []model.IoTEvent
	err := p.rangePrefix(prefixEvent, func(_ string, v []byte) error {
		var e model.IoTEvent
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		if matchEvent(e, f) {
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	sortEventsDesc(events)
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (p *PebbleStore) Export() (Dump, error) {
	d := Dump{POs: make(map[string]PORecord), Alerts: make(map[string]AlertRecord)}
	if err := p.rangePrefix(prefixPO, func(id string, v []byte) error {
		var rec PORecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		d.POs[id] = rec
		return nil
	}); err != nil {
		return Dump{}, err
	}
	if err := p.rangePrefix(prefixAlert, func(id string, v []byte) error {
		var rec AlertRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		d.Alerts[id] = rec
		return nil
	}); err != nil {
		return Dump{}, err
	}
	return d, nil
}

// LoadAll replaces po and alert records with the snapshot. Event records
// are untouched.
func (p *PebbleStore) LoadAll(d Dump) {
	for _, prefix := range [][]byte{prefixPO, prefixAlert} {
		var toDelete [][]byte
		_ = p.rangePrefix(prefix, func(id string, _ []byte) error {
			toDelete = append(toDelete, append(append([]byte(nil), prefix...), id...))
			return nil
		})
		if len(toDelete) > 0 {
			wb := p.db.NewBatch()
			for _, k := range toDelete {
				_ = wb.Delete(k, nil)
			}
			_ = wb.Commit(pebble.NoSync)
			_ = wb.Close()
		}
	}
	wb := p.db.NewBatch()
	for id, rec := range d.POs {
		if b, err := json.Marshal(rec); err == nil {
			_ = wb.Set(poKey(id), b, nil)
		}
	}
	for id, rec := range d.Alerts {
		if b, err := json.Marshal(rec); err == nil {
			_ = wb.Set(alertKey(id), b, nil)
		}
	}
	_ = wb.Commit(pebble.NoSync)
	_ = wb.Close()
}
