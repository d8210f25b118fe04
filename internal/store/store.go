// Package store is the persistence boundary for purchase orders, alerts
// and sensor events. Mutations are seq-guarded the same way on every
// backend: a patch carrying a sequence number at or below the stored
// revision is skipped, which makes journal replay idempotent.
package store

import (
	"sort"
	"sync"

	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/risk"
)

// SortOrder selects purchase-order listing order. Unknown values read as
// SortCreatedDesc.
type SortOrder string

const (
	SortCreatedDesc SortOrder = "-created_date"
	SortCreatedAsc  SortOrder = "created_date"
	SortRiskDesc    SortOrder = "-risk_score"
)

// EventFilter narrows event listings. Zero fields match everything.
type EventFilter struct {
	POID       string
	MetricType model.MetricType
}

// POPatch is a partial purchase-order update. Nil fields are untouched.
// When RiskScore changes, the stored risk_level is recomputed from the
// canonical bucketing; callers cannot write a disagreeing level.
type POPatch struct {
	Status             *model.Stage         `json:"status,omitempty"`
	AppendEntry        *model.TimelineEntry `json:"append_entry,omitempty"`
	RiskScore          *float64             `json:"risk_score,omitempty"`
	DelayProbability   *float64             `json:"delay_probability,omitempty"`
	EstimatedDelayDays *float64             `json:"estimated_delay_days,omitempty"`
	QAScore            *float64             `json:"qa_score,omitempty"`
	InsightStage       model.Stage          `json:"insight_stage,omitempty"`
	InsightText        *string              `json:"insight,omitempty"`
}

// PORecord wraps a stored order with its mutation revision.
type PORecord struct {
	PO  model.PurchaseOrder `json:"po"`
	Rev int64               `json:"rev"`
}

// AlertRecord wraps a stored alert with its mutation revision.
type AlertRecord struct {
	Alert model.Alert `json:"alert"`
	Rev   int64       `json:"rev"`
}

// Dump is the snapshot form of the durable state. Sensor events are not
// dumped; live state is rebuilt from the stream.
type Dump struct {
	POs    map[string]PORecord    `json:"pos"`
	Alerts map[string]AlertRecord `json:"alerts"`
}

// Store abstracts the persistence backend. Lookups that miss return
// (zero, false, nil), never an error.
type Store interface {
	ListPurchaseOrders(order SortOrder, limit int) ([]model.PurchaseOrder, error)
	GetPurchaseOrder(id string) (model.PurchaseOrder, bool, error)
	FindPurchaseOrderByNumber(num string) (model.PurchaseOrder, bool, error)
	PutPurchaseOrder(po model.PurchaseOrder) error
	UpdatePurchaseOrder(id string, patch POPatch, seq int64) (applied bool, po model.PurchaseOrder, err error)
	PORevision(id string) int64

	ListAlerts(limit int) ([]model.Alert, error)
	GetAlert(id string) (model.Alert, bool, error)
	PutAlert(a model.Alert) error
	MarkAlertRead(id string, seq int64) (applied bool, err error)
	AlertRevision(id string) int64

	PutIoTEvent(e model.IoTEvent) error
	ListIoTEvents(f EventFilter, limit int) ([]model.IoTEvent, error)

	Export() (Dump, error)
	LoadAll(d Dump)
	Close() error
}

// applyPOPatch is the shared patch semantics for every backend.
func applyPOPatch(po model.PurchaseOrder, patch POPatch) model.PurchaseOrder {
	if patch.Status != nil {
		po.Status = *patch.Status
	}
	if patch.AppendEntry != nil {
		e := *patch.AppendEntry
		// The appended entry supersedes any earlier entry for its stage.
		kept := po.Timeline[:0:0]
		for _, old := range po.Timeline {
			if old.Stage != e.Stage {
				kept = append(kept, old)
			}
		}
		po.Timeline = append(kept, e)
	}
	if patch.RiskScore != nil {
		po.RiskScore = *patch.RiskScore
		po.RiskLevel = risk.Level(po.RiskScore)
	}
	if patch.DelayProbability != nil {
		po.DelayProbability = *patch.DelayProbability
	}
	if patch.EstimatedDelayDays != nil {
		po.EstimatedDelayDays = *patch.EstimatedDelayDays
	}
	if patch.QAScore != nil {
		v := *patch.QAScore
		po.QAScore = &v
	}
	if patch.InsightText != nil && patch.InsightStage != "" {
		for i := range po.Timeline {
			if po.Timeline[i].Stage == patch.InsightStage {
				po.Timeline[i].Insight = *patch.InsightText
			}
		}
	}
	return po
}

func sortPOs(pos []model.PurchaseOrder, order SortOrder) {
	switch order {
	case SortCreatedAsc:
		sort.SliceStable(pos, func(i, j int) bool { return pos[i].CreatedTS < pos[j].CreatedTS })
	case SortRiskDesc:
		sort.SliceStable(pos, func(i, j int) bool { return pos[i].RiskScore > pos[j].RiskScore })
	default:
		sort.SliceStable(pos, func(i, j int) bool { return pos[i].CreatedTS > pos[j].CreatedTS })
	}
}

func sortAlertsDesc(as []model.Alert) {
	sort.SliceStable(as, func(i, j int) bool { return as[i].CreatedTS > as[j].CreatedTS })
}

func sortEventsDesc(events []model.IoTEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp > events[j].Timestamp })
}

func matchEvent(e model.IoTEvent, f EventFilter) bool {
	if f.POID != "" && e.POID != f.POID {
		return false
	}
	if f.MetricType != "" && e.MetricType != f.MetricType {
		return false
	}
	return true
}

// InMemoryStore is a thread-safe map-backed Store.
type InMemoryStore struct {
	mu     sync.RWMutex
	pos    map[string]PORecord
	alerts map[string]AlertRecord
	events map[string]model.IoTEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pos:    make(map[string]PORecord),
		alerts: make(map[string]AlertRecord),
		events: make(map[string]model.IoTEvent),
	}
}

func (s *InMemoryStore) ListPurchaseOrders(order SortOrder, limit int) ([]model.PurchaseOrder, error) {
	s.mu.RLock()
	pos := make([]model.PurchaseOrder, 0, len(s.pos))
	for _, rec := range s.pos {
		pos = append(pos, rec.PO)
	}
	s.mu.RUnlock()
	sortPOs(pos, order)
	if limit > 0 && limit < len(pos) {
		pos = pos[:limit]
	}
	return pos, nil
}

func (s *InMemoryStore) GetPurchaseOrder(id string) (model.PurchaseOrder, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.pos[id]
	return rec.PO, ok, nil
}

func (s *InMemoryStore) FindPurchaseOrderByNumber(num string) (model.PurchaseOrder, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.pos {
		if rec.PO.PONumber == num {
			return rec.PO, true, nil
		}
	}
	return model.PurchaseOrder{}, false, nil
}

func (s *InMemoryStore) PutPurchaseOrder(po model.PurchaseOrder) error {
	if po.Status == "" {
		po.Status = model.Stages()[0]
	}
	po.RiskLevel = risk.Level(po.RiskScore)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos[po.ID] = PORecord{PO: po}
	return nil
}

func (s *InMemoryStore) UpdatePurchaseOrder(id string, patch POPatch, seq int64) (bool, model.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.pos[id]
	if !ok {
		return false, model.PurchaseOrder{}, nil
	}
	if seq <= rec.Rev {
		return false, rec.PO, nil
	}
	rec.PO = applyPOPatch(rec.PO, patch)
	rec.Rev = seq
	s.pos[id] = rec
	return true, rec.PO, nil
}

func (s *InMemoryStore) PORevision(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos[id].Rev
}

func (s *InMemoryStore) ListAlerts(limit int) ([]model.Alert, error) {
	s.mu.RLock()
	as := make([]model.Alert, 0, len(s.alerts))
	for _, rec := range s.alerts {
		as = append(as, rec.Alert)
	}
	s.mu.RUnlock()
	sortAlertsDesc(as)
	if limit > 0 && limit < len(as) {
		as = as[:limit]
	}
	return as, nil
}

func (s *InMemoryStore) GetAlert(id string) (model.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.alerts[id]
	return rec.Alert, ok, nil
}

func (s *InMemoryStore) PutAlert(a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = AlertRecord{Alert: a}
	return nil
}

func (s *InMemoryStore) MarkAlertRead(id string, seq int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.alerts[id]
	if !ok {
		return false, nil
	}
	if seq <= rec.Rev {
		return false, nil
	}
	// is_read never reverts
	rec.Alert.IsRead = true
	rec.Rev = seq
	s.alerts[id] = rec
	return true, nil
}

func (s *InMemoryStore) AlertRevision(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts[id].Rev
}

func (s *InMemoryStore) PutIoTEvent(e model.IoTEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
	return nil
}

func (s *InMemoryStore) ListIoTEvents(f EventFilter, limit int) ([]model.IoTEvent, error) {
	s.mu.RLock()
	events := make([]model.IoTEvent, 0, len(s.events))
	for _, e := range s.events {
		if matchEvent(e, f) {
			events = append(events, e)
		}
	}
	s.mu.RUnlock()
	sortEventsDesc(events)
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (s *InMemoryStore) Export() (Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := Dump{
		POs:    make(map[string]PORecord, len(s.pos)),
		Alerts: make(map[string]AlertRecord, len(s.alerts)),
	}
	for k, v := range s.pos {
		d.POs[k] = v
	}
	for k, v := range s.alerts {
		d.Alerts[k] = v
	}
	return d, nil
}

// LoadAll replaces the durable contents with the provided snapshot.
func (s *InMemoryStore) LoadAll(d Dump) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = make(map[string]PORecord, len(d.POs))
	for k, v := range d.POs {
		s.pos[k] = v
	}
	s.alerts = make(map[string]AlertRecord, len(d.Alerts))
	for k, v := range d.Alerts {
		s.alerts[k] = v
	}
}

func (s *InMemoryStore) Close() error { return nil }
