package model

// Stage is a lifecycle stage of a purchase order. Stages are totally
// ordered by their position in Stages.
type Stage string

const (
	StageYarnSourcing Stage = "yarn_sourcing"
	StageKnitting     Stage = "knitting"
	StageDyeing       Stage = "dyeing"
	StageQACheck      Stage = "qa_check"
	StagePacking      Stage = "packing"
	StageShipping     Stage = "shipping"
	StageDelivered    Stage = "delivered"
)

var stageOrder = []Stage{
	StageYarnSourcing,
	StageKnitting,
	StageDyeing,
	StageQACheck,
	StagePacking,
	StageShipping,
	StageDelivered,
}

// Stages returns the canonical stage order. Callers must not mutate the
// returned slice.
func Stages() []Stage {
	return stageOrder
}

// RiskLevel buckets a 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// EntryStatus is the recorded state of a timeline entry.
type EntryStatus string

const (
	EntryInProgress EntryStatus = "in_progress"
	EntryCompleted  EntryStatus = "completed"
	EntryDelayed    EntryStatus = "delayed"
)

// EventStatus classifies a sensor reading.
type EventStatus string

const (
	EventNormal   EventStatus = "normal"
	EventWarning  EventStatus = "warning"
	EventCritical EventStatus = "critical"
)

// MetricType identifies what a sensor reading measures.
type MetricType string

const (
	MetricProductionRate  MetricType = "production_rate"
	MetricTemperature     MetricType = "temperature"
	MetricHumidity        MetricType = "humidity"
	MetricMachineStatus   MetricType = "machine_status"
	MetricDefectDetection MetricType = "defect_detection"
)

// Source is the emitter category of a sensor event.
type Source string

const (
	SourceFactoryMachine   Source = "factory_machine"
	SourceWarehouseSensor  Source = "warehouse_sensor"
	SourceQAScanner        Source = "qa_scanner"
	SourceLogisticsTracker Source = "logistics_tracker"
)

// AlertSeverity orders alerts for display.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType is the closed category set for alerts.
type AlertType string

const (
	AlertDelayRisk      AlertType = "delay_risk"
	AlertQualityIssue   AlertType = "quality_issue"
	AlertPortCongestion AlertType = "port_congestion"
	AlertWeatherRisk    AlertType = "weather_risk"
	AlertSupplierIssue  AlertType = "supplier_issue"
	AlertInventory      AlertType = "inventory"
)

// TimelineEntry is the recorded detail for one stage of a purchase order.
// At most one entry per stage is authoritative; when duplicates exist the
// most recently appended wins.
type TimelineEntry struct {
	Stage    Stage       `json:"stage"`
	Status   EntryStatus `json:"status"`
	Date     string      `json:"date,omitempty"`
	Location string      `json:"location,omitempty"`
	Supplier string      `json:"supplier,omitempty"`
	Insight  string      `json:"insight,omitempty"`
}

// PurchaseOrder tracks one order through the supply chain.
// RiskLevel is a stored convenience copy; risk.Level over RiskScore is the
// canonical bucketing and disagreement is a data-quality signal.
type PurchaseOrder struct {
	ID                 string          `json:"id"`
	PONumber           string          `json:"po_number"`
	Status             Stage           `json:"status"`
	RiskScore          float64         `json:"risk_score"`
	RiskLevel          RiskLevel       `json:"risk_level"`
	DelayProbability   float64         `json:"delay_probability"`
	EstimatedDelayDays float64         `json:"estimated_delay_days"`
	QAScore            *float64        `json:"qa_score,omitempty"`
	OrganicCotton      bool            `json:"organic_cotton"`
	ESGCertified       bool            `json:"esg_certified"`
	Timeline           []TimelineEntry `json:"timeline,omitempty"`
	CreatedTS          int64           `json:"created_ts"`
}

// SubjectGlobal is the live-state subject for events with no po_id.
const SubjectGlobal = "global"

// IoTEvent is one immutable sensor reading. A later event with the same ID
// is an update and replaces the earlier record. Timestamp is epoch seconds,
// monotonic per subject; delivery order is not authoritative.
type IoTEvent struct {
	ID          string      `json:"id"`
	POID        string      `json:"po_id,omitempty"`
	MetricType  MetricType  `json:"metric_type"`
	MetricValue float64     `json:"metric_value"`
	MetricUnit  string      `json:"metric_unit,omitempty"`
	Location    string      `json:"location,omitempty"`
	Source      Source      `json:"source,omitempty"`
	Status      EventStatus `json:"status"`
	Timestamp   int64       `json:"timestamp"`
}

// Subject returns the live-state subject this event belongs to: its po_id,
// or SubjectGlobal for ambient events.
func (e IoTEvent) Subject() string {
	if e.POID == "" {
		return SubjectGlobal
	}
	return e.POID
}

// Alert is a raised exception. Only IsRead mutates, false to true.
type Alert struct {
	ID              string        `json:"id"`
	Type            AlertType     `json:"type"`
	Severity        AlertSeverity `json:"severity"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	SuggestedAction string        `json:"suggested_action,omitempty"`
	AffectedPOs     []string      `json:"affected_pos,omitempty"`
	IsRead          bool          `json:"is_read"`
	CreatedTS       int64         `json:"created_ts"`
}
