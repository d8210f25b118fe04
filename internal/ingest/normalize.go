package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

// RawReading is what devices actually publish: no id, no status, metric
// value possibly absent.
type RawReading struct {
	DeviceID    string   `json:"device_id"`
	POID        string   `json:"po_id"`
	MetricType  string   `json:"metric_type"`
	MetricValue *float64 `json:"metric_value"`
	MetricUnit  string   `json:"metric_unit"`
	Location    string   `json:"location"`
	Source      string   `json:"source"`
	Timestamp   int64    `json:"timestamp"`
}

// Threshold gives the warning bound for one metric; readings beyond
// 120% of it are critical.
type Threshold struct {
	Warn float64
}

// DefaultThresholds cover the metric types devices currently report.
var DefaultThresholds = map[model.MetricType]Threshold{
	model.MetricProductionRate:  {Warn: 100},
	model.MetricTemperature:     {Warn: 35},
	model.MetricHumidity:        {Warn: 75},
	model.MetricDefectDetection: {Warn: 4},
}

// Normalize validates a raw reading and produces a canonical event with a
// caller-assigned id and a threshold-derived status. Readings missing a
// metric type or value return ErrDrop.
func Normalize(raw RawReading, id string, thresholds map[model.MetricType]Threshold) (model.IoTEvent, error) {
	if raw.MetricType == "" || raw.MetricValue == nil {
		return model.IoTEvent{}, fmt.Errorf("%w: missing metric_type or metric_value", ErrDrop)
	}
	mt := model.MetricType(raw.MetricType)
	status := model.EventNormal
	if th, ok := thresholds[mt]; ok {
		switch {
		case *raw.MetricValue > th.Warn*1.2:
			status = model.EventCritical
		case *raw.MetricValue > th.Warn:
			status = model.EventWarning
		}
	}
	return model.IoTEvent{
		ID:          id,
		POID:        raw.POID,
		MetricType:  mt,
		MetricValue: *raw.MetricValue,
		MetricUnit:  raw.MetricUnit,
		Location:    raw.Location,
		Source:      model.Source(raw.Source),
		Status:      status,
		Timestamp:   raw.Timestamp,
	}, nil
}

// DecodeRaw parses one raw device message.
func DecodeRaw(b []byte) (RawReading, error) {
	var raw RawReading
	if err := json.Unmarshal(b, &raw); err != nil {
		return RawReading{}, fmt.Errorf("%w: %v", ErrDrop, err)
	}
	return raw, nil
}
