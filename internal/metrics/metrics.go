package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Sensor stream.
	EventsApplied prometheus.Counter
	EventsDeduped prometheus.Counter
	EventsDropped prometheus.Counter
	FeedDepth     prometheus.Gauge

	// Purchase order mutations.
	POUpdates          prometheus.Counter
	AlertsAcknowledged prometheus.Counter
	RiskLevelMismatch  prometheus.Counter
	JournalAppended    prometheus.Counter

	// Recovery.
	RestoreApplied     prometheus.Counter
	RestoreSkipped     prometheus.Counter
	LastSnapshotAgeSec prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_events_applied_total"})
	deduped := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_events_deduped_total"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_events_dropped_total"})
	feedDepth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "tracked_feed_depth"})

	poUpdates := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_po_updates_total"})
	acked := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_alerts_acknowledged_total"})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_risk_level_mismatch_total"})
	journalAppended := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_journal_appended_total"})

	restoreApplied := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_restore_applied_total"})
	restoreSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "tracked_restore_skipped_total"})
	snapAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "tracked_last_snapshot_age_seconds"})

	r.MustRegister(applied, deduped, dropped, feedDepth, poUpdates, acked, mismatch,
		journalAppended, restoreApplied, restoreSkipped, snapAge)
	return &Registry{
		reg:                r,
		EventsApplied:      applied,
		EventsDeduped:      deduped,
		EventsDropped:      dropped,
		FeedDepth:          feedDepth,
		POUpdates:          poUpdates,
		AlertsAcknowledged: acked,
		RiskLevelMismatch:  mismatch,
		JournalAppended:    journalAppended,
		RestoreApplied:     restoreApplied,
		RestoreSkipped:     restoreSkipped,
		LastSnapshotAgeSec: snapAge,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
