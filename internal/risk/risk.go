package risk

import (
	"github.com/quenishay-arch/traceloom2/internal/model"
)

// Level is the canonical bucketing of a 0-100 risk score. Boundaries are
// inclusive-low: 30 is medium, 55 is high, 80 is critical. Stored
// risk_level values that disagree with this mapping are a data-quality
// signal, not a second truth.
func Level(score float64) model.RiskLevel {
	switch {
	case score >= 80:
		return model.RiskCritical
	case score >= 55:
		return model.RiskHigh
	case score >= 30:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// TrustScore is the complement of the clamped risk score.
func TrustScore(po model.PurchaseOrder) float64 {
	return 100 - clamp(po.RiskScore, 0, 100)
}

// HasDelayRisk reports whether the order carries any estimated delay.
func HasDelayRisk(po model.PurchaseOrder) bool {
	return po.EstimatedDelayDays > 0
}

// LevelMismatch reports whether the stored risk_level disagrees with the
// canonical bucketing of the stored score.
func LevelMismatch(po model.PurchaseOrder) bool {
	return po.RiskLevel != Level(po.RiskScore)
}

// AtRisk reports whether the order buckets high or critical.
func AtRisk(po model.PurchaseOrder) bool {
	l := Level(po.RiskScore)
	return l == model.RiskHigh || l == model.RiskCritical
}

// FleetStats are simple reductions over the current PO set.
type FleetStats struct {
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Delayed   int     `json:"delayed"`
	DelayRate float64 `json:"delay_rate"`
	AvgTrust  float64 `json:"avg_trust"`
	// Mismatches counts orders whose stored risk_level disagrees with the
	// recomputed bucket.
	Mismatches int `json:"level_mismatches"`
}

// emptyFleetTrust is the convention for an empty PO set, not a computed
// value.
const emptyFleetTrust = 95

// Fleet reduces the PO set to aggregate statistics. An empty set yields
// DelayRate 0 and AvgTrust 95 by convention.
func Fleet(pos []model.PurchaseOrder) FleetStats {
	s := FleetStats{Total: len(pos), AvgTrust: emptyFleetTrust}
	if len(pos) == 0 {
		return s
	}
	trust := 0.0
	for _, po := range pos {
		if po.Status != model.StageDelivered {
			s.Active++
		}
		if HasDelayRisk(po) {
			s.Delayed++
		}
		if LevelMismatch(po) {
			s.Mismatches++
		}
		trust += TrustScore(po)
	}
	s.DelayRate = float64(s.Delayed) / float64(s.Total)
	s.AvgTrust = trust / float64(s.Total)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
