package alerts

import (
	"sort"

	"github.com/quenishay-arch/traceloom2/internal/model"
)

// Class is the display semantics derived from an alert's declared type and
// severity. Classification is total: unknown values map to defaults, never
// fail.
type Class struct {
	Category model.AlertType     `json:"category"`
	Severity model.AlertSeverity `json:"severity"`
	Rank     int                 `json:"rank"`
}

var categorySet = map[model.AlertType]struct{}{
	model.AlertDelayRisk:      {},
	model.AlertQualityIssue:   {},
	model.AlertPortCongestion: {},
	model.AlertWeatherRisk:    {},
	model.AlertSupplierIssue:  {},
	model.AlertInventory:      {},
}

var severityRank = map[model.AlertSeverity]int{
	model.SeverityInfo:     0,
	model.SeverityWarning:  1,
	model.SeverityCritical: 2,
}

// Category maps a declared type into the closed category set. Unknown
// types fall back to quality_issue, the generic-warning bucket.
func Category(t model.AlertType) model.AlertType {
	if _, ok := categorySet[t]; ok {
		return t
	}
	return model.AlertQualityIssue
}

// Severity normalizes a declared severity; unknown values read as info.
func Severity(s model.AlertSeverity) model.AlertSeverity {
	if _, ok := severityRank[s]; ok {
		return s
	}
	return model.SeverityInfo
}

// Rank orders severities for display, higher first. Unknown severities
// rank as info.
func Rank(s model.AlertSeverity) int {
	return severityRank[Severity(s)]
}

// Classify derives the display class for one alert.
func Classify(a model.Alert) Class {
	sev := Severity(a.Severity)
	return Class{
		Category: Category(a.Type),
		Severity: sev,
		Rank:     severityRank[sev],
	}
}

// SortForDisplay orders alerts critical-first, ties broken by most recent.
// Stored order is never display order.
func SortForDisplay(as []model.Alert) {
	sort.SliceStable(as, func(i, j int) bool {
		ri, rj := Rank(as[i].Severity), Rank(as[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return as[i].CreatedTS > as[j].CreatedTS
	})
}
