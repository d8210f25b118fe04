package main

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/store"
)

// seedSampleData loads a small fleet of purchase orders and alerts for dev
// runs. Ids are fresh on every seed; po_numbers are stable.
func seedSampleData(st store.Store, logger *zap.Logger) {
	now := time.Now().UTC()
	day := func(n int) string { return now.AddDate(0, 0, -n).Format("2006-01-02") }
	qa := 96.5

	pos := []model.PurchaseOrder{
		{
			ID: uuid.NewString(), PONumber: "PO-2024-1001", Status: model.StageDyeing,
			RiskScore: 22, DelayProbability: 12, OrganicCotton: true, ESGCertified: true,
			CreatedTS: now.AddDate(0, 0, -14).Unix(),
			Timeline: []model.TimelineEntry{
				{Stage: model.StageYarnSourcing, Status: model.EntryCompleted, Date: day(14), Location: "Coimbatore", Supplier: "Arvind Mills"},
				{Stage: model.StageKnitting, Status: model.EntryCompleted, Date: day(9), Location: "Tiruppur", Supplier: "KPR Knits"},
				{Stage: model.StageDyeing, Status: model.EntryInProgress, Date: day(2), Location: "Tiruppur"},
			},
		},
		{
			ID: uuid.NewString(), PONumber: "PO-2024-1002", Status: model.StageQACheck,
			RiskScore: 61, DelayProbability: 55, EstimatedDelayDays: 3, QAScore: &qa,
			CreatedTS: now.AddDate(0, 0, -21).Unix(),
			Timeline: []model.TimelineEntry{
				{Stage: model.StageYarnSourcing, Status: model.EntryCompleted, Date: day(21), Location: "Gujarat"},
				{Stage: model.StageKnitting, Status: model.EntryCompleted, Date: day(15), Location: "Ludhiana"},
				{Stage: model.StageDyeing, Status: model.EntryDelayed, Date: day(8), Location: "Ludhiana"},
				{Stage: model.StageQACheck, Status: model.EntryInProgress, Date: day(1)},
			},
		},
		{
			ID: uuid.NewString(), PONumber: "PO-2024-1003", Status: model.StageShipping,
			RiskScore: 85, DelayProbability: 78, EstimatedDelayDays: 6,
			CreatedTS: now.AddDate(0, 0, -30).Unix(),
			Timeline: []model.TimelineEntry{
				{Stage: model.StageYarnSourcing, Status: model.EntryCompleted, Date: day(30)},
				{Stage: model.StageKnitting, Status: model.EntryCompleted, Date: day(24)},
				{Stage: model.StageDyeing, Status: model.EntryCompleted, Date: day(16)},
				{Stage: model.StageQACheck, Status: model.EntryCompleted, Date: day(10)},
				{Stage: model.StagePacking, Status: model.EntryCompleted, Date: day(6)},
				{Stage: model.StageShipping, Status: model.EntryDelayed, Date: day(4), Location: "Nhava Sheva"},
			},
		},
	}
	for _, po := range pos {
		if err := st.PutPurchaseOrder(po); err != nil {
			logger.Warn("seed po failed", zap.String("po_number", po.PONumber), zap.Error(err))
		}
	}

	alerts := []model.Alert{
		{
			ID: uuid.NewString(), Type: model.AlertDelayRisk, Severity: model.SeverityCritical,
			Title:           "Shipment stalled at port",
			Description:     "PO-2024-1003 has been held at Nhava Sheva for 4 days.",
			SuggestedAction: "Contact the freight forwarder and evaluate air freight for the priority units.",
			AffectedPOs:     []string{"PO-2024-1003"},
			CreatedTS:       now.Add(-6 * time.Hour).Unix(),
		},
		{
			ID: uuid.NewString(), Type: model.AlertQualityIssue, Severity: model.SeverityWarning,
			Title:       "Dye lot variance above tolerance",
			Description: "Color delta on the latest dye lot for PO-2024-1002 exceeds the approved tolerance.",
			AffectedPOs: []string{"PO-2024-1002"},
			CreatedTS:   now.Add(-26 * time.Hour).Unix(),
		},
	}
	for _, a := range alerts {
		if err := st.PutAlert(a); err != nil {
			logger.Warn("seed alert failed", zap.String("title", a.Title), zap.Error(err))
		}
	}
	logger.Info("sample data seeded", zap.Int("pos", len(pos)), zap.Int("alerts", len(alerts)))
}
