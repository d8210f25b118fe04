// Package insight produces short narrative summaries for a purchase order at
// a given stage. Callers store the returned text verbatim and never parse it.
package insight

import (
	"context"
	"fmt"

	"github.com/quenishay-arch/traceloom2/internal/model"
	"github.com/quenishay-arch/traceloom2/internal/risk"
)

type Generator interface {
	Generate(ctx context.Context, po model.PurchaseOrder, stage model.Stage) (string, error)
}

// Template is a deterministic generator for dev and tests.
type Template struct{}

func NewTemplate() *Template { return &Template{} }

func (Template) Generate(_ context.Context, po model.PurchaseOrder, stage model.Stage) (string, error) {
	level := risk.Level(po.RiskScore)
	switch {
	case po.EstimatedDelayDays > 0:
		return fmt.Sprintf("%s is in %s with %s risk; estimated delay of %.0f day(s). Review supplier commitments before the next milestone.",
			po.PONumber, stage, level, po.EstimatedDelayDays), nil
	case level == model.RiskHigh || level == model.RiskCritical:
		return fmt.Sprintf("%s is in %s with %s risk (score %.0f). No delay projected yet, but the score warrants closer monitoring.",
			po.PONumber, stage, level, po.RiskScore), nil
	default:
		return fmt.Sprintf("%s is progressing through %s on schedule with %s risk.",
			po.PONumber, stage, level), nil
	}
}
