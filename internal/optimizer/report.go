package optimizer

import (
	"fmt"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// Rejection is the terminal outcome of a stage that stopped the pipeline.
type Rejection struct {
	Status      models.Status
	Detail      string
	Diagnostics map[string]float64
}

func rejectf(status models.Status, diagnostics map[string]float64, format string, args ...interface{}) *Rejection {
	return &Rejection{
		Status:      status,
		Detail:      fmt.Sprintf(format, args...),
		Diagnostics: diagnostics,
	}
}

var stopReasons = map[models.Status]string{
	models.StatusStopInvalidRiskDistance: "stop-loss lands on the wrong side of entry; current volatility and noise make the instrument untradeable in this direction",
	models.StatusStopUnsafeLeverage:      "fees and maintenance margin consume the risk distance; liquidation cannot be kept beyond the stop-loss",
	models.StatusStopNegativeEdge:        "no statistical edge; the Kelly fraction is not positive for this reward/risk and win probability",
}

// StopReason returns the fixed explanation for a STOP status.
func StopReason(status models.Status) string {
	return stopReasons[status]
}

// report accumulates stage outputs as the pipeline advances.
type report struct {
	set models.GridBotParameterSet
}

func newReport(entry float64) *report {
	return &report{set: models.GridBotParameterSet{Stage: models.StageInit, EntryPrice: entry}}
}

func (r *report) advance(stage models.Stage) {
	r.set.Stage = stage
}

func (r *report) stop(rej *Rejection) models.GridBotParameterSet {
	r.set.Status = rej.Status
	r.set.Reason = fmt.Sprintf("%s: %s", StopReason(rej.Status), rej.Detail)
	r.set.Diagnostics = rej.Diagnostics
	return r.set
}

func (r *report) done(grid models.GridPlan) models.GridBotParameterSet {
	r.set.Stage = models.StageDone
	r.set.Status = models.StatusOK
	r.set.Grid = &grid
	return r.set
}
