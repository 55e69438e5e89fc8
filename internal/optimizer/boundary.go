package optimizer

import (
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// DeriveBoundary widens the cone edge on the adverse side by k*ATR to get the
// stop-loss and takes the favourable edge as take-profit.
func DeriveBoundary(cone models.VolatilityCone, atr, k, entry float64, side models.Side) (models.RiskBoundary, *Rejection) {
	buffer := k * atr
	b := models.RiskBoundary{Side: side}

	if side == models.Short {
		b.StopLoss = cone.Upper + buffer
		b.TakeProfit = cone.Lower
	} else {
		b.StopLoss = cone.Lower - buffer
		b.TakeProfit = cone.Upper
	}

	diagnostics := map[string]float64{
		"entry_price": entry,
		"stop_loss":   b.StopLoss,
		"take_profit": b.TakeProfit,
		"cone_lower":  cone.Lower,
		"cone_upper":  cone.Upper,
		"atr_buffer":  buffer,
	}

	switch {
	case side == models.Short && b.StopLoss <= entry:
		return b, rejectf(models.StatusStopInvalidRiskDistance, diagnostics,
			"short stop-loss %.8g is not above entry %.8g", b.StopLoss, entry)
	case side != models.Short && b.StopLoss >= entry:
		return b, rejectf(models.StatusStopInvalidRiskDistance, diagnostics,
			"long stop-loss %.8g is not below entry %.8g", b.StopLoss, entry)
	case side != models.Short && b.StopLoss <= 0:
		return b, rejectf(models.StatusStopInvalidRiskDistance, diagnostics,
			"noise buffer %.8g pushes the long stop-loss to %.8g, at or below zero", buffer, b.StopLoss)
	}
	return b, nil
}
