package optimizer

import (
	"math"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// EdgeInput carries the edge gate inputs.
type EdgeInput struct {
	Entry           float64
	Boundary        models.RiskBoundary
	WinProbability  float64
	FractionalKelly float64
	// RoundTripFee is subtracted from the reward leg and added to the risk
	// leg when FeeAdjusted is set.
	RoundTripFee float64
	FeeAdjusted  bool
}

// KellyFraction returns p - (1-p)/rr.
func KellyFraction(p, rr float64) float64 {
	return p - (1-p)/rr
}

// AssessEdge applies the Kelly criterion to the boundary's reward/risk ratio.
func AssessEdge(in EdgeInput) (models.KellyAssessment, *Rejection) {
	// Reward is signed: a take-profit on the losing side of entry has no reward leg.
	reward := (in.Boundary.TakeProfit - in.Entry) / in.Entry
	if in.Boundary.Side == models.Short {
		reward = -reward
	}
	risk := math.Abs(in.Entry-in.Boundary.StopLoss) / in.Entry
	if in.FeeAdjusted {
		reward -= in.RoundTripFee
		risk += in.RoundTripFee
	}

	k := models.KellyAssessment{WinProbability: in.WinProbability}
	diagnostics := map[string]float64{
		"win_probability": in.WinProbability,
		"reward_fraction": reward,
		"risk_fraction":   risk,
	}

	if risk <= 0 || reward <= 0 {
		return k, rejectf(models.StatusStopNegativeEdge, diagnostics,
			"reward leg %.6f against risk leg %.6f leaves no edge", reward, risk)
	}

	k.RewardToRisk = reward / risk
	k.KellyFraction = KellyFraction(in.WinProbability, k.RewardToRisk)
	diagnostics["reward_to_risk"] = k.RewardToRisk
	diagnostics["kelly_fraction"] = k.KellyFraction

	if k.KellyFraction <= 0 {
		return k, rejectf(models.StatusStopNegativeEdge, diagnostics,
			"kelly fraction %.6f at win probability %.4f and reward/risk %.4f",
			k.KellyFraction, in.WinProbability, k.RewardToRisk)
	}

	k.SizingFraction = k.KellyFraction * in.FractionalKelly
	return k, nil
}
