package optimizer

import (
	"math"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

const fallbackGridStep = 0.01

// GridStep returns the geometric grid spacing: wide enough that round-trip
// maker fees take at most (1 - minProfitShare) of each step, and at least half
// of the window volatility.
func GridStep(windowVolatility, makerFee, minProfitShare float64) float64 {
	dragLimit := 1 - minProfitShare
	if dragLimit <= 0 {
		return fallbackGridStep
	}
	feeStep := 2 * makerFee / dragLimit
	volStep := 0.5 * windowVolatility
	return math.Max(feeStep, volStep)
}

// GridLines returns ceil(ln(upper/lower) / ln(1+step)), or 0 when the range or
// step is degenerate.
func GridLines(lower, upper, step float64) int {
	if step <= 0 || lower <= 0 || upper <= 0 || lower >= upper {
		return 0
	}
	return int(math.Ceil(math.Log(upper/lower) / math.Log(1+step)))
}

// MinimumCapital is the margin needed to place one minimum order on every line.
func MinimumCapital(lines int, minOrderSize, leverage float64) float64 {
	if leverage <= 0 {
		return 0
	}
	return float64(lines) * minOrderSize / leverage
}

// PlanGrid lays a geometric grid over the cone. MinCapital is filled in once
// the leverage is known.
func PlanGrid(cone models.VolatilityCone, stats models.MarketStatistics, fees models.FeeStructure, opts GridOptions) models.GridPlan {
	windowVol := stats.Volatility * math.Sqrt(opts.StepWindow)
	step := GridStep(windowVol, fees.MakerFee, opts.MinProfitShare)
	return models.GridPlan{
		Lower: cone.Lower,
		Upper: cone.Upper,
		Step:  step,
		Lines: GridLines(cone.Lower, cone.Upper, step),
	}
}
