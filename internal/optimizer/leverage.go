package optimizer

import (
	"math"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

const (
	defaultFundingIntervalHours = 8.0
	separationTolerance         = 1e-9
)

// LeverageInput carries everything the leverage stage needs.
type LeverageInput struct {
	Entry                 float64
	StopLoss              float64
	Side                  models.Side
	Fees                  models.FeeStructure
	Horizon               float64 // years
	MaintenanceMarginRate float64
	SafetyEpsilon         float64
	LeverageCap           float64
	LeverageStep          float64
	AccountSize           float64
	FixedNotional         float64
	// MinimumNotional sizes the position when neither AccountSize nor
	// FixedNotional is set.
	MinimumNotional float64
}

// RoundTripFeeFraction is the taker fee paid on open and close plus the
// funding expected over the horizon, as a fraction of notional.
func RoundTripFeeFraction(fees models.FeeStructure, horizon float64) float64 {
	interval := fees.FundingIntervalHours
	if interval <= 0 {
		interval = defaultFundingIntervalHours
	}
	periods := horizon * models.DaysPerYear * 24 / interval
	return 2*fees.TakerFee + math.Abs(fees.FundingRate)*periods
}

// LiquidationDistance is the isolated-margin liquidation distance, as a
// fraction of entry, for leverage l. It is the forward form of the solve in
// SolveLeverage: at l = MaxLeverage the distance equals risk distance plus
// the safety epsilon.
func LiquidationDistance(l, maintenanceMarginRate, roundTripFee float64) float64 {
	return 1/l + maintenanceMarginRate + roundTripFee
}

// LiquidationPrice converts a liquidation distance into a price. A long whose
// distance reaches 100% cannot be liquidated and reports 0.
func LiquidationPrice(entry, distance float64, side models.Side) float64 {
	if side == models.Short {
		return entry * (1 + distance)
	}
	return math.Max(0, entry*(1-distance))
}

// SolveLeverage inverse-solves the maximum leverage whose liquidation sits
// beyond the stop-loss by at least SafetyEpsilon, then sizes the position.
func SolveLeverage(in LeverageInput) (models.LeverageSolution, *Rejection) {
	rd := math.Abs(in.Entry-in.StopLoss) / in.Entry
	fee := RoundTripFeeFraction(in.Fees, in.Horizon)
	budget := rd - in.MaintenanceMarginRate - fee
	denominator := budget + in.SafetyEpsilon

	sol := models.LeverageSolution{
		RiskDistanceFraction: rd,
		RoundTripFeeFraction: fee,
	}
	diagnostics := map[string]float64{
		"risk_distance_fraction":  rd,
		"maintenance_margin_rate": in.MaintenanceMarginRate,
		"round_trip_fee_fraction": fee,
		"safety_epsilon":          in.SafetyEpsilon,
		"solve_denominator":       denominator,
	}

	// budget <= 0 covers denominator <= 0 for any epsilon >= 0.
	if budget <= 0 {
		return sol, rejectf(models.StatusStopUnsafeLeverage, diagnostics,
			"risk distance %.6f does not exceed maintenance margin %.6f plus round-trip fees %.6f",
			rd, in.MaintenanceMarginRate, fee)
	}

	sol.MaxLeverage = 1 / denominator
	lev := math.Max(1, sol.MaxLeverage)
	if in.LeverageCap > 0 {
		lev = math.Min(lev, in.LeverageCap)
	}
	if in.LeverageStep > 0 {
		lev = math.Max(1, math.Floor(lev/in.LeverageStep)*in.LeverageStep)
	}
	sol.Leverage = lev
	diagnostics["max_leverage"] = sol.MaxLeverage
	diagnostics["leverage"] = lev

	switch {
	case in.FixedNotional > 0:
		sol.Notional = in.FixedNotional
		sol.Margin = sol.Notional / lev
	case in.AccountSize > 0:
		sol.Margin = in.AccountSize
		sol.Notional = in.AccountSize * lev
	default:
		sol.Notional = in.MinimumNotional
		sol.Margin = sol.Notional / lev
		sol.MinimumCapital = true
	}

	sol.LiquidationDistanceFraction = LiquidationDistance(lev, in.MaintenanceMarginRate, fee)
	sol.LiquidationPrice = LiquidationPrice(in.Entry, sol.LiquidationDistanceFraction, in.Side)
	diagnostics["liquidation_price"] = sol.LiquidationPrice

	if !finitePositive(sol.Margin) || !finitePositive(sol.Notional) || !finitePositive(lev) {
		return sol, rejectf(models.StatusStopUnsafeLeverage, diagnostics,
			"degenerate solution: margin %.8g notional %.8g leverage %.8g", sol.Margin, sol.Notional, lev)
	}

	separation := in.StopLoss - sol.LiquidationPrice
	if in.Side == models.Short {
		separation = sol.LiquidationPrice - in.StopLoss
	}
	required := in.SafetyEpsilon * in.Entry
	diagnostics["separation"] = separation
	if separation < required-separationTolerance*in.Entry {
		return sol, rejectf(models.StatusStopUnsafeLeverage, diagnostics,
			"liquidation %.8g is only %.8g beyond the stop-loss %.8g, need %.8g",
			sol.LiquidationPrice, separation, in.StopLoss, required)
	}
	return sol, nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
