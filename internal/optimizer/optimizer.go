// Package optimizer implements the closed-loop parameter pipeline: volatility
// cone, risk boundary, leverage solve and Kelly edge gate.
//
// Compute is a pure function of its inputs. It performs no I/O and keeps no
// state between calls, so identical inputs always give identical results.
package optimizer

import (
	"fmt"
	"math"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// Compute runs INIT -> CONE -> BOUNDARY -> LEVERAGE -> EDGE -> DONE and stops
// at the first stage that rejects. Malformed inputs are returned as errors;
// STOP outcomes are returned as results.
func Compute(stats models.MarketStatistics, fees models.FeeStructure, opts Options) (models.GridBotParameterSet, error) {
	if err := validateFees(fees); err != nil {
		return models.GridBotParameterSet{}, err
	}
	if err := opts.Validate(); err != nil {
		return models.GridBotParameterSet{}, err
	}

	entry := stats.SpotPrice
	r := newReport(entry)

	cone, err := BuildCone(stats, opts.ConfidenceZ)
	if err != nil {
		return models.GridBotParameterSet{}, err
	}
	r.advance(models.StageCone)
	r.set.Cone = &cone

	r.advance(models.StageBoundary)
	boundary, rej := DeriveBoundary(cone, stats.ATR, opts.NoiseMultiplier, entry, opts.Side)
	r.set.Boundary = &boundary
	if rej != nil {
		return r.stop(rej), nil
	}

	grid := PlanGrid(cone, stats, fees, opts.Grid)

	r.advance(models.StageLeverage)
	lev, rej := SolveLeverage(LeverageInput{
		Entry:                 entry,
		StopLoss:              boundary.StopLoss,
		Side:                  opts.Side,
		Fees:                  fees,
		Horizon:               stats.Horizon,
		MaintenanceMarginRate: opts.MaintenanceMarginRate,
		SafetyEpsilon:         opts.SafetyEpsilon,
		LeverageCap:           opts.LeverageCap,
		LeverageStep:          opts.LeverageStep,
		AccountSize:           opts.AccountSize,
		FixedNotional:         opts.FixedNotional,
		MinimumNotional:       float64(max(grid.Lines, 1)) * opts.Grid.MinOrderSize,
	})
	r.set.Leverage = &lev
	if rej != nil {
		return r.stop(rej), nil
	}

	r.advance(models.StageEdge)
	kelly, rej := AssessEdge(EdgeInput{
		Entry:           entry,
		Boundary:        boundary,
		WinProbability:  opts.WinProbability,
		FractionalKelly: opts.FractionalKelly,
		RoundTripFee:    lev.RoundTripFeeFraction,
		FeeAdjusted:     opts.FeeAdjustedEdge,
	})
	r.set.Kelly = &kelly
	if rej != nil {
		return r.stop(rej), nil
	}

	grid.MinCapital = MinimumCapital(grid.Lines, opts.Grid.MinOrderSize, lev.Leverage)
	return r.done(grid), nil
}

func validateFees(fees models.FeeStructure) error {
	for name, v := range map[string]float64{
		"maker fee":        fees.MakerFee,
		"taker fee":        fees.TakerFee,
		"funding rate":     fees.FundingRate,
		"funding interval": fees.FundingIntervalHours,
		"spread":           fees.Spread,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
		}
	}
	if fees.TakerFee < 0 {
		return fmt.Errorf("%w: taker fee %f must not be negative", ErrInvalidInput, fees.TakerFee)
	}
	if fees.FundingIntervalHours < 0 {
		return fmt.Errorf("%w: funding interval %f must not be negative", ErrInvalidInput, fees.FundingIntervalHours)
	}
	return nil
}
