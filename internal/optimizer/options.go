package optimizer

import (
	"fmt"
	"math"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// Options is the explicit configuration threaded through every stage.
type Options struct {
	ConfidenceZ           float64     `json:"confidence_z"`
	NoiseMultiplier       float64     `json:"noise_multiplier"`
	SafetyEpsilon         float64     `json:"safety_epsilon"`
	MaintenanceMarginRate float64     `json:"maintenance_margin_rate"`
	LeverageCap           float64     `json:"leverage_cap,omitempty"`  // 0 = uncapped
	LeverageStep          float64     `json:"leverage_step,omitempty"` // 0 = continuous
	Side                  models.Side `json:"side"`
	AccountSize           float64     `json:"account_size,omitempty"`
	FixedNotional         float64     `json:"fixed_notional,omitempty"`
	WinProbability        float64     `json:"win_probability"`
	FractionalKelly       float64     `json:"fractional_kelly"`
	FeeAdjustedEdge       bool        `json:"fee_adjusted_edge,omitempty"`
	Grid                  GridOptions `json:"grid"`
}

// GridOptions controls the grid plan attached to an OK result.
type GridOptions struct {
	MinProfitShare float64 `json:"min_profit_share"`
	MinOrderSize   float64 `json:"min_order_size"`
	// StepWindow is the volatility window used for the grid step, in years.
	StepWindow float64 `json:"step_window"`
}

// DefaultOptions returns the documented defaults. WinProbability has no
// default and must be set by the caller.
func DefaultOptions() Options {
	return Options{
		ConfidenceZ:           2.0,
		NoiseMultiplier:       1.0,
		SafetyEpsilon:         0.001,
		MaintenanceMarginRate: 0.005,
		Side:                  models.Long,
		FractionalKelly:       1.0,
		Grid: GridOptions{
			MinProfitShare: 0.8,
			MinOrderSize:   6.0,
			StepWindow:     1 / models.DaysPerYear,
		},
	}
}

// Validate returns the first configuration problem found.
func (o Options) Validate() error {
	for name, v := range map[string]float64{
		"confidence_z":            o.ConfidenceZ,
		"noise_multiplier":        o.NoiseMultiplier,
		"safety_epsilon":          o.SafetyEpsilon,
		"maintenance_margin_rate": o.MaintenanceMarginRate,
		"leverage_cap":            o.LeverageCap,
		"leverage_step":           o.LeverageStep,
		"account_size":            o.AccountSize,
		"fixed_notional":          o.FixedNotional,
		"win_probability":         o.WinProbability,
		"fractional_kelly":        o.FractionalKelly,
		"grid.min_profit_share":   o.Grid.MinProfitShare,
		"grid.min_order_size":     o.Grid.MinOrderSize,
		"grid.step_window":        o.Grid.StepWindow,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidOptions, name)
		}
	}

	switch {
	case o.Side != models.Long && o.Side != models.Short:
		return fmt.Errorf("%w: position side %q", ErrInvalidOptions, o.Side)
	case o.ConfidenceZ < 0:
		return fmt.Errorf("%w: confidence_z (%f) must not be negative", ErrInvalidOptions, o.ConfidenceZ)
	case o.NoiseMultiplier < 0:
		return fmt.Errorf("%w: noise_multiplier (%f) must not be negative", ErrInvalidOptions, o.NoiseMultiplier)
	case o.SafetyEpsilon < 0:
		return fmt.Errorf("%w: safety_epsilon (%f) must not be negative", ErrInvalidOptions, o.SafetyEpsilon)
	case o.MaintenanceMarginRate < 0 || o.MaintenanceMarginRate >= 1:
		return fmt.Errorf("%w: maintenance_margin_rate (%f) must be in [0,1)", ErrInvalidOptions, o.MaintenanceMarginRate)
	case o.LeverageCap != 0 && o.LeverageCap < 1:
		return fmt.Errorf("%w: leverage_cap (%f) must be 0 or >= 1", ErrInvalidOptions, o.LeverageCap)
	case o.LeverageStep < 0:
		return fmt.Errorf("%w: leverage_step (%f) must not be negative", ErrInvalidOptions, o.LeverageStep)
	case o.AccountSize < 0 || o.FixedNotional < 0:
		return fmt.Errorf("%w: account_size and fixed_notional must not be negative", ErrInvalidOptions)
	case o.AccountSize > 0 && o.FixedNotional > 0:
		return fmt.Errorf("%w: account_size and fixed_notional are mutually exclusive", ErrInvalidOptions)
	case o.WinProbability < 0 || o.WinProbability > 1:
		return fmt.Errorf("%w: win_probability (%f) must be in [0,1]", ErrInvalidOptions, o.WinProbability)
	case o.FractionalKelly <= 0:
		return fmt.Errorf("%w: fractional_kelly (%f) must be positive", ErrInvalidOptions, o.FractionalKelly)
	case o.Grid.MinOrderSize <= 0:
		return fmt.Errorf("%w: grid.min_order_size (%f) must be positive", ErrInvalidOptions, o.Grid.MinOrderSize)
	case o.Grid.StepWindow < 0:
		return fmt.Errorf("%w: grid.step_window (%f) must not be negative", ErrInvalidOptions, o.Grid.StepWindow)
	}
	return nil
}
