package optimizer

import (
	"fmt"
	"math"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// BuildCone returns the drift-adjusted GBM price band
//
//	S0 * exp((mu - sigma^2/2)*T +/- z*sigma*sqrt(T))
//
// for the snapshot's horizon.
func BuildCone(stats models.MarketStatistics, z float64) (models.VolatilityCone, error) {
	if err := validateStatistics(stats); err != nil {
		return models.VolatilityCone{}, err
	}
	if math.IsNaN(z) || math.IsInf(z, 0) || z < 0 {
		return models.VolatilityCone{}, fmt.Errorf("%w: confidence multiplier %f", ErrInvalidInput, z)
	}

	t := stats.Horizon
	sigma := stats.Volatility
	drift := (stats.Drift - 0.5*sigma*sigma) * t
	spread := z * sigma * math.Sqrt(t)

	return models.VolatilityCone{
		Upper: stats.SpotPrice * math.Exp(drift+spread),
		Lower: stats.SpotPrice * math.Exp(drift-spread),
	}, nil
}

func validateStatistics(stats models.MarketStatistics) error {
	for name, v := range map[string]float64{
		"spot price": stats.SpotPrice,
		"drift":      stats.Drift,
		"volatility": stats.Volatility,
		"atr":        stats.ATR,
		"horizon":    stats.Horizon,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
		}
	}
	if stats.Horizon <= 0 {
		return fmt.Errorf("%w: %f years", ErrInvalidHorizon, stats.Horizon)
	}
	if stats.Volatility < 0 {
		return fmt.Errorf("%w: %f", ErrInvalidVolatility, stats.Volatility)
	}
	if stats.SpotPrice <= 0 {
		return fmt.Errorf("%w: %f", ErrInvalidPrice, stats.SpotPrice)
	}
	if stats.ATR < 0 {
		return fmt.Errorf("%w: atr %f must not be negative", ErrInvalidInput, stats.ATR)
	}
	return nil
}
