package optimizer

import (
	"errors"
	"math"
	"testing"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseSnapshot is a bullish week on a 100 USDT instrument that clears every stage.
func baseSnapshot() (models.MarketStatistics, models.FeeStructure, Options) {
	stats := models.MarketStatistics{
		Symbol:     "TESTUSDT",
		SpotPrice:  100,
		Drift:      0.30,
		Volatility: 0.50,
		ATR:        1.5,
		Horizon:    7 / models.DaysPerYear,
	}
	fees := models.FeeStructure{
		MakerFee:             0.0002,
		TakerFee:             0.0005,
		FundingRate:          0.0001,
		FundingIntervalHours: 8,
	}
	opts := DefaultOptions()
	opts.WinProbability = 0.55
	opts.AccountSize = 1000
	return stats, fees, opts
}

func TestCompute_OK(t *testing.T) {
	stats, fees, opts := baseSnapshot()

	res, err := Compute(stats, fees, opts)
	require.NoError(t, err)
	require.Equal(t, models.StatusOK, res.Status, res.Reason)
	assert.Equal(t, models.StageDone, res.Stage)
	assert.Empty(t, res.Reason)

	require.NotNil(t, res.Cone)
	assert.InDelta(t, 115.2394, res.Cone.Upper, 1e-3)
	assert.InDelta(t, 87.3603, res.Cone.Lower, 1e-3)

	require.NotNil(t, res.Boundary)
	assert.InDelta(t, 85.8603, res.Boundary.StopLoss, 1e-3)
	assert.Equal(t, res.Cone.Upper, res.Boundary.TakeProfit)

	require.NotNil(t, res.Leverage)
	assert.InDelta(t, 0.0031, res.Leverage.RoundTripFeeFraction, 1e-12)
	assert.InDelta(t, 7.4462, res.Leverage.MaxLeverage, 1e-3)
	assert.Equal(t, res.Leverage.MaxLeverage, res.Leverage.Leverage)
	assert.Equal(t, 1000.0, res.Leverage.Margin)
	assert.InDelta(t, 1000*res.Leverage.Leverage, res.Leverage.Notional, 1e-9)
	assert.InDelta(t, res.Leverage.Notional/res.Leverage.Margin, res.Leverage.Leverage, 1e-12)
	assert.False(t, res.Leverage.MinimumCapital)

	require.NotNil(t, res.Kelly)
	assert.InDelta(t, 0.13247, res.Kelly.KellyFraction, 1e-4)
	assert.Equal(t, res.Kelly.KellyFraction, res.Kelly.SizingFraction)

	require.NotNil(t, res.Grid)
	assert.Equal(t, 22, res.Grid.Lines)
	assert.InDelta(t, 22*6/res.Leverage.Leverage, res.Grid.MinCapital, 1e-9)
}

func TestCompute_LiquidationBeyondStopOnOK(t *testing.T) {
	for _, side := range []models.Side{models.Long, models.Short} {
		stats, fees, opts := baseSnapshot()
		opts.Side = side
		if side == models.Short {
			stats.Drift = -0.30
		}

		res, err := Compute(stats, fees, opts)
		require.NoError(t, err)
		require.Equal(t, models.StatusOK, res.Status, "%s: %s", side, res.Reason)

		gap := res.Boundary.StopLoss - res.Leverage.LiquidationPrice
		if side == models.Short {
			gap = res.Leverage.LiquidationPrice - res.Boundary.StopLoss
		}
		assert.GreaterOrEqual(t, gap, opts.SafetyEpsilon*stats.SpotPrice-1e-9, "side %s", side)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	stats, fees, opts := baseSnapshot()

	first, err := Compute(stats, fees, opts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Compute(stats, fees, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_InvalidRiskDistanceRegardlessOfOtherInputs(t *testing.T) {
	stats, fees, opts := baseSnapshot()
	// An ATR this large drags the long stop below zero.
	stats.ATR = 200

	for _, account := range []float64{0, 10, 1e6} {
		opts.AccountSize = account
		opts.WinProbability = 1
		res, err := Compute(stats, fees, opts)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStopInvalidRiskDistance, res.Status)
		assert.Equal(t, models.StageBoundary, res.Stage)
		assert.Nil(t, res.Leverage)
		assert.Contains(t, res.Diagnostics, "atr_buffer")
	}
}

func TestCompute_ShortStopBelowEntry(t *testing.T) {
	stats, fees, opts := baseSnapshot()
	opts.Side = models.Short
	// Zero volatility with negative drift collapses the cone below spot, so
	// the short stop cannot sit above entry.
	stats.Volatility = 0
	stats.Drift = -2
	stats.ATR = 0

	res, err := Compute(stats, fees, opts)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStopInvalidRiskDistance, res.Status)
}

func TestCompute_UnsafeLeverageForEveryAccountSize(t *testing.T) {
	stats, fees, opts := baseSnapshot()
	// Maintenance margin alone exceeds the ~14% risk distance.
	opts.MaintenanceMarginRate = 0.2

	for _, account := range []float64{1, 100, 1e9} {
		opts.AccountSize = account
		res, err := Compute(stats, fees, opts)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStopUnsafeLeverage, res.Status)
		assert.Equal(t, models.StageLeverage, res.Stage)
		assert.Nil(t, res.Kelly)
		assert.InDelta(t, 0.1414, res.Diagnostics["risk_distance_fraction"], 1e-3)
	}
}

func TestCompute_NegativeEdgeWithValidLeverage(t *testing.T) {
	stats, fees, opts := baseSnapshot()
	// Bullish drift makes the short reward leg smaller than its risk leg.
	opts.Side = models.Short

	res, err := Compute(stats, fees, opts)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStopNegativeEdge, res.Status)
	assert.Equal(t, models.StageEdge, res.Stage)
	require.NotNil(t, res.Leverage)
	assert.Greater(t, res.Leverage.Leverage, 1.0)
	require.NotNil(t, res.Kelly)
	assert.InDelta(t, -0.04596, res.Kelly.KellyFraction, 1e-4)
	assert.Nil(t, res.Grid)
	assert.Contains(t, res.Reason, StopReason(models.StatusStopNegativeEdge))
}

func TestCompute_AdverseDriftIsNegativeEdge(t *testing.T) {
	for _, tt := range []struct {
		side  models.Side
		drift float64
	}{
		{models.Long, -3},
		{models.Short, 3},
	} {
		t.Run(string(tt.side), func(t *testing.T) {
			stats, fees, opts := baseSnapshot()
			// Strong drift against the side pushes the favourable cone edge past entry.
			stats.Drift = tt.drift
			stats.Volatility = 0.1
			stats.ATR = 1
			stats.Horizon = 1.0 / 12
			opts.Side = tt.side
			opts.WinProbability = 0.9

			res, err := Compute(stats, fees, opts)
			require.NoError(t, err)
			assert.Equal(t, models.StatusStopNegativeEdge, res.Status)
			assert.Equal(t, models.StageEdge, res.Stage)
			require.NotNil(t, res.Boundary)
			if tt.side == models.Long {
				assert.Less(t, res.Boundary.TakeProfit, res.EntryPrice)
			} else {
				assert.Greater(t, res.Boundary.TakeProfit, res.EntryPrice)
			}
			assert.Less(t, res.Diagnostics["reward_fraction"], 0.0)
		})
	}
}

func TestCompute_MinimumCapitalWhenUnsized(t *testing.T) {
	stats, fees, opts := baseSnapshot()
	opts.AccountSize = 0

	res, err := Compute(stats, fees, opts)
	require.NoError(t, err)
	require.Equal(t, models.StatusOK, res.Status)
	assert.True(t, res.Leverage.MinimumCapital)
	assert.InDelta(t, res.Grid.MinCapital, res.Leverage.Margin, 1e-9)
	assert.InDelta(t, 22*6.0, res.Leverage.Notional, 1e-9)
}

func TestCompute_HardFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.MarketStatistics, *models.FeeStructure, *Options)
		want   error
	}{
		{"zero horizon", func(s *models.MarketStatistics, _ *models.FeeStructure, _ *Options) { s.Horizon = 0 }, ErrInvalidHorizon},
		{"negative horizon", func(s *models.MarketStatistics, _ *models.FeeStructure, _ *Options) { s.Horizon = -1 }, ErrInvalidHorizon},
		{"negative volatility", func(s *models.MarketStatistics, _ *models.FeeStructure, _ *Options) { s.Volatility = -0.1 }, ErrInvalidVolatility},
		{"zero price", func(s *models.MarketStatistics, _ *models.FeeStructure, _ *Options) { s.SpotPrice = 0 }, ErrInvalidPrice},
		{"nan drift", func(s *models.MarketStatistics, _ *models.FeeStructure, _ *Options) { s.Drift = math.NaN() }, ErrInvalidInput},
		{"negative atr", func(s *models.MarketStatistics, _ *models.FeeStructure, _ *Options) { s.ATR = -1 }, ErrInvalidInput},
		{"negative taker", func(_ *models.MarketStatistics, f *models.FeeStructure, _ *Options) { f.TakerFee = -0.001 }, ErrInvalidInput},
		{"bad side", func(_ *models.MarketStatistics, _ *models.FeeStructure, o *Options) { o.Side = "sideways" }, ErrInvalidOptions},
		{"win probability", func(_ *models.MarketStatistics, _ *models.FeeStructure, o *Options) { o.WinProbability = 1.5 }, ErrInvalidOptions},
		{"both sizings", func(_ *models.MarketStatistics, _ *models.FeeStructure, o *Options) { o.FixedNotional = 500 }, ErrInvalidOptions},
		{"cap below one", func(_ *models.MarketStatistics, _ *models.FeeStructure, o *Options) { o.LeverageCap = 0.5 }, ErrInvalidOptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, fees, opts := baseSnapshot()
			tt.mutate(&stats, &fees, &opts)
			_, err := Compute(stats, fees, opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
