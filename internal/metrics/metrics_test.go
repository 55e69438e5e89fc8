package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okResult() models.GridBotParameterSet {
	return models.GridBotParameterSet{
		Status:     models.StatusOK,
		Stage:      models.StageDone,
		EntryPrice: 100,
		Cone:       &models.VolatilityCone{Upper: 115, Lower: 87},
		Boundary:   &models.RiskBoundary{StopLoss: 85.5, TakeProfit: 115, Side: models.Long},
		Leverage:   &models.LeverageSolution{Leverage: 7, MaxLeverage: 7.4, LiquidationPrice: 84.2},
		Kelly:      &models.KellyAssessment{WinProbability: 0.55, RewardToRisk: 1.07, KellyFraction: 0.13},
		Grid:       &models.GridPlan{Lines: 22},
	}
}

func TestRecorder_ObserveResult(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := NewWithRegistry(registry, registry)
	at := time.Unix(1_750_000_000, 0)

	r.ObserveResult("BTCUSDT", okResult(), at)
	r.ObserveResult("BTCUSDT", models.GridBotParameterSet{Status: models.StatusStopUnsafeLeverage}, at)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("BTCUSDT", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RunsTotal.WithLabelValues("BTCUSDT", "STOP_UNSAFE_LEVERAGE")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.Leverage.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 84.2, testutil.ToFloat64(r.PriceLevels.WithLabelValues("BTCUSDT", "liquidation")))
	assert.Equal(t, 22.0, testutil.ToFloat64(r.GridLines.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1_750_000_000.0, testutil.ToFloat64(r.LastRunSeconds))
}

func TestRecorder_StopKeepsPartialLevels(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := NewWithRegistry(registry, registry)

	stop := okResult()
	stop.Status = models.StatusStopNegativeEdge
	stop.Stage = models.StageEdge
	stop.Kelly.KellyFraction = -0.05
	stop.Grid = nil
	r.ObserveResult("ETHUSDT", stop, time.Now())

	assert.Equal(t, 85.5, testutil.ToFloat64(r.PriceLevels.WithLabelValues("ETHUSDT", "stop_loss")))
	assert.Equal(t, -0.05, testutil.ToFloat64(r.KellyFraction.WithLabelValues("ETHUSDT")))
	// leverage is only published for OK runs
	assert.Equal(t, 0, testutil.CollectAndCount(r.Leverage))
}

func TestRecorder_ObserveFetch(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := NewWithRegistry(registry, registry)

	r.ObserveFetch("market", 120*time.Millisecond, nil)
	r.ObserveFetch("fees", time.Second, errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(r.FetchDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FetchFailures.WithLabelValues("fees")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveResult("BTCUSDT", okResult(), time.Unix(1_750_000_000, 0))

	path := filepath.Join(t.TempDir(), "optimizer.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `grid_optimizer_runs_total{status="OK",symbol="BTCUSDT"} 1`)
	assert.Contains(t, string(data), "grid_optimizer_grid_lines")
}
