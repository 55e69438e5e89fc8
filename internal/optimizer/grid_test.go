package optimizer

import (
	"math"
	"testing"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestGridStep(t *testing.T) {
	// fee floor: 2*0.0002/0.2 = 0.002
	assert.InDelta(t, 0.002, GridStep(0.001, 0.0002, 0.8), 1e-12)
	// volatility floor wins
	assert.InDelta(t, 0.013, GridStep(0.026, 0.0002, 0.8), 1e-12)
	assert.Equal(t, 0.01, GridStep(0.05, 0.0002, 1.0))
}

func TestGridLines(t *testing.T) {
	assert.Equal(t, 22, GridLines(87.36033943195484, 115.23935386252728, 0.013085598064755342))
	assert.Equal(t, 1, GridLines(100, 100.5, 0.01))
	assert.Zero(t, GridLines(100, 100, 0.01))
	assert.Zero(t, GridLines(100, 110, 0))
	assert.Zero(t, GridLines(0, 110, 0.01))
}

func TestMinimumCapital(t *testing.T) {
	assert.InDelta(t, 12.0, MinimumCapital(20, 6, 10), 1e-12)
	assert.Zero(t, MinimumCapital(20, 6, 0))
}

func TestPlanGrid(t *testing.T) {
	cone := models.VolatilityCone{Upper: 115.23935386252728, Lower: 87.36033943195484}
	stats := models.MarketStatistics{Volatility: 0.5}
	fees := models.FeeStructure{MakerFee: 0.0002}

	plan := PlanGrid(cone, stats, fees, DefaultOptions().Grid)
	assert.InDelta(t, 0.5*0.5*math.Sqrt(1/models.DaysPerYear), plan.Step, 1e-12)
	assert.Equal(t, 22, plan.Lines)
	assert.Equal(t, cone.Lower, plan.Lower)
	assert.Equal(t, cone.Upper, plan.Upper)
	assert.Zero(t, plan.MinCapital)
}
