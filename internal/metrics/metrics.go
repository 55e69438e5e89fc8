// Package metrics records optimizer outcomes as Prometheus metrics. A run is a
// one-shot batch job, so metrics are exported with WriteTextfile for the node
// exporter textfile collector rather than served over HTTP.
package metrics

import (
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the optimizer metrics.
type Recorder struct {
	gatherer prometheus.Gatherer

	RunsTotal      *prometheus.CounterVec   // runs by symbol and status
	Leverage       *prometheus.GaugeVec     // chosen leverage
	MaxLeverage    *prometheus.GaugeVec     // solved L_max before cap/step
	KellyFraction  *prometheus.GaugeVec     // raw Kelly fraction
	PriceLevels    *prometheus.GaugeVec     // cone, stop-loss, take-profit and liquidation prices
	GridLines      *prometheus.GaugeVec     // grid line count
	FetchDuration  *prometheus.HistogramVec // collaborator latency by source
	FetchFailures  *prometheus.CounterVec   // collaborator failures by source
	LastRunSeconds prometheus.Gauge         // unix time of the last run
}

// New creates metrics on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry, registry)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	factory := promauto.With(registerer)
	return &Recorder{
		gatherer: gatherer,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_optimizer_runs_total",
			Help: "Optimizer runs by outcome status",
		}, []string{"symbol", "status"}),
		Leverage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grid_optimizer_leverage",
			Help: "Leverage chosen for the last OK run",
		}, []string{"symbol"}),
		MaxLeverage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grid_optimizer_max_leverage",
			Help: "Inverse-solved maximum safe leverage",
		}, []string{"symbol"}),
		KellyFraction: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grid_optimizer_kelly_fraction",
			Help: "Kelly fraction of the last run that reached the edge gate",
		}, []string{"symbol"}),
		PriceLevels: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grid_optimizer_price_level",
			Help: "Price levels produced by the last run",
		}, []string{"symbol", "level"}),
		GridLines: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grid_optimizer_grid_lines",
			Help: "Number of grid lines for the last OK run",
		}, []string{"symbol"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grid_optimizer_fetch_duration_seconds",
			Help:    "Latency of market and fee data collection",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "grid_optimizer_fetch_failures_total",
			Help: "Market and fee data collection failures",
		}, []string{"source"}),
		LastRunSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grid_optimizer_last_run_timestamp_seconds",
			Help: "Unix time of the last optimizer run",
		}),
	}
}

// ObserveResult records one optimizer result.
func (r *Recorder) ObserveResult(symbol string, res models.GridBotParameterSet, at time.Time) {
	r.RunsTotal.WithLabelValues(symbol, string(res.Status)).Inc()
	r.LastRunSeconds.Set(float64(at.Unix()))

	if res.Cone != nil {
		r.PriceLevels.WithLabelValues(symbol, "cone_upper").Set(res.Cone.Upper)
		r.PriceLevels.WithLabelValues(symbol, "cone_lower").Set(res.Cone.Lower)
	}
	if res.Boundary != nil {
		r.PriceLevels.WithLabelValues(symbol, "stop_loss").Set(res.Boundary.StopLoss)
		r.PriceLevels.WithLabelValues(symbol, "take_profit").Set(res.Boundary.TakeProfit)
	}
	if res.Leverage != nil && res.Leverage.MaxLeverage > 0 {
		r.MaxLeverage.WithLabelValues(symbol).Set(res.Leverage.MaxLeverage)
	}
	if res.Kelly != nil && res.Kelly.RewardToRisk > 0 {
		r.KellyFraction.WithLabelValues(symbol).Set(res.Kelly.KellyFraction)
	}
	if res.Status != models.StatusOK {
		return
	}
	r.Leverage.WithLabelValues(symbol).Set(res.Leverage.Leverage)
	r.PriceLevels.WithLabelValues(symbol, "liquidation").Set(res.Leverage.LiquidationPrice)
	if res.Grid != nil {
		r.GridLines.WithLabelValues(symbol).Set(float64(res.Grid.Lines))
	}
}

// ObserveFetch records the latency and outcome of one data collection call.
func (r *Recorder) ObserveFetch(source string, elapsed time.Duration, err error) {
	r.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil {
		r.FetchFailures.WithLabelValues(source).Inc()
	}
}

// WriteTextfile atomically writes every gathered metric in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.gatherer)
}
