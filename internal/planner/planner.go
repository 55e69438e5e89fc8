// Package planner wires the collaborators around the pure optimizer: it
// resolves market statistics and fees, applies run-level policy (price source,
// neutral drift, exchange limits) and hands a fixed snapshot to
// optimizer.Compute.
package planner

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/exchange"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/market"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/metrics"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/optimizer"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/persistence"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Price sources, in order of preference when falling back.
const (
	PriceSourceStream = "stream"
	PriceSourceTicker = "ticker"
	PriceSourceKline  = "kline"
)

// SpotSource returns a live spot price for symbol.
type SpotSource func(ctx context.Context, symbol string) (float64, error)

// Request describes one optimizer run.
type Request struct {
	Exchange    string
	Symbol      string
	HorizonDays float64
	PriceSource string
	Neutral     bool
	AutoNeutral bool
	Options     optimizer.Options
}

// Planner runs the closed loop for one request at a time.
type Planner struct {
	market  market.Provider
	fees    exchange.FeeProvider
	spot    SpotSource
	repo    persistence.RunRepository
	metrics *metrics.Recorder
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes a Planner.
type Option func(*Planner)

// WithSpotSource enables the stream price source.
func WithSpotSource(s SpotSource) Option { return func(p *Planner) { p.spot = s } }

// WithRepository stores every run.
func WithRepository(r persistence.RunRepository) Option { return func(p *Planner) { p.repo = r } }

// WithMetrics records run outcomes and collaborator latency.
func WithMetrics(m *metrics.Recorder) Option { return func(p *Planner) { p.metrics = m } }

// WithTimeout bounds data collection. Interactive fee input is not bounded.
func WithTimeout(d time.Duration) Option { return func(p *Planner) { p.timeout = d } }

// New creates a Planner.
func New(marketProvider market.Provider, feeProvider exchange.FeeProvider, logger *zap.Logger, opts ...Option) *Planner {
	p := &Planner{
		market: marketProvider,
		fees:   feeProvider,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run resolves the snapshot, computes the parameter set and, when a repository
// is configured, stores the run. STOP outcomes are returned as records, not errors.
func (p *Planner) Run(ctx context.Context, req Request) (*persistence.RunRecord, error) {
	// 交互输入先于带超时的数据采集完成
	if it, ok := p.fees.(exchange.Interactive); ok {
		if err := it.Prepare(ctx); err != nil {
			return nil, fmt.Errorf("manual fees for %s: %w", req.Symbol, err)
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	stats, fees, err := p.collect(ctx, req)
	if err != nil {
		return nil, err
	}

	rec := &persistence.RunRecord{
		CreatedAt: p.now().UTC(),
		Exchange:  req.Exchange,
		Symbol:    req.Symbol,
	}

	stats.SpotPrice = p.resolveSpot(ctx, req, stats, fees, rec)
	if req.Neutral {
		stats = neutral(stats)
		rec.Notes = append(rec.Notes, "neutral mode: historical drift ignored")
	}

	opts := p.resolveOptions(req.Options, fees, rec)

	if req.AutoNeutral && !req.Neutral && driftAgainstSide(stats, opts) {
		p.logger.Warn("检测到与持仓方向相反的漂移，自动切换为中性模式",
			zap.String("symbol", req.Symbol), zap.Float64("drift", stats.Drift), zap.String("side", string(opts.Side)))
		stats = neutral(stats)
		rec.Notes = append(rec.Notes, "adverse drift detected: the cone did not straddle entry, drift reset to zero")
	}

	res, err := optimizer.Compute(stats, fees, opts)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", req.Symbol, err)
	}
	rec.Statistics, rec.Fees, rec.Options, rec.Result = stats, fees, opts, res

	p.logger.Info("优化完成",
		zap.String("symbol", req.Symbol),
		zap.String("status", string(res.Status)),
		zap.String("stage", string(res.Stage)))

	if p.metrics != nil {
		p.metrics.ObserveResult(req.Symbol, res, rec.CreatedAt)
	}
	if p.repo != nil {
		if err := p.repo.SaveRun(rec); err != nil {
			p.logger.Warn("保存运行记录失败", zap.Error(err))
		} else {
			p.logger.Info("运行记录已保存", zap.String("run_id", rec.ID))
		}
	}
	return rec, nil
}

// collect fetches statistics and fees concurrently.
func (p *Planner) collect(ctx context.Context, req Request) (models.MarketStatistics, models.FeeStructure, error) {
	var (
		stats models.MarketStatistics
		fees  models.FeeStructure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		var err error
		stats, err = p.market.Fetch(gctx, req.Symbol, req.HorizonDays)
		p.observeFetch("market", start, err)
		if err != nil {
			return fmt.Errorf("fetch market statistics for %s: %w", req.Symbol, err)
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		fees, err = p.fees.FetchFees(gctx, req.Symbol)
		p.observeFetch("fees", start, err)
		if err != nil {
			return fmt.Errorf("fetch fees for %s: %w", req.Symbol, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.MarketStatistics{}, models.FeeStructure{}, err
	}
	return stats, fees, nil
}

func (p *Planner) observeFetch(source string, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.ObserveFetch(source, time.Since(start), err)
	}
}

// resolveSpot picks the entry price: stream, then the fee provider's last
// price, then the last kline close. The configured source sets where the
// chain starts.
func (p *Planner) resolveSpot(ctx context.Context, req Request, stats models.MarketStatistics, fees models.FeeStructure, rec *persistence.RunRecord) float64 {
	source := req.PriceSource
	if source == PriceSourceStream {
		if p.spot != nil {
			start := time.Now()
			price, err := p.spot(ctx, req.Symbol)
			p.observeFetch("stream", start, err)
			if err == nil && price > 0 {
				rec.Notes = append(rec.Notes, "entry price from live book ticker stream")
				return price
			}
			p.logger.Warn("实时行情流不可用，回退到最新成交价", zap.String("symbol", req.Symbol), zap.Error(err))
		}
		source = PriceSourceTicker
	}
	if source == PriceSourceTicker && fees.LastPrice > 0 {
		rec.Notes = append(rec.Notes, "entry price from exchange ticker")
		return fees.LastPrice
	}
	return stats.SpotPrice
}

// resolveOptions fills exchange-provided limits the caller left open.
func (p *Planner) resolveOptions(opts optimizer.Options, fees models.FeeStructure, rec *persistence.RunRecord) optimizer.Options {
	if opts.MaintenanceMarginRate == 0 {
		opts.MaintenanceMarginRate = optimizer.DefaultOptions().MaintenanceMarginRate
		if fees.MaintenanceMarginRate > 0 {
			opts.MaintenanceMarginRate = fees.MaintenanceMarginRate
			rec.Notes = append(rec.Notes, fmt.Sprintf("maintenance margin rate %.4f%% from exchange", fees.MaintenanceMarginRate*100))
		}
	}
	if opts.LeverageCap == 0 && fees.MaxLeverage >= 1 {
		opts.LeverageCap = fees.MaxLeverage
		rec.Notes = append(rec.Notes, fmt.Sprintf("leverage capped at exchange maximum %.0fx", fees.MaxLeverage))
	}
	return opts
}

// driftAgainstSide reports whether the drift pushes the whole cone past entry
// on the favourable side: upper below entry for a long, lower above entry for
// a short. Malformed statistics are left for Compute to reject.
func driftAgainstSide(stats models.MarketStatistics, opts optimizer.Options) bool {
	cone, err := optimizer.BuildCone(stats, opts.ConfidenceZ)
	if err != nil {
		return false
	}
	if opts.Side == models.Short {
		return cone.Lower > stats.SpotPrice
	}
	return cone.Upper < stats.SpotPrice
}

func neutral(stats models.MarketStatistics) models.MarketStatistics {
	stats.Drift = 0
	stats.DailyDrift = 0
	return stats
}

// Replay recomputes a stored run and reports whether the result is identical.
func Replay(rec *persistence.RunRecord) (models.GridBotParameterSet, bool, error) {
	res, err := optimizer.Compute(rec.Statistics, rec.Fees, rec.Options)
	if err != nil {
		return models.GridBotParameterSet{}, false, err
	}
	return res, reflect.DeepEqual(res, rec.Result), nil
}
