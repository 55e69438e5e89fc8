package market

import (
	"context"
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"go.uber.org/zap"
)

// Provider resolves the market statistics snapshot for one run.
type Provider interface {
	Fetch(ctx context.Context, symbol string, horizonDays float64) (models.MarketStatistics, error)
}

// KlineProvider downloads (or reuses cached) daily klines and analyzes them.
type KlineProvider struct {
	downloader   *KlineDownloader
	dataDir      string
	lookbackDays int
	now          func() time.Time
	logger       *zap.Logger
}

// NewKlineProvider creates a provider that looks back lookbackDays of daily bars.
func NewKlineProvider(downloader *KlineDownloader, dataDir string, lookbackDays int, logger *zap.Logger) *KlineProvider {
	return &KlineProvider{
		downloader:   downloader,
		dataDir:      dataDir,
		lookbackDays: lookbackDays,
		now:          time.Now,
		logger:       logger,
	}
}

// Fetch implements Provider.
func (p *KlineProvider) Fetch(ctx context.Context, symbol string, horizonDays float64) (models.MarketStatistics, error) {
	end := p.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -p.lookbackDays)
	path := CachePath(p.dataDir, symbol, start, end)

	// 币安返回 openTime <= endTime 的K线，end 前一毫秒可排除当天未收盘的K线
	if err := p.downloader.DownloadKlines(ctx, symbol, path, start, end.Add(-time.Millisecond)); err != nil {
		return models.MarketStatistics{}, err
	}
	candles, err := ReadCandles(path)
	if err != nil {
		return models.MarketStatistics{}, err
	}
	candles = closedCandles(candles, end)

	stats, err := Analyze(symbol, candles, horizonDays)
	if err != nil {
		return models.MarketStatistics{}, err
	}
	p.logger.Info("历史统计完成",
		zap.String("symbol", symbol),
		zap.Int("samples", stats.Samples),
		zap.Float64("daily_sigma", stats.DailyVolatility),
		zap.Float64("daily_mu", stats.DailyDrift),
		zap.Float64("atr", stats.ATR))
	return stats, nil
}

// closedCandles drops trailing bars that open at or after end; they are still in progress.
func closedCandles(candles []Candle, end time.Time) []Candle {
	n := len(candles)
	for n > 0 && !candles[n-1].OpenTime.Before(end) {
		n--
	}
	return candles[:n]
}
