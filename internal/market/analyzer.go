package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// ATRPeriod is the number of trailing true ranges averaged into the ATR.
const ATRPeriod = 14

var (
	ErrInsufficientData = errors.New("insufficient price history")
	ErrMalformedData    = errors.New("malformed price history")
)

// Candle is one daily OHLC bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// ReadCandles parses a kline CSV written by KlineDownloader.
func ReadCandles(path string) ([]Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("无法读取CSV记录: %w", err)
	}
	if len(records) <= 1 { // 至少需要表头和一行数据
		return nil, fmt.Errorf("%w: %s 为空或只有表头", ErrInsufficientData, path)
	}

	candles := make([]Candle, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) < 5 {
			return nil, fmt.Errorf("%w: 第 %d 行字段不足", ErrMalformedData, i+2)
		}
		openMs, errT := strconv.ParseInt(record[0], 10, 64)
		open, errO := strconv.ParseFloat(record[1], 64)
		high, errH := strconv.ParseFloat(record[2], 64)
		low, errL := strconv.ParseFloat(record[3], 64)
		closePrice, errC := strconv.ParseFloat(record[4], 64)
		if err := errors.Join(errT, errO, errH, errL, errC); err != nil {
			return nil, fmt.Errorf("%w: 第 %d 行: %v", ErrMalformedData, i+2, err)
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
		})
	}
	return candles, nil
}

// Analyze derives drift, volatility and ATR from daily candles. Daily figures
// come from close-to-close log returns (population standard deviation) and are
// annualized over a 365-day year. horizonDays sets the snapshot horizon.
func Analyze(symbol string, candles []Candle, horizonDays float64) (models.MarketStatistics, error) {
	if len(candles) < 2 {
		return models.MarketStatistics{}, fmt.Errorf("%w: need at least 2 candles, got %d", ErrInsufficientData, len(candles))
	}
	for _, c := range candles {
		if c.Close <= 0 || c.High <= 0 || c.Low <= 0 {
			return models.MarketStatistics{}, fmt.Errorf("%w: non-positive price on %s", ErrMalformedData, c.OpenTime.Format("2006-01-02"))
		}
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		returns = append(returns, math.Log(candles[i].Close/candles[i-1].Close))
	}
	mu, sigma := meanStd(returns)

	last := candles[len(candles)-1]
	return models.MarketStatistics{
		Symbol:          symbol,
		SpotPrice:       last.Close,
		Drift:           mu * models.DaysPerYear,
		Volatility:      sigma * math.Sqrt(models.DaysPerYear),
		ATR:             AverageTrueRange(candles, ATRPeriod),
		Horizon:         horizonDays / models.DaysPerYear,
		DailyDrift:      mu,
		DailyVolatility: sigma,
		Samples:         len(candles),
		AsOf:            last.OpenTime,
	}, nil
}

// AverageTrueRange is the simple mean of the last period true ranges. The
// first bar has no previous close and uses its own.
func AverageTrueRange(candles []Candle, period int) float64 {
	if len(candles) == 0 || period <= 0 {
		return 0
	}
	start := max(0, len(candles)-period)
	sum := 0.0
	for i := start; i < len(candles); i++ {
		prevClose := candles[i].Close
		if i > 0 {
			prevClose = candles[i-1].Close
		}
		c := candles[i]
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		sum += tr
	}
	return sum / float64(len(candles)-start)
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}
