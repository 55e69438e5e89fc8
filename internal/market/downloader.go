package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

const (
	klineInterval = "1d"
	klinePageSize = 1000 // 币安单次请求最多1000条
	pagePause     = 200 * time.Millisecond
)

var csvHeader = []string{"open_time", "open", "high", "low", "close", "volume", "close_time", "quote_asset_volume", "number_of_trades", "taker_buy_base_asset_volume", "taker_buy_quote_asset_volume"}

// KlineDownloader 用于从币安下载日K线数据
type KlineDownloader struct {
	client *binance.Client
	logger *zap.Logger
}

// NewKlineDownloader 创建一个新的下载器实例，baseURL 为空时使用币安现货默认地址
func NewKlineDownloader(baseURL string, logger *zap.Logger) *KlineDownloader {
	client := binance.NewClient("", "") // 公共接口不需要API Key
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &KlineDownloader{client: client, logger: logger}
}

// CachePath 返回某个时间窗口对应的缓存文件路径
func CachePath(dataDir, symbol string, start, end time.Time) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s-%s-%s-%s.csv", symbol, klineInterval, start.Format("2006-01-02"), end.Format("2006-01-02")))
}

// DownloadKlines 下载指定交易对和时间范围内的日K线数据，并保存到CSV文件
// 如果文件已存在，则会跳过下载，直接使用缓存。
func (d *KlineDownloader) DownloadKlines(ctx context.Context, symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		d.logger.Debug("从缓存加载K线数据", zap.String("file", filePath))
		return nil
	}

	d.logger.Info("开始下载K线数据",
		zap.String("symbol", symbol),
		zap.String("start", startTime.Format("2006-01-02")),
		zap.String("end", endTime.Format("2006-01-02")))

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}

	// 先写入临时文件，成功后再改名，避免中断时留下不完整的缓存
	tmpPath := filePath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", tmpPath, err)
	}
	defer os.Remove(tmpPath)

	rows, err := d.writeKlines(ctx, file, symbol, startTime, endTime)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s 没有返回任何K线", ErrInsufficientData, symbol)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("保存缓存文件失败: %w", err)
	}
	d.logger.Info("成功下载K线数据", zap.String("file", filePath), zap.Int("rows", rows))
	return nil
}

func (d *KlineDownloader) writeKlines(ctx context.Context, file *os.File, symbol string, startTime, endTime time.Time) (int, error) {
	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("写入CSV表头失败: %w", err)
	}

	rows := 0
	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval(klineInterval).
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(klinePageSize).
			Do(ctx)
		if err != nil {
			return rows, fmt.Errorf("下载K线数据失败: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				strconv.FormatInt(k.OpenTime, 10),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
				strconv.FormatInt(k.CloseTime, 10),
				k.QuoteAssetVolume,
				strconv.FormatInt(k.TradeNum, 10),
				k.TakerBuyBaseAssetVolume,
				k.TakerBuyQuoteAssetVolume,
			}
			if err := writer.Write(record); err != nil {
				return rows, fmt.Errorf("写入CSV记录失败: %w", err)
			}
			rows++
		}

		if len(klines) < klinePageSize {
			break
		}
		// 更新下一次请求的开始时间
		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		select {
		case <-ctx.Done():
			return rows, ctx.Err()
		case <-time.After(pagePause): // 避免过于频繁的请求
		}
	}

	writer.Flush()
	return rows, writer.Error()
}
