package exchange

import (
	"strings"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"go.uber.org/zap"
)

// autoCorrectCutoff 相似度阈值，避免 pionex -> poloniex 这类误纠正
const autoCorrectCutoff = 0.85

// 已知交易所ID
var knownExchanges = []string{
	"ascendex", "binance", "binanceusdm", "bingx", "bitfinex", "bitget", "bitmart", "bitmex",
	"bitstamp", "bitunix", "bybit", "coinbase", "coinex", "cryptocom", "deribit", "gate",
	"gemini", "htx", "huobi", "hyperliquid", "kraken", "krakenfutures", "kucoin",
	"kucoinfutures", "lbank", "mexc", "okx", "phemex", "poloniex", "whitebit", "woo",
}

// 可通过币安U本位接口直接获取实时费用的交易所ID
var liveExchanges = map[string]bool{"binance": true, "binanceusdm": true}

var quoteAssets = []string{"USDT", "USDC", "FDUSD", "BUSD"}

// ResolveExchange 自动纠正交易所名称拼写。找不到足够相似的名称时原样返回（小写）。
func ResolveExchange(name string, logger *zap.Logger) string {
	name = strings.ToLower(strings.TrimSpace(name))
	best, bestRatio := "", 0.0
	for _, id := range knownExchanges {
		if id == name {
			return name
		}
		if r := similarity(name, id); r > bestRatio {
			best, bestRatio = id, r
		}
	}
	if bestRatio >= autoCorrectCutoff {
		logger.Warn("交易所名称未找到，已自动纠正", zap.String("input", name), zap.String("corrected", best))
		return best
	}
	return name
}

// NormalizeSymbol 将 BTC、BTC/USDT、btc-usdt、BTC/USDT:USDT 等写法统一为 BTCUSDT
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if base, quote, ok := strings.Cut(s, sep); ok {
			return base + quote
		}
	}
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s
		}
	}
	return s + "USDT"
}

// NewFeeProvider 为本次运行选择费用提供者。
// 币安且未配置手动费率时使用实时接口；其余情况使用手动提供者，并以币安公开行情作为参考源。
func NewFeeProvider(cfg *models.Config, prompt FeePrompt, logger *zap.Logger) FeeProvider {
	live := NewLiveFeeProvider(cfg.APIKey, cfg.SecretKey, cfg.BaseURL, logger)
	manual := cfg.ManualFees.MakerFeePct != nil && cfg.ManualFees.TakerFeePct != nil

	if liveExchanges[cfg.Exchange] && !manual {
		logger.Info("使用实时费用数据", zap.String("exchange", cfg.Exchange))
		return live
	}
	logger.Info("使用手动费用数据（离线模式），资金费率与价差参考币安", zap.String("exchange", cfg.Exchange))
	return NewManualFeeProvider(cfg.ManualFees.MakerFeePct, cfg.ManualFees.TakerFeePct, prompt, live, logger)
}

// similarity 返回 Ratcliff/Obershelp 相似度 2*M/T
func similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	return 2 * float64(matchingChars(a, b)) / float64(len(a)+len(b))
}

func matchingChars(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	// 最长公共子串
	bestLen, ai, bi := 0, 0, 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > bestLen {
				bestLen, ai, bi = k, i, j
			}
		}
	}
	if bestLen == 0 {
		return 0
	}
	return bestLen + matchingChars(a[:ai], b[:bi]) + matchingChars(a[ai+bestLen:], b[bi+bestLen:])
}
