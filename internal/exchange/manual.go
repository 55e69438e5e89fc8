package exchange

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"go.uber.org/zap"
)

// ErrNoManualFees 表示手动模式下既没有配置手续费，也无法交互输入
var ErrNoManualFees = errors.New("manual maker/taker fees are required")

// FeePrompt 交互式询问 maker/taker 手续费，返回小数形式
type FeePrompt func(ctx context.Context) (maker, taker float64, err error)

// ManualFeeProvider 用于无法获取实时手续费的交易所（离线模式）。
// 手续费来自配置或交互输入；资金费率、价差与价格来自参考行情源，失败时使用兜底值。
type ManualFeeProvider struct {
	makerFee  *float64
	takerFee  *float64
	prompt    FeePrompt
	reference MarketReference
	logger    *zap.Logger
}

// NewManualFeeProvider 创建手动费用提供者。makerPct/takerPct 为百分比（0.02 表示 0.02%），
// 两者为 nil 时在 FetchFees 中调用 prompt。reference 可以为 nil。
func NewManualFeeProvider(makerPct, takerPct *float64, prompt FeePrompt, reference MarketReference, logger *zap.Logger) *ManualFeeProvider {
	p := &ManualFeeProvider{prompt: prompt, reference: reference, logger: logger}
	if makerPct != nil && takerPct != nil {
		maker, taker := *makerPct/100, *takerPct/100
		p.makerFee, p.takerFee = &maker, &taker
	}
	return p
}

// Prepare 实现 Interactive 接口：未配置手续费时立即交互询问并缓存结果，
// 之后的 FetchFees 不再读取输入
func (p *ManualFeeProvider) Prepare(ctx context.Context) error {
	if p.makerFee != nil || p.prompt == nil {
		return nil
	}
	maker, taker, err := p.prompt(ctx)
	if err != nil {
		return err
	}
	p.makerFee, p.takerFee = &maker, &taker
	return nil
}

// FetchFees 实现 FeeProvider 接口
func (p *ManualFeeProvider) FetchFees(ctx context.Context, symbol string) (models.FeeStructure, error) {
	fees := models.FeeStructure{
		FundingRate:          defaultFundingRate,
		FundingIntervalHours: defaultFundingPeriod,
		FeeSource:            models.FeeSourceManual,
		MarketSource:         models.FeeSourceDefault,
	}

	if p.reference != nil {
		market, err := p.reference.FetchMarket(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return models.FeeStructure{}, ctx.Err()
			}
			p.logger.Warn("参考行情获取失败，使用兜底资金费率与零价差", zap.String("symbol", symbol), zap.Error(err))
		} else {
			fees.LastPrice = market.LastPrice
			fees.Spread = market.Spread
			fees.FundingRate = market.FundingRate
			fees.FundingIntervalHours = market.FundingIntervalHours
			fees.MarketSource = models.FeeSourceReference
			p.logger.Info("已从参考行情源获取资金费率与价差", zap.String("symbol", symbol))
		}
	}

	switch {
	case p.makerFee != nil:
		fees.MakerFee, fees.TakerFee = *p.makerFee, *p.takerFee
	case p.prompt != nil:
		maker, taker, err := p.prompt(ctx)
		if err != nil {
			return models.FeeStructure{}, err
		}
		fees.MakerFee, fees.TakerFee = maker, taker
	default:
		return models.FeeStructure{}, ErrNoManualFees
	}
	return fees, nil
}

// NewStdinPrompt 返回一个从 in 读取、向 out 提示的 FeePrompt。
// 输入为百分比，无效输入会重新询问，直到读到合法数值或输入结束。
func NewStdinPrompt(in io.Reader, out io.Writer, exchange string) FeePrompt {
	scanner := bufio.NewScanner(in)
	ask := func(label string) (float64, error) {
		for {
			fmt.Fprintf(out, "   Enter %s Fee (%%) for %s (e.g. 0.05): ", label, exchange)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return 0, err
				}
				return 0, fmt.Errorf("%w: input closed", ErrNoManualFees)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
			if err == nil && v >= 0 {
				return v / 100, nil
			}
			fmt.Fprintln(out, "   Invalid input. Please enter a non-negative number (e.g. 0.05).")
		}
	}

	return func(ctx context.Context) (float64, float64, error) {
		fmt.Fprintln(out, "\nEXCHANGE FEE DATA NOT AVAILABLE")
		fmt.Fprintln(out, "   Please input the fee tier for your exchange manually.")
		maker, err := ask("Maker")
		if err != nil {
			return 0, 0, err
		}
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		taker, err := ask("Taker")
		if err != nil {
			return 0, 0, err
		}
		fmt.Fprintf(out, "   -> Using Maker: %.4f | Taker: %.4f\n\n", maker, taker)
		return maker, taker, nil
	}
}
