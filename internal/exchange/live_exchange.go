package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LiveFeeProvider 通过币安U本位合约接口获取实时费用数据。
// 任何单项数据获取失败都只记录警告并使用兜底值，不会中断运行。
type LiveFeeProvider struct {
	client  *futures.Client
	hasKeys bool
	logger  *zap.Logger
}

// NewLiveFeeProvider 创建一个新的 LiveFeeProvider 实例，baseURL 为空时使用币安默认地址
func NewLiveFeeProvider(apiKey, secretKey, baseURL string, logger *zap.Logger) *LiveFeeProvider {
	client := futures.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &LiveFeeProvider{
		client:  client,
		hasKeys: apiKey != "" && secretKey != "",
		logger:  logger,
	}
}

// FetchFees 实现 FeeProvider 接口
func (p *LiveFeeProvider) FetchFees(ctx context.Context, symbol string) (models.FeeStructure, error) {
	fees := models.FeeStructure{
		MakerFee:             standardMakerFee,
		TakerFee:             standardTakerFee,
		FundingRate:          defaultFundingRate,
		FundingIntervalHours: defaultFundingPeriod,
		FeeSource:            models.FeeSourceDefault,
		MarketSource:         models.FeeSourceDefault,
	}

	market, err := p.FetchMarket(ctx, symbol)
	switch {
	case ctx.Err() != nil:
		return models.FeeStructure{}, ctx.Err()
	case err != nil:
		p.logger.Warn("无法获取行情数据，使用默认资金费率与零价差", zap.String("symbol", symbol), zap.Error(err))
	default:
		fees.LastPrice = market.LastPrice
		fees.Spread = market.Spread
		fees.FundingRate = market.FundingRate
		fees.FundingIntervalHours = market.FundingIntervalHours
		fees.MarketSource = models.FeeSourceLive
	}

	if !p.hasKeys {
		p.logger.Info("未配置API密钥，使用标准档位手续费",
			zap.Float64("maker", standardMakerFee), zap.Float64("taker", standardTakerFee))
		return fees, nil
	}

	if maker, taker, err := p.commission(ctx, symbol); err != nil {
		p.logger.Warn("获取账户手续费失败，使用标准档位", zap.String("symbol", symbol), zap.Error(err))
	} else {
		fees.MakerFee, fees.TakerFee = maker, taker
		fees.FeeSource = models.FeeSourceLive
	}

	if mmr, maxLev, err := p.bracket(ctx, symbol); err != nil {
		p.logger.Warn("获取杠杆分层失败", zap.String("symbol", symbol), zap.Error(err))
	} else {
		fees.MaintenanceMarginRate = mmr
		fees.MaxLeverage = maxLev
	}

	if ctx.Err() != nil {
		return models.FeeStructure{}, ctx.Err()
	}
	return fees, nil
}

// FetchMarket 并发获取价差、资金费率、资金费周期与最新价格，各项独立降级；价差、资金费率与价格全部失败时返回错误
func (p *LiveFeeProvider) FetchMarket(ctx context.Context, symbol string) (MarketSnapshot, error) {
	snap := MarketSnapshot{FundingRate: defaultFundingRate, FundingIntervalHours: defaultFundingPeriod}
	var spreadErr, fundingErr, priceErr error

	var g errgroup.Group
	g.Go(func() error {
		snap.Spread, spreadErr = p.spread(ctx, symbol)
		return nil
	})
	g.Go(func() error {
		var rate float64
		if rate, fundingErr = p.funding(ctx, symbol); fundingErr == nil {
			snap.FundingRate = rate
		}
		return nil
	})
	g.Go(func() error {
		snap.LastPrice, priceErr = p.lastPrice(ctx, symbol)
		return nil
	})
	g.Go(func() error {
		if hours, err := p.fundingInterval(ctx, symbol); err != nil {
			p.logger.Warn("资金费周期获取失败，使用默认值", zap.String("symbol", symbol), zap.Error(err))
		} else {
			snap.FundingIntervalHours = hours
		}
		return nil
	})
	_ = g.Wait()

	for name, err := range map[string]error{"book ticker": spreadErr, "premium index": fundingErr, "ticker price": priceErr} {
		if err != nil {
			p.logger.Warn("行情数据获取失败", zap.String("source", name), zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if spreadErr != nil && fundingErr != nil && priceErr != nil {
		return MarketSnapshot{}, errors.Join(spreadErr, fundingErr, priceErr)
	}
	return snap, nil
}

func (p *LiveFeeProvider) spread(ctx context.Context, symbol string) (float64, error) {
	tickers, err := p.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	t, err := findBySymbol(tickers, symbol, func(t *futures.BookTicker) string { return t.Symbol })
	if err != nil {
		return 0, err
	}
	bid, errB := strconv.ParseFloat(t.BidPrice, 64)
	ask, errA := strconv.ParseFloat(t.AskPrice, 64)
	if errB != nil || errA != nil {
		return 0, fmt.Errorf("无法解析买卖价: bid=%q ask=%q", t.BidPrice, t.AskPrice)
	}
	if ask <= 0 || bid <= 0 {
		return 0, nil
	}
	return (ask - bid) / ask, nil
}

func (p *LiveFeeProvider) funding(ctx context.Context, symbol string) (float64, error) {
	indexes, err := p.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	idx, err := findBySymbol(indexes, symbol, func(i *futures.PremiumIndex) string { return i.Symbol })
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(idx.LastFundingRate, 64)
}

// fundingInterval 返回资金费周期（小时）。fundingInfo 只列出调整过参数的交易对，
// 不在列表中的交易对使用默认的8小时
func (p *LiveFeeProvider) fundingInterval(ctx context.Context, symbol string) (float64, error) {
	infos, err := p.client.NewFundingRateInfoService().Do(ctx)
	if err != nil {
		return 0, err
	}
	info, err := findBySymbol(infos, symbol, func(i *futures.FundingRateInfo) string { return i.Symbol })
	if err != nil || info.FundingIntervalHours <= 0 {
		return defaultFundingPeriod, nil
	}
	return float64(info.FundingIntervalHours), nil
}

func (p *LiveFeeProvider) lastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	sp, err := findBySymbol(prices, symbol, func(s *futures.SymbolPrice) string { return s.Symbol })
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(sp.Price, 64)
}

func (p *LiveFeeProvider) commission(ctx context.Context, symbol string) (maker, taker float64, err error) {
	rate, err := p.client.NewCommissionRateService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	maker, errM := strconv.ParseFloat(rate.MakerCommissionRate, 64)
	taker, errT := strconv.ParseFloat(rate.TakerCommissionRate, 64)
	if errM != nil || errT != nil {
		return 0, 0, fmt.Errorf("无法解析手续费: maker=%q taker=%q", rate.MakerCommissionRate, rate.TakerCommissionRate)
	}
	return maker, taker, nil
}

// bracket 返回第一档（最小名义价值）的维持保证金率与最大杠杆
func (p *LiveFeeProvider) bracket(ctx context.Context, symbol string) (mmr, maxLeverage float64, err error) {
	brackets, err := p.client.NewGetLeverageBracketService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	lb, err := findBySymbol(brackets, symbol, func(b *futures.LeverageBracket) string { return b.Symbol })
	if err != nil {
		return 0, 0, err
	}
	if len(lb.Brackets) == 0 {
		return 0, 0, fmt.Errorf("%s 没有杠杆分层数据", symbol)
	}
	first := lb.Brackets[0]
	for _, b := range lb.Brackets[1:] {
		if b.NotionalFloor < first.NotionalFloor {
			first = b
		}
	}
	return first.MaintMarginRatio, float64(first.InitialLeverage), nil
}

func findBySymbol[T any](items []*T, symbol string, key func(*T) string) (*T, error) {
	for _, item := range items {
		if item != nil && key(item) == symbol {
			return item, nil
		}
	}
	return nil, fmt.Errorf("响应中没有 %s 的数据", symbol)
}
