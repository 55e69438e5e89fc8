// Package exchange resolves the fee structure for a run. A FeeProvider is
// selected once per run by NewFeeProvider; the optimizer only ever sees the
// resolved models.FeeStructure.
package exchange

import (
	"context"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
)

// 币安U本位合约标准费率档位与资金费率的兜底值
const (
	standardMakerFee     = 0.0002
	standardTakerFee     = 0.0005
	defaultFundingRate   = 0.0001
	defaultFundingPeriod = 8.0 // 小时
)

// FeeProvider 定义了费用数据来源必须提供的方法
type FeeProvider interface {
	FetchFees(ctx context.Context, symbol string) (models.FeeStructure, error)
}

// Interactive 由需要用户输入的费用提供者实现。
// Prepare 必须在任何带超时的数据获取之前调用，输入不受请求超时限制。
type Interactive interface {
	Prepare(ctx context.Context) error
}

// MarketReference 提供资金费率、价差与最新价格等公开行情数据
type MarketReference interface {
	FetchMarket(ctx context.Context, symbol string) (MarketSnapshot, error)
}

// MarketSnapshot 是公开行情数据的快照
type MarketSnapshot struct {
	LastPrice            float64
	Spread               float64
	FundingRate          float64
	FundingIntervalHours float64
}
