package models

import "time"

// DaysPerYear 加密货币全年交易，年化使用365天
const DaysPerYear = 365.0

// Side 定义了持仓方向
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// ParseSide 将配置中的字符串转换为持仓方向，空字符串默认为多头
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case Long, "":
		return Long, true
	case Short:
		return Short, true
	}
	return "", false
}

// MarketStatistics 是一次运行所用的市场统计快照（不可变）
type MarketStatistics struct {
	Symbol     string  `json:"symbol"`
	SpotPrice  float64 `json:"spot_price"` // S0
	Drift      float64 `json:"drift"`      // 年化漂移 μ
	Volatility float64 `json:"volatility"` // 年化波动率 σ
	ATR        float64 `json:"atr"`        // 平均真实波幅（价格单位）
	Horizon    float64 `json:"horizon"`    // 周期 T（年）

	DailyDrift      float64   `json:"daily_drift"`
	DailyVolatility float64   `json:"daily_volatility"`
	Samples         int       `json:"samples"`
	AsOf            time.Time `json:"as_of"`
}

// HorizonDays 返回以天为单位的周期
func (m MarketStatistics) HorizonDays() float64 {
	return m.Horizon * DaysPerYear
}

// FeeSource 标记手续费数据的来源
type FeeSource string

const (
	FeeSourceLive      FeeSource = "live"
	FeeSourceManual    FeeSource = "manual"
	FeeSourceReference FeeSource = "reference"
	FeeSourceDefault   FeeSource = "default"
)

// FeeStructure 是一次运行所用的费用快照（不可变），所有费率均为小数
type FeeStructure struct {
	MakerFee             float64   `json:"maker_fee"`
	TakerFee             float64   `json:"taker_fee"`
	FundingRate          float64   `json:"funding_rate"`           // 每个资金费周期的费率
	FundingIntervalHours float64   `json:"funding_interval_hours"` // 资金费周期（小时）
	Spread               float64   `json:"spread"`                 // (ask-bid)/ask
	FeeSource            FeeSource `json:"fee_source"`
	MarketSource         FeeSource `json:"market_source"` // 资金费率与价差的来源

	// 交易所返回的可选参考值，0表示未知
	LastPrice             float64 `json:"last_price,omitempty"`
	MaintenanceMarginRate float64 `json:"maintenance_margin_rate,omitempty"`
	MaxLeverage           float64 `json:"max_leverage,omitempty"`
}
