package models

// Status 是优化结果的状态
type Status string

const (
	StatusOK                      Status = "OK"
	StatusStopInvalidRiskDistance Status = "STOP_INVALID_RISK_DISTANCE"
	StatusStopUnsafeLeverage      Status = "STOP_UNSAFE_LEVERAGE"
	StatusStopNegativeEdge        Status = "STOP_NEGATIVE_EDGE"
)

// IsStop 判断是否为终止状态
func (s Status) IsStop() bool {
	return s != StatusOK
}

// Stage 表示流水线所处的阶段
type Stage string

const (
	StageInit     Stage = "INIT"
	StageCone     Stage = "CONE"
	StageBoundary Stage = "BOUNDARY"
	StageLeverage Stage = "LEVERAGE"
	StageEdge     Stage = "EDGE"
	StageDone     Stage = "DONE"
)

// VolatilityCone 基于GBM的价格概率区间
type VolatilityCone struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// RiskBoundary 止损/止盈价格对
type RiskBoundary struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Side       Side    `json:"side"`
}

// LeverageSolution 反解得到的保证金与杠杆
type LeverageSolution struct {
	Margin                      float64 `json:"margin"`
	Notional                    float64 `json:"notional"`
	Leverage                    float64 `json:"leverage"`
	MaxLeverage                 float64 `json:"max_leverage"`
	LiquidationPrice            float64 `json:"liquidation_price"`
	RiskDistanceFraction        float64 `json:"risk_distance_fraction"`
	RoundTripFeeFraction        float64 `json:"round_trip_fee_fraction"`
	LiquidationDistanceFraction float64 `json:"liquidation_distance_fraction"`
	MinimumCapital              bool    `json:"minimum_capital"` // 未提供资金时使用网格最低所需资金
}

// KellyAssessment 凯利公式评估结果
type KellyAssessment struct {
	WinProbability float64 `json:"win_probability"`
	RewardToRisk   float64 `json:"reward_to_risk"`
	KellyFraction  float64 `json:"kelly_fraction"`
	SizingFraction float64 `json:"sizing_fraction"`
}

// GridPlan 网格间距、数量与最低资金
type GridPlan struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Step       float64 `json:"step"`
	Lines      int     `json:"lines"`
	MinCapital float64 `json:"min_capital"`
}

// GridBotParameterSet 是优化器的最终输出
// Status 为 OK 时包含完整的数值结果；为 STOP 时包含原因与触发阶段的诊断数据
type GridBotParameterSet struct {
	Status      Status             `json:"status"`
	Stage       Stage              `json:"stage"`
	Reason      string             `json:"reason,omitempty"`
	EntryPrice  float64            `json:"entry_price"`
	Cone        *VolatilityCone    `json:"cone,omitempty"`
	Boundary    *RiskBoundary      `json:"boundary,omitempty"`
	Leverage    *LeverageSolution  `json:"leverage,omitempty"`
	Kelly       *KellyAssessment   `json:"kelly,omitempty"`
	Grid        *GridPlan          `json:"grid,omitempty"`
	Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
}
