package models

// Config 结构体定义了优化器的所有配置参数
type Config struct {
	Exchange       string   `json:"exchange" yaml:"exchange"`               // 交易所ID，如 "binance"
	Symbol         string   `json:"symbol" yaml:"symbol"`                   // 交易对，如 "BTCUSDT" 或 "BTC/USDT"
	HorizonDays    int      `json:"horizon_days" yaml:"horizon_days"`       // 网格运行周期（天）
	LookbackDays   int      `json:"lookback_days" yaml:"lookback_days"`     // 历史统计回看天数
	PositionSide   string   `json:"position_side" yaml:"position_side"`     // 持仓方向: long 或 short
	AccountSize    float64  `json:"account_size" yaml:"account_size"`       // 账户资金 (USDT)，为0时计算最低所需资金
	FixedNotional  float64  `json:"fixed_notional" yaml:"fixed_notional"`   // 固定名义价值 (USDT)，与 account_size 互斥
	WinProbability *float64 `json:"win_probability" yaml:"win_probability"` // 胜率，必须显式提供

	// 优化器参数
	ConfidenceZ           float64 `json:"confidence_z" yaml:"confidence_z"`                       // 波动锥宽度倍数
	NoiseMultiplier       float64 `json:"noise_multiplier" yaml:"noise_multiplier"`               // ATR 噪音缓冲倍数
	SafetyEpsilon         float64 `json:"safety_epsilon" yaml:"safety_epsilon"`                   // 爆仓价与止损价的最小间隔（入场价比例）
	MaintenanceMarginRate float64 `json:"maintenance_margin_rate" yaml:"maintenance_margin_rate"` // 维持保证金率，0表示使用交易所返回值
	LeverageCap           float64 `json:"leverage_cap" yaml:"leverage_cap"`                       // 杠杆上限，0表示使用交易所返回值或不限制
	LeverageStep          float64 `json:"leverage_step" yaml:"leverage_step"`                     // 杠杆步长，1表示只允许整数杠杆
	FractionalKelly       float64 `json:"fractional_kelly" yaml:"fractional_kelly"`               // 凯利系数缩放
	FeeAdjustedEdge       bool    `json:"fee_adjusted_edge" yaml:"fee_adjusted_edge"`             // 盈亏比是否扣除手续费

	Neutral     bool  `json:"neutral" yaml:"neutral"`           // 中性模式：忽略历史漂移
	AutoNeutral *bool `json:"auto_neutral" yaml:"auto_neutral"` // 检测到看跌漂移时自动切换中性模式（默认开启）

	ManualFees ManualFeeConfig `json:"manual_fees" yaml:"manual_fees"` // 手动手续费（离线模式）
	Grid       GridConfig      `json:"grid" yaml:"grid"`               // 网格参数

	PriceSource       string `json:"price_source" yaml:"price_source"`               // 现价来源: kline, ticker, stream
	DataDir           string `json:"data_dir" yaml:"data_dir"`                       // K线缓存目录
	DBPath            string `json:"db_path" yaml:"db_path"`                         // 运行记录数据库路径，为空则不保存
	MetricsFile       string `json:"metrics_file" yaml:"metrics_file"`               // Prometheus 文本指标输出路径
	IsTestnet         bool   `json:"is_testnet" yaml:"is_testnet"`                   // 是否使用测试网
	LiveAPIURL        string `json:"live_api_url" yaml:"live_api_url"`               // 合约 REST 地址
	TestnetAPIURL     string `json:"testnet_api_url" yaml:"testnet_api_url"`         // 测试网合约 REST 地址
	LiveWSURL         string `json:"live_ws_url" yaml:"live_ws_url"`                 // 合约 WebSocket 地址
	TestnetWSURL      string `json:"testnet_ws_url" yaml:"testnet_ws_url"`           // 测试网合约 WebSocket 地址
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"` // 外部数据获取超时（秒）

	LogConfig LogConfig `json:"log" yaml:"log"` // 日志配置

	// 以下字段由程序运行时设置
	APIKey    string `json:"-" yaml:"-"`
	SecretKey string `json:"-" yaml:"-"`
	BaseURL   string `json:"-" yaml:"-"`
	WSBaseURL string `json:"-" yaml:"-"`
}

// ManualFeeConfig 手动输入的手续费（百分比，如 0.02 表示 0.02%）
type ManualFeeConfig struct {
	MakerFeePct *float64 `json:"maker_fee_pct" yaml:"maker_fee_pct"`
	TakerFeePct *float64 `json:"taker_fee_pct" yaml:"taker_fee_pct"`
}

// GridConfig 网格间距与最低资金相关参数
type GridConfig struct {
	MinProfitShare     float64 `json:"min_profit_share" yaml:"min_profit_share"`         // 手续费后至少保留的利润比例
	MinOrderSize       float64 `json:"min_order_size" yaml:"min_order_size"`             // 交易所最小订单名义价值 (USDT)
	StepVolatilityDays float64 `json:"step_volatility_days" yaml:"step_volatility_days"` // 计算网格间距所用的波动率窗口（天）
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}
