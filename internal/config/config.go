package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/optimizer"
	"gopkg.in/yaml.v3"
)

const (
	defaultExchange       = "binance"
	defaultHorizonDays    = 7
	defaultLookbackDays   = 90
	defaultRequestTimeout = 15
	defaultLiveAPIURL     = "https://fapi.binance.com"
	defaultTestnetAPIURL  = "https://testnet.binancefuture.com"
	defaultLiveWSURL      = "wss://fstream.binance.com/ws"
	defaultTestnetWSURL   = "wss://stream.binancefuture.com/ws"
)

// 合法的现价来源
var priceSources = map[string]bool{"kline": true, "ticker": true, "stream": true}

// LoadConfig 从指定路径加载配置文件并解析到Config结构体中
// 根据扩展名选择格式：.yaml/.yml 使用YAML，其余按JSON解析
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析YAML配置失败: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析JSON配置失败: %w", err)
		}
	}
	return config, nil
}

// ApplyDefaults 为未设置的字段填充默认值
func ApplyDefaults(cfg *models.Config) {
	defaults := optimizer.DefaultOptions()

	if cfg.Exchange == "" {
		cfg.Exchange = defaultExchange
	}
	if cfg.HorizonDays == 0 {
		cfg.HorizonDays = defaultHorizonDays
	}
	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	if cfg.PositionSide == "" {
		cfg.PositionSide = string(models.Long)
	}
	if cfg.ConfidenceZ == 0 {
		cfg.ConfidenceZ = defaults.ConfidenceZ
	}
	if cfg.NoiseMultiplier == 0 {
		cfg.NoiseMultiplier = defaults.NoiseMultiplier
	}
	if cfg.SafetyEpsilon == 0 {
		cfg.SafetyEpsilon = defaults.SafetyEpsilon
	}
	if cfg.FractionalKelly == 0 {
		cfg.FractionalKelly = defaults.FractionalKelly
	}
	if cfg.AutoNeutral == nil {
		on := true
		cfg.AutoNeutral = &on
	}
	if cfg.Grid.MinProfitShare == 0 {
		cfg.Grid.MinProfitShare = defaults.Grid.MinProfitShare
	}
	if cfg.Grid.MinOrderSize == 0 {
		cfg.Grid.MinOrderSize = defaults.Grid.MinOrderSize
	}
	if cfg.Grid.StepVolatilityDays == 0 {
		cfg.Grid.StepVolatilityDays = 1
	}
	if cfg.PriceSource == "" {
		cfg.PriceSource = "ticker"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.RequestTimeoutSec == 0 {
		cfg.RequestTimeoutSec = defaultRequestTimeout
	}
	if cfg.LiveAPIURL == "" {
		cfg.LiveAPIURL = defaultLiveAPIURL
	}
	if cfg.TestnetAPIURL == "" {
		cfg.TestnetAPIURL = defaultTestnetAPIURL
	}
	if cfg.LiveWSURL == "" {
		cfg.LiveWSURL = defaultLiveWSURL
	}
	if cfg.TestnetWSURL == "" {
		cfg.TestnetWSURL = defaultTestnetWSURL
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

// ApplyEnv 用环境变量覆盖配置（通常由 .env 文件加载）
func ApplyEnv(cfg *models.Config) {
	cfg.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.APIKey)
	cfg.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.SecretKey)
	cfg.DBPath = getEnvOrDefault("OPTIMIZER_DB_PATH", cfg.DBPath)
	cfg.MetricsFile = getEnvOrDefault("OPTIMIZER_METRICS_FILE", cfg.MetricsFile)
	cfg.LogConfig.Level = getEnvOrDefault("OPTIMIZER_LOG_LEVEL", cfg.LogConfig.Level)
	cfg.IsTestnet = getBoolFromEnvOrConfig("OPTIMIZER_TESTNET", cfg.IsTestnet)
}

// ResolveEndpoints 根据是否使用测试网设置运行时的 REST 与 WebSocket 地址
func ResolveEndpoints(cfg *models.Config) {
	if cfg.IsTestnet {
		cfg.BaseURL = cfg.TestnetAPIURL
		cfg.WSBaseURL = cfg.TestnetWSURL
		return
	}
	cfg.BaseURL = cfg.LiveAPIURL
	cfg.WSBaseURL = cfg.LiveWSURL
}

// Validate 检查配置，返回发现的第一个错误
func Validate(cfg *models.Config) error {
	if strings.TrimSpace(cfg.Symbol) == "" {
		return fmt.Errorf("symbol 不能为空")
	}
	if cfg.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days (%d) 必须大于0", cfg.HorizonDays)
	}
	if cfg.LookbackDays < 2 {
		return fmt.Errorf("lookback_days (%d) 至少为2", cfg.LookbackDays)
	}
	if _, ok := models.ParseSide(cfg.PositionSide); !ok {
		return fmt.Errorf("position_side %q 无效，必须是 long 或 short", cfg.PositionSide)
	}
	if cfg.WinProbability == nil {
		return fmt.Errorf("win_probability 必须显式提供")
	}
	if !priceSources[cfg.PriceSource] {
		return fmt.Errorf("price_source %q 无效，必须是 kline、ticker 或 stream", cfg.PriceSource)
	}
	if cfg.RequestTimeoutSec < 0 {
		return fmt.Errorf("request_timeout_sec (%d) 不能为负数", cfg.RequestTimeoutSec)
	}
	if m := cfg.ManualFees; (m.MakerFeePct == nil) != (m.TakerFeePct == nil) {
		return fmt.Errorf("manual_fees 需要同时提供 maker_fee_pct 与 taker_fee_pct")
	}
	if m := cfg.ManualFees; m.MakerFeePct != nil && (*m.MakerFeePct < 0 || *m.TakerFeePct < 0) {
		return fmt.Errorf("manual_fees 不能为负数")
	}
	if cfg.Grid.StepVolatilityDays < 0 {
		return fmt.Errorf("grid.step_volatility_days (%f) 不能为负数", cfg.Grid.StepVolatilityDays)
	}

	opts, err := ToOptions(cfg)
	if err != nil {
		return err
	}
	return opts.Validate()
}

// ToOptions 将配置转换为优化器参数
func ToOptions(cfg *models.Config) (optimizer.Options, error) {
	side, ok := models.ParseSide(cfg.PositionSide)
	if !ok {
		return optimizer.Options{}, fmt.Errorf("%w: position side %q", optimizer.ErrInvalidOptions, cfg.PositionSide)
	}
	if cfg.WinProbability == nil {
		return optimizer.Options{}, fmt.Errorf("%w: win probability is required", optimizer.ErrInvalidOptions)
	}

	return optimizer.Options{
		ConfidenceZ:           cfg.ConfidenceZ,
		NoiseMultiplier:       cfg.NoiseMultiplier,
		SafetyEpsilon:         cfg.SafetyEpsilon,
		MaintenanceMarginRate: cfg.MaintenanceMarginRate,
		LeverageCap:           cfg.LeverageCap,
		LeverageStep:          cfg.LeverageStep,
		Side:                  side,
		AccountSize:           cfg.AccountSize,
		FixedNotional:         cfg.FixedNotional,
		WinProbability:        *cfg.WinProbability,
		FractionalKelly:       cfg.FractionalKelly,
		FeeAdjustedEdge:       cfg.FeeAdjustedEdge,
		Grid: optimizer.GridOptions{
			MinProfitShare: cfg.Grid.MinProfitShare,
			MinOrderSize:   cfg.Grid.MinOrderSize,
			StepWindow:     cfg.Grid.StepVolatilityDays / models.DaysPerYear,
		},
	}, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getBoolFromEnvOrConfig(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
