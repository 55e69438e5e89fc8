package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/config"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/exchange"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/logger"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/market"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/metrics"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/models"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/persistence"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/planner"
	"github.com/genes3e7/Closed-Loop-Leverage-Grid-Bot-Optimizer/internal/reporter"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "config.json"

// 退出码
const (
	exitOK   = 0
	exitFail = 1
	exitStop = 2
)

// cliFlags 命令行参数，只有显式设置的参数才会覆盖配置文件
type cliFlags struct {
	configPath  string
	symbol      string
	exchange    string
	days        int
	portfolio   float64
	notional    float64
	side        string
	winRate     float64
	neutral     bool
	jsonOutput  bool
	priceSource string
	dbPath      string
	replay      string
	history     int

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	f := &cliFlags{set: map[string]bool{}}
	fs := flag.NewFlagSet("optimizer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", defaultConfigPath, "path to the config file (.json or .yaml)")
	fs.StringVar(&f.symbol, "symbol", "", "symbol to optimize (e.g., BTCUSDT or BTC/USDT)")
	fs.StringVar(&f.exchange, "exchange", "", "exchange id (e.g., binance)")
	fs.IntVar(&f.days, "days", 0, "grid horizon in days")
	fs.Float64Var(&f.portfolio, "portfolio", 0, "account size in USDT; 0 recommends the minimum capital")
	fs.Float64Var(&f.notional, "notional", 0, "fixed position notional in USDT")
	fs.StringVar(&f.side, "side", "", "position side: long or short")
	fs.Float64Var(&f.winRate, "win-rate", 0, "win probability in [0,1] (required)")
	fs.BoolVar(&f.neutral, "neutral", false, "ignore historical drift")
	fs.BoolVar(&f.jsonOutput, "json", false, "print the full result as JSON")
	fs.StringVar(&f.priceSource, "price-source", "", "entry price source: kline, ticker or stream")
	fs.StringVar(&f.dbPath, "db", "", "path to the run database")
	fs.StringVar(&f.replay, "replay", "", "recompute a stored run by id, or 'latest'")
	fs.IntVar(&f.history, "history", 0, "list the N most recent stored runs")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	// 位置参数作为交易对，例如: optimizer BTC/USDT
	if rest := fs.Args(); len(rest) > 0 && !f.set["symbol"] {
		f.symbol = rest[0]
		f.set["symbol"] = true
	}
	return f, nil
}

// apply 用命令行参数覆盖配置
func (f *cliFlags) apply(cfg *models.Config) {
	if f.set["symbol"] {
		cfg.Symbol = f.symbol
	}
	if f.set["exchange"] {
		cfg.Exchange = f.exchange
	}
	if f.set["days"] {
		cfg.HorizonDays = f.days
	}
	if f.set["portfolio"] {
		cfg.AccountSize = f.portfolio
		cfg.FixedNotional = 0
	}
	if f.set["notional"] {
		cfg.FixedNotional = f.notional
		cfg.AccountSize = 0
	}
	if f.set["side"] {
		cfg.PositionSide = strings.ToLower(f.side)
	}
	if f.set["win-rate"] {
		p := f.winRate
		cfg.WinProbability = &p
	}
	if f.set["neutral"] {
		cfg.Neutral = f.neutral
	}
	if f.set["price-source"] {
		cfg.PriceSource = f.priceSource
	}
	if f.set["db"] {
		cfg.DBPath = f.dbPath
	}
}

// loadConfig 加载配置文件；默认路径不存在时使用内置默认值
func loadConfig(f *cliFlags) (*models.Config, error) {
	cfg := &models.Config{}
	if _, err := os.Stat(f.configPath); err == nil {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if f.set["config"] {
		return nil, fmt.Errorf("配置文件 %s 不存在: %w", f.configPath, err)
	}

	config.ApplyDefaults(cfg)
	config.ApplyEnv(cfg)
	f.apply(cfg)
	config.ResolveEndpoints(cfg)
	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFail
	}

	// --- 初始化日志 (提前) ---
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Debug("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.S().Errorf("无法加载配置文件: %v", err)
		return exitFail
	}

	// --- 使用配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.history > 0:
		return runHistory(cfg, flags.history, stdout)
	case flags.replay != "":
		return runReplay(cfg, flags.replay, flags.jsonOutput, stdout)
	}
	return runOptimize(ctx, cfg, flags.jsonOutput, stdin, stdout, stderr)
}

// runOptimize 采集数据、求解参数并输出报告
func runOptimize(ctx context.Context, cfg *models.Config, jsonOutput bool, stdin io.Reader, stdout, stderr io.Writer) int {
	if err := config.Validate(cfg); err != nil {
		logger.S().Errorf("配置无效: %v", err)
		return exitFail
	}
	cfg.Exchange = exchange.ResolveExchange(cfg.Exchange, logger.S().Desugar())
	cfg.Symbol = exchange.NormalizeSymbol(cfg.Symbol)

	opts, err := config.ToOptions(cfg)
	if err != nil {
		logger.S().Errorf("配置无效: %v", err)
		return exitFail
	}

	zl := logger.S().Desugar()
	recorder := metrics.New()
	plannerOpts := []planner.Option{
		planner.WithMetrics(recorder),
		planner.WithTimeout(time.Duration(cfg.RequestTimeoutSec) * time.Second),
	}

	if cfg.PriceSource == planner.PriceSourceStream {
		wsURL := cfg.WSBaseURL
		plannerOpts = append(plannerOpts, planner.WithSpotSource(func(ctx context.Context, symbol string) (float64, error) {
			return market.StreamSpotPrice(ctx, wsURL, symbol)
		}))
	}

	if cfg.DBPath != "" {
		repo, err := persistence.NewBadgerRepository(cfg.DBPath)
		if err != nil {
			logger.S().Errorf("打开运行记录数据库失败: %v", err)
			return exitFail
		}
		defer repo.Close()
		plannerOpts = append(plannerOpts, planner.WithRepository(repo))
	}

	prompt := exchange.NewStdinPrompt(stdin, stderr, cfg.Exchange)
	p := planner.New(
		market.NewKlineProvider(market.NewKlineDownloader("", zl), cfg.DataDir, cfg.LookbackDays, zl),
		exchange.NewFeeProvider(cfg, prompt, zl),
		zl,
		plannerOpts...,
	)

	logger.S().Infof("--- 开始优化 %s @ %s (%d 天, %s) ---", cfg.Symbol, cfg.Exchange, cfg.HorizonDays, cfg.PositionSide)
	rec, err := p.Run(ctx, planner.Request{
		Exchange:    cfg.Exchange,
		Symbol:      cfg.Symbol,
		HorizonDays: float64(cfg.HorizonDays),
		PriceSource: cfg.PriceSource,
		Neutral:     cfg.Neutral,
		AutoNeutral: cfg.AutoNeutral != nil && *cfg.AutoNeutral,
		Options:     opts,
	})
	if err != nil {
		logger.S().Errorf("优化失败: %v", err)
		return exitFail
	}

	if err := output(stdout, rec, jsonOutput); err != nil {
		logger.S().Errorf("输出结果失败: %v", err)
		return exitFail
	}

	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.S().Warnf("写入指标文件失败: %v", err)
		}
	}
	return exitCode(rec.Result.Status)
}

// runReplay 用保存的快照重新计算，并校验结果是否一致
func runReplay(cfg *models.Config, id string, jsonOutput bool, stdout io.Writer) int {
	repo, err := openRepository(cfg)
	if err != nil {
		logger.S().Error(err)
		return exitFail
	}
	defer repo.Close()

	var rec *persistence.RunRecord
	if id == "latest" {
		rec, err = repo.LatestRun()
	} else {
		rec, err = repo.LoadRun(id)
	}
	if err != nil {
		logger.S().Errorf("读取运行记录失败: %v", err)
		return exitFail
	}
	if rec == nil {
		logger.S().Errorf("未找到运行记录: %s", id)
		return exitFail
	}

	res, same, err := planner.Replay(rec)
	if err != nil {
		logger.S().Errorf("重放失败: %v", err)
		return exitFail
	}
	if !same {
		logger.S().Errorf("重放结果与保存的结果不一致: run %s", rec.ID)
		rec.Result = res
		_ = output(stdout, rec, jsonOutput)
		return exitFail
	}
	logger.S().Infof("重放结果一致: run %s", rec.ID)

	if err := output(stdout, rec, jsonOutput); err != nil {
		logger.S().Errorf("输出结果失败: %v", err)
		return exitFail
	}
	return exitCode(rec.Result.Status)
}

// runHistory 列出最近的运行记录
func runHistory(cfg *models.Config, limit int, stdout io.Writer) int {
	repo, err := openRepository(cfg)
	if err != nil {
		logger.S().Error(err)
		return exitFail
	}
	defer repo.Close()

	runs, err := repo.ListRuns(limit)
	if err != nil {
		logger.S().Errorf("读取运行记录失败: %v", err)
		return exitFail
	}
	reporter.PrintHistory(stdout, runs)
	return exitOK
}

func openRepository(cfg *models.Config) (persistence.RunRepository, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("未配置运行记录数据库 (db_path / -db / OPTIMIZER_DB_PATH)")
	}
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("打开运行记录数据库失败: %w", err)
	}
	return repo, nil
}

func output(w io.Writer, rec *persistence.RunRecord, jsonOutput bool) error {
	if jsonOutput {
		return reporter.WriteJSON(w, rec)
	}
	reporter.PrintMarketIntel(w, rec)
	fmt.Fprintln(w)
	reporter.PrintReport(w, rec)
	return nil
}

func exitCode(status models.Status) int {
	if status.IsStop() {
		return exitStop
	}
	return exitOK
}
