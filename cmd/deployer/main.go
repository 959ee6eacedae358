package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"funding-arb/internal/config"
	"funding-arb/internal/exchange"
	"funding-arb/internal/execution"
	"funding-arb/internal/log"
	"funding-arb/internal/monitor"
	"funding-arb/internal/notify"
	"funding-arb/internal/store"
)

func main() {
	var (
		configPath    string
		capital       float64
		batchQuote    float64
		spotSymbol    string
		futuresSymbol string
		batchDelay    time.Duration
		mode          string
		logLevel      string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Float64Var(&capital, "capital", 0, "建仓总金额（USDT），覆盖配置")
	flag.Float64Var(&batchQuote, "batch-quote", 0, "单批金额（USDT），覆盖配置")
	flag.StringVar(&spotSymbol, "spot-symbol", "", "现货交易对，覆盖配置")
	flag.StringVar(&futuresSymbol, "futures-symbol", "", "合约交易对，覆盖配置")
	flag.DurationVar(&batchDelay, "batch-delay", -1, "批次间隔，覆盖配置")
	flag.StringVar(&mode, "mode", "", "建仓方向：buy_spot_short_futures 或 sell_spot_long_futures")
	flag.StringVar(&logLevel, "log-level", "", "日志级别，覆盖配置")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, capital, batchQuote, spotSymbol, futuresSymbol, batchDelay, mode, logLevel)

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("建仓失败", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	parsedMode, err := execution.ParseMode(cfg.Execution.Mode)
	if err != nil {
		return err
	}

	plan, err := execution.NewPlan(
		cfg.Execution.Capital,
		cfg.Execution.BatchQuote,
		parsedMode,
		cfg.Execution.SpotSymbol,
		cfg.Execution.FuturesSymbol,
	)
	if err != nil {
		return err
	}

	gateway, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return fmt.Errorf("初始化交易所网关失败: %w", err)
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	monitorSvc, err := monitor.NewService(sqliteStore, logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	resolver := exchange.NewResolver(gateway, logger)
	engine := execution.NewEngine(gateway, resolver, execution.Options{
		BatchDelay: cfg.Execution.BatchDelay,
		Poll: execution.RetryPolicy{
			MaxAttempts: cfg.Execution.FillPoll.MaxAttempts,
			Interval:    cfg.Execution.FillPoll.Interval,
		},
	}, logger)

	report, execErr := engine.Execute(ctx, plan)

	// 无论成败都打印报告，失败时报告覆盖已完成批次
	encoded, marshalErr := json.MarshalIndent(report, "", "  ")
	if marshalErr == nil {
		fmt.Println(string(encoded))
	}

	monitorSvc.RecordExecution(ctx, report)

	notifier := notify.NewNotifier(cfg.Telegram, logger)
	if execErr != nil {
		monitorSvc.RecordError(ctx, "分批建仓失败", execErr, map[string]interface{}{
			"spot_symbol":    plan.SpotSymbol,
			"futures_symbol": plan.FuturesSymbol,
		})
		notifier.NotifyError(ctx, "分批建仓失败", execErr)
		return execErr
	}

	notifier.NotifyExecutionReport(ctx, report)
	return nil
}

func applyOverrides(cfg *config.Config, capital, batchQuote float64, spotSymbol, futuresSymbol string, batchDelay time.Duration, mode, logLevel string) {
	if capital > 0 {
		cfg.Execution.Capital = capital
	}
	if batchQuote > 0 {
		cfg.Execution.BatchQuote = batchQuote
	}
	if spotSymbol != "" {
		cfg.Execution.SpotSymbol = spotSymbol
	}
	if futuresSymbol != "" {
		cfg.Execution.FuturesSymbol = futuresSymbol
	}
	if batchDelay >= 0 {
		cfg.Execution.BatchDelay = batchDelay
	}
	if mode != "" {
		cfg.Execution.Mode = mode
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
