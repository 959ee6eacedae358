package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"funding-arb/internal/config"
	"funding-arb/internal/exchange"
	"funding-arb/internal/log"
	"funding-arb/internal/scanner"
)

func main() {
	var (
		configPath string
		workers    int
		topN       int
		savePath   string
		minFunding float64
		minVolume  float64
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.IntVar(&workers, "workers", 10, "并发分析协程数")
	flag.IntVar(&topN, "top", 20, "展示前 N 个交易对")
	flag.StringVar(&savePath, "save", "", "将完整结果保存为 JSON 文件")
	flag.Float64Var(&minFunding, "min-funding", 0, "正费率最低门槛（8h 小数），覆盖默认值")
	flag.Float64Var(&minVolume, "min-volume", 0, "现货 24h 最低成交额（USDT），覆盖默认值")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

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

	if err := run(ctx, cfg, logger, workers, topN, savePath, minFunding, minVolume); err != nil {
		logger.Error("扫描失败", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, workers, topN int, savePath string, minFunding, minVolume float64) error {
	gateway, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return fmt.Errorf("初始化交易所网关失败: %w", err)
	}

	criteria := scanner.DefaultCriteria()
	if minFunding > 0 {
		criteria.MinPositiveFunding = minFunding
	}
	if minVolume > 0 {
		criteria.MinSpotVolumeUSDT = minVolume
	}

	scan := scanner.NewScanner(gateway, logger, scanner.Options{
		Criteria: &criteria,
		Workers:  workers,
	})

	report, err := scan.Scan(ctx)
	if err != nil {
		return err
	}

	printReport(report, topN)

	if savePath != "" {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化扫描结果失败: %w", err)
		}
		if err := os.WriteFile(savePath, encoded, 0o644); err != nil {
			return fmt.Errorf("保存扫描结果失败: %w", err)
		}
		logger.Info("扫描结果已保存", zap.String("path", savePath))
	}

	return nil
}

func printReport(report scanner.Report, topN int) {
	if len(report.Results) == 0 {
		fmt.Println("没有交易对满足筛选条件")
		return
	}

	if topN > len(report.Results) {
		topN = len(report.Results)
	}

	fmt.Printf("%-4s %-16s %-6s %-12s %-12s %-12s %-8s %s\n",
		"Rank", "Symbol", "Score", "Funding(8h)", "Funding(Day)", "Volume(24h)", "Spread", "Recommendation")
	for i, result := range report.Results[:topN] {
		fmt.Printf("%-4d %-16s %-6.0f %-11.3f%% %-11.2f%% %-11.1fM %-7.2f%% %s\n",
			i+1,
			result.Symbol,
			result.Score,
			result.FundingRate8h,
			result.FundingRateDaily,
			result.SpotVolume24h/1_000_000,
			result.PriceSpreadPct,
			result.Recommendation,
		)
	}

	var positive, excellent, good int
	for _, result := range report.Results {
		if result.FundingRate8h > 0 {
			positive++
		}
		if result.Score >= 80 {
			excellent++
		}
		if result.Score >= 60 {
			good++
		}
	}

	fmt.Printf("\n共 %d 个交易对满足条件，其中正费率 %d 个，评分 80+ %d 个，评分 60+ %d 个\n",
		len(report.Results), positive, excellent, good)
}
