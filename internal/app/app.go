package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"funding-arb/internal/config"
	"funding-arb/internal/store"
)

// App 聚合核心依赖并驱动持仓管理生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	dryRun bool
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store, dryRun bool) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		dryRun: dryRun,
	}
}

// Run 驱动主循环：每个周期执行一次规则评估，持仓完全平掉后自行退出。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("持仓管理系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("symbol", a.cfg.Execution.FuturesSymbol),
		zap.Bool("dry_run", a.dryRun),
	)

	orch, err := newOrchestrator(a.cfg, a.logger, a.store, a.dryRun)
	if err != nil {
		return err
	}

	checkInterval := a.cfg.Scheduler.CheckInterval
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}

	orch.notifier.NotifyStartup(ctx, a.cfg.Execution.FuturesSymbol, checkInterval)

	if err = orch.Tick(ctx); err != nil {
		a.logger.Error("首次评估失败", zap.Error(err))
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		if orch.Done() {
			a.logger.Info("持仓已全部平掉，管理循环结束",
				zap.Float64("total_realized_profit", orch.TotalRealizedProfit()),
			)
			orch.notifier.NotifyShutdown(ctx, "持仓已全部平掉", orch.TotalRealizedProfit())
			return nil
		}

		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			orch.notifier.NotifyShutdown(context.Background(), "收到退出信号", orch.TotalRealizedProfit())
			return nil
		case <-ticker.C:
			if err = orch.Tick(ctx); err != nil {
				a.logger.Error("执行调度失败", zap.Error(err))
			}
		}
	}
}
