package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"funding-arb/internal/config"
	"funding-arb/internal/exchange"
	"funding-arb/internal/monitor"
	"funding-arb/internal/notify"
	"funding-arb/internal/risk"
	"funding-arb/internal/store"
)

// orchestrator 将网关、规则引擎、事件台账与通知器串成单线程评估循环。
type orchestrator struct {
	gateway  *exchange.Client
	risk     *risk.Manager
	monitor  *monitor.Service
	notifier *notify.Notifier
	logger   *zap.Logger

	symbol string
	done   bool
}

func newOrchestrator(cfg *config.Config, logger *zap.Logger, store *store.Store, dryRun bool) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	gateway, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所网关失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(store, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	resolver := exchange.NewResolver(gateway, logger)
	riskMgr := risk.NewManager(cfg.Rules, gateway, resolver, cfg.Execution.FuturesSymbol, dryRun, logger)
	notifier := notify.NewNotifier(cfg.Telegram, logger)

	return &orchestrator{
		gateway:  gateway,
		risk:     riskMgr,
		monitor:  monitorSvc,
		notifier: notifier,
		logger:   logger,
		symbol:   cfg.Execution.FuturesSymbol,
	}, nil
}

// Done 报告持仓是否已被规则引擎完全平掉。
func (o *orchestrator) Done() bool {
	return o.done
}

// TotalRealizedProfit 返回累计已实现收益。
func (o *orchestrator) TotalRealizedProfit() float64 {
	return o.risk.TotalRealizedProfit()
}

// Tick 执行一个评估周期：快照采集 → 规则评估 → 台账与通知。
func (o *orchestrator) Tick(ctx context.Context) error {
	position, found, err := o.gateway.GetPosition(ctx, o.symbol)
	if err != nil {
		o.monitor.RecordError(ctx, "获取持仓失败", err, map[string]interface{}{"symbol": o.symbol})
		return err
	}

	if !found {
		if o.risk.State() == risk.StateClosed {
			o.done = true
			return nil
		}
		o.risk.ObserveNoPosition()
		o.logger.Info("当前无持仓，等待建仓", zap.String("symbol", o.symbol))
		return nil
	}

	input := risk.CycleInput{Position: position}

	account, err := o.gateway.GetAccount(ctx)
	if err != nil {
		// 账户快照缺失仅跳过保证金规则，不中断本周期
		o.logger.Warn("获取账户快照失败", zap.Error(err))
	} else {
		input.Account = account
		input.HasAccount = true
	}

	funding, err := o.gateway.GetFundingRate(ctx, o.symbol)
	if err != nil {
		o.logger.Warn("获取资金费率失败", zap.Error(err))
	} else {
		input.Funding = funding
		input.HasFunding = true
	}

	actions := o.risk.EvaluateCycle(ctx, input)

	o.monitor.RecordPosition(ctx, position, input.Account, input.Funding)
	o.monitor.RecordActions(ctx, o.symbol, actions)
	o.notifier.NotifyActions(ctx, o.symbol, actions)

	if o.risk.State() == risk.StateClosed {
		o.done = true
	}

	return nil
}
