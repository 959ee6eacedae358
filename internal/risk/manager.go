package risk

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"funding-arb/internal/config"
	"funding-arb/internal/exchange"
)

// Manager 是持仓规则引擎：每轮消费一份新鲜快照，按固定优先级评估各类规则，
// 至多产出一个全平动作外加若干建议性动作。实例独占自身状态，
// 由单一外部循环驱动，不支持并发调用。
type Manager struct {
	cfg      config.RulesConfig
	gateway  exchange.Gateway
	resolver *exchange.Resolver
	symbol   string
	logger   *zap.Logger
	dryRun   bool

	state          *RuleState
	lifecycleState LifecycleState
}

// NewManager 创建规则引擎。
func NewManager(cfg config.RulesConfig, gateway exchange.Gateway, resolver *exchange.Resolver, symbol string, dryRun bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = exchange.NewResolver(gateway, logger)
	}
	return &Manager{
		cfg:            cfg,
		gateway:        gateway,
		resolver:       resolver,
		symbol:         symbol,
		logger:         logger,
		dryRun:         dryRun,
		state:          NewRuleState(),
		lifecycleState: StateNoPosition,
	}
}

// State 返回当前生命周期阶段。
func (m *Manager) State() LifecycleState {
	return m.lifecycleState
}

// PeakPnl 返回当前峰值浮盈。
func (m *Manager) PeakPnl() float64 {
	return m.state.PeakPnl()
}

// TotalRealizedProfit 返回累计已实现收益。
func (m *Manager) TotalRealizedProfit() float64 {
	return m.state.TotalRealizedProfit()
}

// ObserveNoPosition 在检测到无持仓时调用，清空规则状态，
// 防止止盈封存与峰值泄漏到下一段仓位。
func (m *Manager) ObserveNoPosition() {
	if m.lifecycleState != StateNoPosition {
		m.logger.Info("仓位已全部了结，规则状态清零",
			zap.Float64("total_realized_profit", m.state.TotalRealizedProfit()),
		)
	}
	m.state.Reset()
	m.lifecycleState = StateNoPosition
}

// EvaluateCycle 执行一轮完整评估。
// 全平类规则按止损、移动止盈、资金费率强平的顺序互斥触发；
// 触发即终止本轮，无论下单是否成功（条件持续成立，下一轮自然重试）。
// 其后的分批止盈、回撤保护、保证金控制与资金费率预警可在同一轮并存。
func (m *Manager) EvaluateCycle(ctx context.Context, input CycleInput) []ActionEvent {
	pos := input.Position
	pnl := pos.UnrealizedPnl

	if m.lifecycleState == StateNoPosition || m.lifecycleState == StateClosed {
		m.lifecycleState = StateOpen
	}

	m.state.UpdatePeak(pnl)

	var events []ActionEvent

	// (a) 硬止损
	if pnl <= m.cfg.StopLoss {
		event := m.executeFullClose(ctx, pos, ActionStopLoss,
			fmt.Sprintf("硬止损触发: pnl=%.2f <= %.2f", pnl, m.cfg.StopLoss), pnl)
		return append(events, event)
	}

	// (b) 移动止盈
	if m.cfg.TrailingStop && m.state.PeakPnl() > 0 && pnl <= m.state.PeakPnl()-m.cfg.TrailingDistance {
		event := m.executeFullClose(ctx, pos, ActionTrailingStop,
			fmt.Sprintf("移动止盈触发: pnl=%.2f, peak=%.2f", pnl, m.state.PeakPnl()), pnl)
		return append(events, event)
	}

	// (c) 资金费率强平
	if input.HasFunding && input.Funding.Rate <= m.cfg.Funding.VeryNegative {
		event := m.executeFullClose(ctx, pos, ActionFundingExit,
			fmt.Sprintf("资金费率严重为负: %.4f%%", input.Funding.Rate*100), pnl)
		return append(events, event)
	}

	// (d) 分批止盈：每轮至多触发一档，保证按档位审计已实现收益
	if event, fired := m.evaluateLadder(ctx, pos, pnl); fired {
		events = append(events, event)
	}

	// (e) 回撤保护
	if drawdown := m.state.PeakPnl() - pnl; m.state.PeakPnl() > 0 && drawdown >= m.cfg.MaxDrawdown {
		event := m.executePartialClose(ctx, pos, ActionDrawdownProtection, "", 0.5,
			fmt.Sprintf("峰值回撤 %.2f 超限", drawdown), pnl)
		events = append(events, event)
	}

	// (f) 保证金控制
	if input.HasAccount && input.Account.MarginRatio >= m.cfg.MarginLimit {
		event := m.executePartialClose(ctx, pos, ActionMarginManagement, "", 0.3,
			fmt.Sprintf("保证金占用 %.1f%% 过高", input.Account.MarginRatio*100), pnl)
		events = append(events, event)
	}

	// (g) 资金费率预警：只提示，不下单
	if input.HasFunding && input.Funding.Rate > m.cfg.Funding.VeryNegative &&
		input.Funding.Rate <= m.cfg.Funding.NegativeThreshold {
		m.logger.Warn("资金费率转负",
			zap.Float64("rate", input.Funding.Rate),
		)
		events = append(events, ActionEvent{
			Type:     ActionFundingWarning,
			Pnl:      pnl,
			Reason:   fmt.Sprintf("资金费率为负: %.4f%%", input.Funding.Rate*100),
			Executed: true,
		})
	}

	return events
}

// evaluateLadder 按阈值升序扫描止盈档位，返回本轮触发的动作。
// 只有下单成功才封存档位，失败与碎量跳过都会在下一轮重试。
func (m *Manager) evaluateLadder(ctx context.Context, pos exchange.PositionSnapshot, pnl float64) (ActionEvent, bool) {
	for i, rung := range m.cfg.ProfitTargets {
		name := rungName(i, rung)
		if m.state.Latched(name) {
			continue
		}
		if pnl < rung.Threshold {
			continue
		}

		m.logger.Info("止盈档位触发",
			zap.String("rule", name),
			zap.Float64("pnl", pnl),
			zap.Float64("threshold", rung.Threshold),
		)

		event := m.executePartialClose(ctx, pos, ActionProfitTake, name, rung.Percentage,
			fmt.Sprintf("止盈档位 %s: pnl=%.2f >= %.2f", name, pnl, rung.Threshold), pnl)

		if event.Executed && !event.NoOp {
			realized := event.Quantity * (pos.MarkPrice - pos.EntryPrice)
			if pos.Side == exchange.PositionShort {
				realized = -realized
			}
			m.state.AddRealized(realized)
			m.state.Latch(name)
			event.RealizedProfit = realized
			if rung.Percentage >= 1 {
				m.lifecycleState = StateClosed
			}

			m.logger.Info("止盈档位执行完成",
				zap.String("rule", name),
				zap.Float64("quantity", event.Quantity),
				zap.Float64("realized_profit", realized),
				zap.Float64("total_realized", m.state.TotalRealizedProfit()),
			)
		}

		return event, true
	}

	return ActionEvent{}, false
}

func (m *Manager) executeFullClose(ctx context.Context, pos exchange.PositionSnapshot, action ActionType, reason string, pnl float64) ActionEvent {
	m.logger.Warn("全平规则触发",
		zap.String("action", string(action)),
		zap.String("reason", reason),
		zap.Float64("pnl", pnl),
	)

	event := m.executePartialClose(ctx, pos, action, "", 1.0, reason, pnl)
	if event.Executed && !event.NoOp {
		m.lifecycleState = StateClosed
	}
	return event
}

// executePartialClose 把仓位的指定比例以只减仓市价单平掉。
// 数量向零取整到合约步长，低于一个步长按无操作记录，避免碎量拒单。
func (m *Manager) executePartialClose(ctx context.Context, pos exchange.PositionSnapshot, action ActionType, rule string, percentage float64, reason string, pnl float64) ActionEvent {
	event := ActionEvent{
		Type:       action,
		Rule:       rule,
		Percentage: percentage * 100,
		Pnl:        pnl,
		Reason:     reason,
	}

	cons, err := m.resolver.Resolve(ctx, m.symbol, exchange.VenueFutures)
	if err != nil {
		ruleErr := &RuleExecutionError{Action: action, Rule: rule, Err: err}
		m.logger.Error("解析合约约束失败", zap.Error(ruleErr))
		event.Error = ruleErr.Error()
		return event
	}

	closeSize := exchange.FloorToStep(pos.Size*percentage, cons.StepSize)
	if closeSize <= 0 || closeSize < cons.StepSize {
		m.logger.Warn("平仓数量低于最小步长，跳过",
			zap.String("action", string(action)),
			zap.Float64("close_size", closeSize),
			zap.Float64("step", cons.StepSize),
		)
		event.Executed = true
		event.NoOp = true
		return event
	}

	side := exchange.SideSell
	if pos.Side == exchange.PositionShort {
		side = exchange.SideBuy
	}

	if m.dryRun {
		m.logger.Info("dry-run 模式，跳过真实下单",
			zap.String("action", string(action)),
			zap.String("side", string(side)),
			zap.Float64("quantity", closeSize),
		)
		event.Executed = true
		event.Quantity = closeSize
		return event
	}

	order, err := m.gateway.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{
		Symbol:     m.symbol,
		Venue:      exchange.VenueFutures,
		Side:       side,
		Quantity:   closeSize,
		ReduceOnly: true,
	})
	if err != nil {
		ruleErr := &RuleExecutionError{Action: action, Rule: rule, Err: err}
		m.logger.Error("规则平仓下单失败", zap.Error(ruleErr))
		event.Error = ruleErr.Error()
		return event
	}
	if !order.Status.FilledLike() {
		ruleErr := &RuleExecutionError{
			Action: action,
			Rule:   rule,
			Err:    fmt.Errorf("order %s status %s", order.OrderID, order.Status),
		}
		m.logger.Error("规则平仓未成交", zap.Error(ruleErr))
		event.Error = ruleErr.Error()
		return event
	}

	event.Executed = true
	event.Quantity = order.ExecutedQty
	if event.Quantity == 0 {
		event.Quantity = closeSize
	}
	if percentage < 1 {
		m.lifecycleState = StatePartiallyClosed
	}
	return event
}

func rungName(index int, rung config.LadderRung) string {
	if rung.Percentage >= 1 {
		return "full_exit"
	}
	return fmt.Sprintf("partial_take_%d", index+1)
}
