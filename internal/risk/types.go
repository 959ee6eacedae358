package risk

import (
	"fmt"

	"funding-arb/internal/exchange"
)

// ActionType 标识规则引擎产出的动作类别。
type ActionType string

const (
	ActionProfitTake         ActionType = "profit_take"
	ActionStopLoss           ActionType = "stop_loss"
	ActionTrailingStop       ActionType = "trailing_stop"
	ActionFundingExit        ActionType = "funding_exit"
	ActionDrawdownProtection ActionType = "drawdown_protection"
	ActionMarginManagement   ActionType = "margin_management"
	ActionFundingWarning     ActionType = "funding_warning"
)

// FullClose 判断该动作是否为全平类动作。全平动作一旦触发，
// 本轮不再评估后续类别。
func (t ActionType) FullClose() bool {
	switch t {
	case ActionStopLoss, ActionTrailingStop, ActionFundingExit:
		return true
	default:
		return false
	}
}

// ActionEvent 为单轮评估产出的一条动作记录，交给日志与通知方消费。
type ActionEvent struct {
	Type           ActionType `json:"type"`
	Rule           string     `json:"rule,omitempty"`
	Percentage     float64    `json:"percentage,omitempty"`
	Quantity       float64    `json:"quantity,omitempty"`
	RealizedProfit float64    `json:"realizedProfit,omitempty"`
	Pnl            float64    `json:"pnl"`
	Reason         string     `json:"reason"`
	Executed       bool       `json:"executed"`
	NoOp           bool       `json:"noop,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// CycleInput 为一轮评估的输入快照，由调度方每轮新取，引擎不持有。
type CycleInput struct {
	Position   exchange.PositionSnapshot
	Account    exchange.AccountSnapshot
	Funding    exchange.FundingSnapshot
	HasAccount bool
	HasFunding bool
}

// LifecycleState 描述被管理仓位的生命周期阶段。
type LifecycleState string

const (
	StateNoPosition      LifecycleState = "no_position"
	StateOpen            LifecycleState = "open"
	StatePartiallyClosed LifecycleState = "partially_closed"
	StateClosed          LifecycleState = "closed"
)

// RuleExecutionError 表示执行某条规则的平仓单失败。只影响该动作本身，
// 不中断本轮评估。
type RuleExecutionError struct {
	Action ActionType
	Rule   string
	Err    error
}

func (e *RuleExecutionError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("risk: executing %s (%s) failed: %v", e.Action, e.Rule, e.Err)
	}
	return fmt.Sprintf("risk: executing %s failed: %v", e.Action, e.Err)
}

func (e *RuleExecutionError) Unwrap() error {
	return e.Err
}
