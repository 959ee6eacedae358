package monitor

import (
	"time"

	"funding-arb/internal/exchange"
	"funding-arb/internal/execution"
	"funding-arb/internal/risk"
)

// EventType 标识留痕事件类别。
type EventType string

const (
	EventAction    EventType = "rule_action"
	EventExecution EventType = "execution_report"
	EventPosition  EventType = "position_snapshot"
	EventError     EventType = "error"
)

// Event 为写入留痕库的单条记录。
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// ActionPayload 记录规则引擎的一轮动作。
type ActionPayload struct {
	Symbol  string             `json:"symbol"`
	Actions []risk.ActionEvent `json:"actions"`
}

// ExecutionPayload 记录一次建仓报告。
type ExecutionPayload struct {
	Report execution.ExecutionReport `json:"report"`
}

// PositionPayload 记录仓位与账户快照。
type PositionPayload struct {
	Position exchange.PositionSnapshot `json:"position"`
	Account  exchange.AccountSnapshot  `json:"account"`
	Funding  exchange.FundingSnapshot  `json:"funding"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
