package execution

import (
	"errors"
	"fmt"

	"funding-arb/internal/exchange"
)

// ErrConfiguration 表示执行计划在下单前即被判定非法。
var ErrConfiguration = errors.New("execution: invalid plan configuration")

// Leg 标识订单属于哪条腿。
type Leg string

const (
	LegSpot    Leg = "spot"
	LegFutures Leg = "futures"
)

// LegFillError 表示某条腿达到终态但未成交。整个任务立即中止，
// 错误携带对账所需的批次与数量信息。
type LegFillError struct {
	Batch        int
	Leg          Leg
	OrderID      string
	Status       exchange.OrderStatus
	RequestedQty float64
	ExecutedQty  float64
}

func (e *LegFillError) Error() string {
	return fmt.Sprintf("execution: %s leg of batch %d did not fill (orderId=%s status=%s requested=%v executed=%v)",
		e.Leg, e.Batch+1, e.OrderID, e.Status, e.RequestedQty, e.ExecutedQty)
}

// FillTimeoutError 表示轮询次数耗尽仍未观察到终态。
type FillTimeoutError struct {
	Batch    int
	Leg      Leg
	OrderID  string
	Attempts int
}

func (e *FillTimeoutError) Error() string {
	return fmt.Sprintf("execution: %s leg of batch %d not terminal after %d polls (orderId=%s)",
		e.Leg, e.Batch+1, e.Attempts, e.OrderID)
}
