package exchange

import "time"

// Venue 区分现货与合约市场。
type Venue string

const (
	VenueSpot    Venue = "spot"
	VenueFutures Venue = "futures"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide 表示持仓方向。
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// OrderStatus 为统一后的订单状态。
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal 判断状态是否为终态。
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// FilledLike 判断状态是否代表成交（全部或部分）。
func (s OrderStatus) FilledLike() bool {
	return s == OrderStatusFilled || s == OrderStatusPartiallyFilled
}

// SymbolConstraints 描述交易所对单个交易对的下单约束。
type SymbolConstraints struct {
	StepSize    float64
	MinQty      float64
	MinNotional float64
}

// MarketOrderRequest 描述一笔市价单。Quantity 与 QuoteQuantity 二选一。
type MarketOrderRequest struct {
	Symbol        string
	Venue         Venue
	Side          Side
	Quantity      float64
	QuoteQuantity float64
	ReduceOnly    bool
	ClientOrderID string
}

// OrderResult 为下单或查单的统一返回。
type OrderResult struct {
	OrderID      string
	Symbol       string
	Venue        Venue
	Side         Side
	Status       OrderStatus
	RequestedQty float64
	ExecutedQty  float64
	AvgPrice     float64
	CumQuote     float64
	UpdatedAt    time.Time
}

// PositionSnapshot 为合约持仓快照，在网关边界校验后只读使用。
type PositionSnapshot struct {
	Symbol        string
	Side          PositionSide
	Size          float64 // 始终为正
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
	Notional      float64
}

// AccountSnapshot 为合约账户快照。
type AccountSnapshot struct {
	TotalBalance     float64
	AvailableBalance float64
	UnrealizedPnl    float64
	MarginRatio      float64
}

// TickerStats 为扫描用的 24h 行情统计。
type TickerStats struct {
	Symbol      string
	Last        float64
	Bid         float64
	Ask         float64
	High        float64
	Low         float64
	QuoteVolume float64
	Change24h   float64 // 24h 涨跌幅，小数表示
}

// FundingSnapshot 为资金费率快照。
type FundingSnapshot struct {
	Rate            float64
	NextFundingTime time.Time
}
