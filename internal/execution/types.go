package execution

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"funding-arb/internal/exchange"
)

// Mode 表示建仓方向：正向为买入现货并做空合约，反向为卖出现货并做多合约。
type Mode string

const (
	ModeBuySpotShortFutures Mode = "buy_spot_short_futures"
	ModeSellSpotLongFutures Mode = "sell_spot_long_futures"
)

// ParseMode 解析模式字符串。
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBuySpotShortFutures, ModeSellSpotLongFutures:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported mode %q", ErrConfiguration, s)
	}
}

// SpotSide 返回该模式下现货腿的方向。
func (m Mode) SpotSide() exchange.Side {
	if m == ModeSellSpotLongFutures {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

// HedgeSide 返回该模式下合约对冲腿的方向，始终与现货腿相反。
func (m Mode) HedgeSide() exchange.Side {
	return m.SpotSide().Opposite()
}

// Plan 描述一次完整的分批建仓任务，构造后不可变。
type Plan struct {
	Capital       float64
	BatchQuote    float64
	BatchCount    int
	Mode          Mode
	SpotSymbol    string
	FuturesSymbol string
}

// NewPlan 校验参数并构造执行计划。本金必须恰好整除批次金额，
// 否则最后一批会出现无法对冲的零头。
func NewPlan(capital, batchQuote float64, mode Mode, spotSymbol, futuresSymbol string) (Plan, error) {
	if capital <= 0 {
		return Plan{}, fmt.Errorf("%w: capital must be positive, got %v", ErrConfiguration, capital)
	}
	if batchQuote <= 0 {
		return Plan{}, fmt.Errorf("%w: batch quote must be positive, got %v", ErrConfiguration, batchQuote)
	}
	if spotSymbol == "" || futuresSymbol == "" {
		return Plan{}, fmt.Errorf("%w: spot and futures symbols are required", ErrConfiguration)
	}
	if mode != ModeBuySpotShortFutures && mode != ModeSellSpotLongFutures {
		return Plan{}, fmt.Errorf("%w: unsupported mode %q", ErrConfiguration, mode)
	}

	total := decimal.NewFromFloat(capital)
	batch := decimal.NewFromFloat(batchQuote)
	count, remainder := total.QuoRem(batch, 0)
	if !remainder.IsZero() {
		return Plan{}, fmt.Errorf("%w: capital %v is not an exact multiple of batch quote %v", ErrConfiguration, capital, batchQuote)
	}
	if !count.IsInteger() || count.IntPart() <= 0 {
		return Plan{}, fmt.Errorf("%w: batch configuration results in zero orders", ErrConfiguration)
	}

	return Plan{
		Capital:       capital,
		BatchQuote:    batchQuote,
		BatchCount:    int(count.IntPart()),
		Mode:          mode,
		SpotSymbol:    spotSymbol,
		FuturesSymbol: futuresSymbol,
	}, nil
}

// OrderRecord 为单笔订单的留痕记录。
type OrderRecord struct {
	OrderID      string               `json:"orderId"`
	Status       exchange.OrderStatus `json:"status"`
	RequestedQty float64              `json:"requestedQty,omitempty"`
	ExecutedQty  float64              `json:"executedQty"`
	AvgPrice     float64              `json:"avgPrice,omitempty"`
	QuoteSpent   float64              `json:"quoteSpent,omitempty"`
	Notional     float64              `json:"notional,omitempty"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// LegReport 汇总一条腿的全部订单。
type LegReport struct {
	Symbol           string        `json:"symbol"`
	TotalExecutedQty float64       `json:"totalExecutedQty"`
	TotalQuoteSpent  float64       `json:"totalQuoteSpent,omitempty"`
	Orders           []OrderRecord `json:"orders"`
}

// Targets 记录计划目标，用于和实际成交对账。
type Targets struct {
	Capital            float64 `json:"capital"`
	TheoreticalBaseQty float64 `json:"theoreticalBaseQty"`
	BatchQuote         float64 `json:"batchQuote"`
	BatchCount         int     `json:"batchCount"`
}

// ExecutionReport 为一次完整建仓的最终产出。
type ExecutionReport struct {
	Mode    Mode      `json:"mode"`
	Spot    LegReport `json:"spot"`
	Futures LegReport `json:"futures"`
	Targets Targets   `json:"targets"`
}
