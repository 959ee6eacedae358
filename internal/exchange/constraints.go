package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConstraintViolationError 表示取整后的数量低于交易所允许的下限。
type ConstraintViolationError struct {
	Symbol      string
	Venue       Venue
	Quantity    float64
	Price       float64
	Constraints SymbolConstraints
	Reason      string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation on %s (%s): %s (qty=%v price=%v minQty=%v minNotional=%v)",
		e.Symbol, e.Venue, e.Reason, e.Quantity, e.Price, e.Constraints.MinQty, e.Constraints.MinNotional)
}

// FloorToStep 将数量向零取整到步长的整数倍。只会向下取整，
// 向上取整可能让委托量超过实际成交量而被拒单或超支。
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	return v.Sub(v.Mod(s)).InexactFloat64()
}

// Resolver 懒加载并缓存每个 (symbol, venue) 的下单约束，生命周期内不变。
type Resolver struct {
	gateway Gateway
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]SymbolConstraints
}

// NewResolver 创建约束解析器。
func NewResolver(gateway Gateway, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		gateway: gateway,
		logger:  logger,
		cache:   make(map[string]SymbolConstraints),
	}
}

// Resolve 返回指定交易对的约束，首次访问时向交易所拉取。
func (r *Resolver) Resolve(ctx context.Context, symbol string, venue Venue) (SymbolConstraints, error) {
	key := string(venue) + "|" + symbol

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	constraints, err := r.gateway.GetSymbolConstraints(ctx, symbol, venue)
	if err != nil {
		return SymbolConstraints{}, err
	}

	r.mu.Lock()
	r.cache[key] = constraints
	r.mu.Unlock()

	r.logger.Debug("已解析交易对约束",
		zap.String("symbol", symbol),
		zap.String("venue", string(venue)),
		zap.Float64("step", constraints.StepSize),
		zap.Float64("min_qty", constraints.MinQty),
		zap.Float64("min_notional", constraints.MinNotional),
	)

	return constraints, nil
}

// Validate 校验取整后的数量满足最小数量与最小名义价值要求。
func (c SymbolConstraints) Validate(symbol string, venue Venue, qty, price float64) error {
	if qty < c.MinQty {
		return &ConstraintViolationError{
			Symbol:      symbol,
			Venue:       venue,
			Quantity:    qty,
			Price:       price,
			Constraints: c,
			Reason:      "quantity below exchange minimum after rounding",
		}
	}
	if c.MinNotional > 0 && price > 0 && qty*price < c.MinNotional {
		return &ConstraintViolationError{
			Symbol:      symbol,
			Venue:       venue,
			Quantity:    qty,
			Price:       price,
			Constraints: c,
			Reason:      "notional below exchange minimum",
		}
	}
	return nil
}
