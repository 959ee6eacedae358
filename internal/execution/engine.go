package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"funding-arb/internal/exchange"
)

// Engine 把一笔资金拆成固定额度的批次，逐批完成现货腿与合约对冲腿。
// 批次之间严格串行：并行批次会争抢同一档流动性，还可能交错对冲腿。
type Engine struct {
	gateway  exchange.Gateway
	resolver *exchange.Resolver
	logger   *zap.Logger

	poll       RetryPolicy
	batchDelay time.Duration
	clock      Clock
}

// Options 控制执行引擎的节奏参数。
type Options struct {
	BatchDelay time.Duration
	Poll       RetryPolicy
	Clock      Clock
}

// NewEngine 创建批量执行引擎。
func NewEngine(gateway exchange.Gateway, resolver *exchange.Resolver, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = exchange.NewResolver(gateway, logger)
	}
	poll := opts.Poll
	if poll.MaxAttempts <= 0 || poll.Interval <= 0 {
		poll = DefaultRetryPolicy()
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{
		gateway:    gateway,
		resolver:   resolver,
		logger:     logger,
		poll:       poll,
		batchDelay: opts.BatchDelay,
		clock:      clock,
	}
}

// Execute 按计划完成全部批次并返回执行报告。任何一条腿失败都会中止整个任务，
// 已成交的另一条腿不会自动回撤，由人工对账处理；
// 中途失败时返回已完成批次的部分报告供对账。
// 取消只在批次之间生效：一旦现货腿下单，本批次的轮询与对冲
// 会在脱离取消信号的上下文里跑到终态，避免留下已成交却未对冲的现货。
func (e *Engine) Execute(ctx context.Context, plan Plan) (ExecutionReport, error) {
	if plan.BatchCount <= 0 {
		return ExecutionReport{}, fmt.Errorf("%w: plan has no batches", ErrConfiguration)
	}

	spotCons, err := e.resolver.Resolve(ctx, plan.SpotSymbol, exchange.VenueSpot)
	if err != nil {
		return ExecutionReport{}, err
	}
	futCons, err := e.resolver.Resolve(ctx, plan.FuturesSymbol, exchange.VenueFutures)
	if err != nil {
		return ExecutionReport{}, err
	}

	initialPrice, err := e.gateway.GetPrice(ctx, plan.SpotSymbol, exchange.VenueSpot)
	if err != nil {
		return ExecutionReport{}, err
	}

	e.logger.Info("批次配置就绪",
		zap.String("mode", string(plan.Mode)),
		zap.Int("batches", plan.BatchCount),
		zap.Float64("batch_quote", plan.BatchQuote),
		zap.Float64("spot_price", initialPrice),
		zap.Float64("futures_step", futCons.StepSize),
		zap.Float64("futures_min_qty", futCons.MinQty),
		zap.Float64("futures_min_notional", futCons.MinNotional),
	)

	report := ExecutionReport{
		Mode:    plan.Mode,
		Spot:    LegReport{Symbol: plan.SpotSymbol},
		Futures: LegReport{Symbol: plan.FuturesSymbol},
		Targets: Targets{
			Capital:            plan.Capital,
			TheoreticalBaseQty: plan.Capital / initialPrice,
			BatchQuote:         plan.BatchQuote,
			BatchCount:         plan.BatchCount,
		},
	}

	reverse := plan.Mode == ModeSellSpotLongFutures

	for batch := 0; batch < plan.BatchCount; batch++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		// 批次内从下单到对冲成交之间不响应取消，在途订单必须先到终态。
		legCtx := context.WithoutCancel(ctx)

		spotOrder, err := e.placeSpotLeg(legCtx, plan, batch, reverse, spotCons)
		if err != nil {
			return report, err
		}

		spotOrder, err = e.confirmFill(legCtx, batch, LegSpot, plan.SpotSymbol, exchange.VenueSpot, spotOrder)
		if err != nil {
			return report, err
		}
		if spotOrder.ExecutedQty <= 0 || spotOrder.CumQuote <= 0 {
			return report, &LegFillError{
				Batch:        batch,
				Leg:          LegSpot,
				OrderID:      spotOrder.OrderID,
				Status:       spotOrder.Status,
				RequestedQty: spotOrder.RequestedQty,
				ExecutedQty:  spotOrder.ExecutedQty,
			}
		}

		e.logger.Info("现货腿成交",
			zap.Int("batch", batch+1),
			zap.String("order_id", spotOrder.OrderID),
			zap.Float64("executed_qty", spotOrder.ExecutedQty),
			zap.Float64("quote_spent", spotOrder.CumQuote),
			zap.String("status", string(spotOrder.Status)),
		)

		report.Spot.TotalExecutedQty += spotOrder.ExecutedQty
		report.Spot.TotalQuoteSpent += spotOrder.CumQuote
		report.Spot.Orders = append(report.Spot.Orders, OrderRecord{
			OrderID:      spotOrder.OrderID,
			Status:       spotOrder.Status,
			RequestedQty: spotOrder.RequestedQty,
			ExecutedQty:  spotOrder.ExecutedQty,
			AvgPrice:     spotOrder.AvgPrice,
			QuoteSpent:   spotOrder.CumQuote,
			UpdatedAt:    spotOrder.UpdatedAt,
		})

		futOrder, notional, err := e.placeHedgeLeg(legCtx, plan, batch, spotOrder.ExecutedQty, futCons)
		if err != nil {
			return report, err
		}

		report.Futures.TotalExecutedQty += futOrder.ExecutedQty
		report.Futures.Orders = append(report.Futures.Orders, OrderRecord{
			OrderID:      futOrder.OrderID,
			Status:       futOrder.Status,
			RequestedQty: futOrder.RequestedQty,
			ExecutedQty:  futOrder.ExecutedQty,
			AvgPrice:     futOrder.AvgPrice,
			Notional:     notional,
			UpdatedAt:    futOrder.UpdatedAt,
		})

		if batch < plan.BatchCount-1 && e.batchDelay > 0 {
			e.logger.Debug("等待下一批次",
				zap.Duration("delay", e.batchDelay),
				zap.Int("completed", batch+1),
				zap.Int("total", plan.BatchCount),
			)
			if err := e.clock.Sleep(ctx, e.batchDelay); err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

// placeSpotLeg 提交一个批次的现货腿。正向按 quote 金额买入，
// 反向先取最新价把金额换算成数量再卖出。
func (e *Engine) placeSpotLeg(ctx context.Context, plan Plan, batch int, reverse bool, cons exchange.SymbolConstraints) (exchange.OrderResult, error) {
	if reverse {
		price, err := e.gateway.GetPrice(ctx, plan.SpotSymbol, exchange.VenueSpot)
		if err != nil {
			return exchange.OrderResult{}, err
		}
		target := plan.BatchQuote / price
		qty := exchange.FloorToStep(target, cons.StepSize)
		if err := cons.Validate(plan.SpotSymbol, exchange.VenueSpot, qty, price); err != nil {
			return exchange.OrderResult{}, err
		}

		e.logger.Info("提交现货批次",
			zap.Int("batch", batch+1),
			zap.Int("total", plan.BatchCount),
			zap.String("side", string(exchange.SideSell)),
			zap.Float64("qty", qty),
			zap.Float64("est_quote", plan.BatchQuote),
		)
		return e.gateway.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{
			Symbol:        plan.SpotSymbol,
			Venue:         exchange.VenueSpot,
			Side:          exchange.SideSell,
			Quantity:      qty,
			ClientOrderID: newClientOrderID(),
		})
	}

	e.logger.Info("提交现货批次",
		zap.Int("batch", batch+1),
		zap.Int("total", plan.BatchCount),
		zap.String("side", string(exchange.SideBuy)),
		zap.Float64("quote", plan.BatchQuote),
	)
	return e.gateway.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{
		Symbol:        plan.SpotSymbol,
		Venue:         exchange.VenueSpot,
		Side:          exchange.SideBuy,
		QuoteQuantity: plan.BatchQuote,
		ClientOrderID: newClientOrderID(),
	})
}

// placeHedgeLeg 按现货成交量计算对冲数量并提交合约腿。
// 对冲量用合约侧的步长与此刻的合约价格校验，现货价不可替代。
func (e *Engine) placeHedgeLeg(ctx context.Context, plan Plan, batch int, spotExecutedQty float64, cons exchange.SymbolConstraints) (exchange.OrderResult, float64, error) {
	hedgeQty := exchange.FloorToStep(spotExecutedQty, cons.StepSize)

	futPrice, err := e.gateway.GetPrice(ctx, plan.FuturesSymbol, exchange.VenueFutures)
	if err != nil {
		return exchange.OrderResult{}, 0, err
	}
	if err := cons.Validate(plan.FuturesSymbol, exchange.VenueFutures, hedgeQty, futPrice); err != nil {
		return exchange.OrderResult{}, 0, err
	}

	side := plan.Mode.HedgeSide()
	e.logger.Info("提交合约对冲腿",
		zap.Int("batch", batch+1),
		zap.String("side", string(side)),
		zap.Float64("qty", hedgeQty),
	)

	order, err := e.gateway.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{
		Symbol:        plan.FuturesSymbol,
		Venue:         exchange.VenueFutures,
		Side:          side,
		Quantity:      hedgeQty,
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		return exchange.OrderResult{}, 0, err
	}

	order, err = e.confirmFill(ctx, batch, LegFutures, plan.FuturesSymbol, exchange.VenueFutures, order)
	if err != nil {
		return exchange.OrderResult{}, 0, err
	}
	if order.ExecutedQty <= 0 {
		return exchange.OrderResult{}, 0, &LegFillError{
			Batch:        batch,
			Leg:          LegFutures,
			OrderID:      order.OrderID,
			Status:       order.Status,
			RequestedQty: hedgeQty,
			ExecutedQty:  order.ExecutedQty,
		}
	}

	effectivePrice := order.AvgPrice
	if effectivePrice <= 0 {
		effectivePrice = futPrice
	}
	notional := order.ExecutedQty * effectivePrice

	e.logger.Info("合约腿成交",
		zap.Int("batch", batch+1),
		zap.String("order_id", order.OrderID),
		zap.Float64("executed_qty", order.ExecutedQty),
		zap.Float64("notional", notional),
		zap.String("status", string(order.Status)),
	)

	return order, notional, nil
}

// confirmFill 等待订单进入终态。即时回报已含成交量时直接返回；
// 轮询耗尽仍非终态视为超时，终态但未成交视为该腿失败。
func (e *Engine) confirmFill(ctx context.Context, batch int, leg Leg, symbol string, venue exchange.Venue, order exchange.OrderResult) (exchange.OrderResult, error) {
	if order.ExecutedQty > 0 {
		return order, nil
	}
	if order.OrderID == "" {
		return order, &LegFillError{
			Batch:        batch,
			Leg:          leg,
			Status:       order.Status,
			RequestedQty: order.RequestedQty,
		}
	}

	last := order
	for attempt := 1; attempt <= e.poll.MaxAttempts; attempt++ {
		if err := e.clock.Sleep(ctx, e.poll.Interval); err != nil {
			return last, err
		}

		polled, err := e.gateway.GetOrder(ctx, symbol, venue, order.OrderID)
		if err != nil {
			return last, err
		}
		last = polled

		e.logger.Debug("轮询订单状态",
			zap.String("leg", string(leg)),
			zap.String("order_id", order.OrderID),
			zap.String("status", string(polled.Status)),
			zap.Float64("executed_qty", polled.ExecutedQty),
		)

		if polled.Status.Terminal() {
			break
		}
	}

	if !last.Status.Terminal() {
		return last, &FillTimeoutError{
			Batch:    batch,
			Leg:      leg,
			OrderID:  order.OrderID,
			Attempts: e.poll.MaxAttempts,
		}
	}
	if !last.Status.FilledLike() {
		return last, &LegFillError{
			Batch:        batch,
			Leg:          leg,
			OrderID:      last.OrderID,
			Status:       last.Status,
			RequestedQty: last.RequestedQty,
			ExecutedQty:  last.ExecutedQty,
		}
	}

	return last, nil
}

func newClientOrderID() string {
	return "farb-" + uuid.NewString()
}
