package risk

import (
	"context"
	"math"
	"testing"

	"funding-arb/internal/config"
	"funding-arb/internal/exchange"
)

const testSymbol = "ASTER/USDT:USDT"

type fakeGateway struct {
	placed   []exchange.MarketOrderRequest
	placeErr error
	status   exchange.OrderStatus
}

func (f *fakeGateway) GetPrice(context.Context, string, exchange.Venue) (float64, error) {
	return 2.0, nil
}

func (f *fakeGateway) GetSymbolConstraints(context.Context, string, exchange.Venue) (exchange.SymbolConstraints, error) {
	return exchange.SymbolConstraints{StepSize: 0.01, MinQty: 0.01, MinNotional: 5}, nil
}

func (f *fakeGateway) PlaceMarketOrder(_ context.Context, req exchange.MarketOrderRequest) (exchange.OrderResult, error) {
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return exchange.OrderResult{}, f.placeErr
	}
	status := f.status
	if status == "" {
		status = exchange.OrderStatusFilled
	}
	return exchange.OrderResult{
		OrderID:     "close-1",
		Status:      status,
		ExecutedQty: req.Quantity,
	}, nil
}

func (f *fakeGateway) GetOrder(context.Context, string, exchange.Venue, string) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}

func (f *fakeGateway) GetPosition(context.Context, string) (exchange.PositionSnapshot, bool, error) {
	return exchange.PositionSnapshot{}, false, nil
}

func (f *fakeGateway) GetAccount(context.Context) (exchange.AccountSnapshot, error) {
	return exchange.AccountSnapshot{}, nil
}

func (f *fakeGateway) GetFundingRate(context.Context, string) (exchange.FundingSnapshot, error) {
	return exchange.FundingSnapshot{}, nil
}

func testRulesConfig() config.RulesConfig {
	return config.RulesConfig{
		ProfitTargets: []config.LadderRung{
			{Threshold: 10, Percentage: 0.25},
			{Threshold: 25, Percentage: 0.30},
			{Threshold: 50, Percentage: 0.40},
			{Threshold: 100, Percentage: 1.0},
		},
		StopLoss:         -20,
		TrailingStop:     true,
		TrailingDistance: 10,
		MaxDrawdown:      15,
		MarginLimit:      0.35,
		Funding: config.FundingConfig{
			NegativeThreshold: -0.002,
			VeryNegative:      -0.005,
		},
	}
}

func longPosition(size, pnl float64) exchange.PositionSnapshot {
	return exchange.PositionSnapshot{
		Symbol:        testSymbol,
		Side:          exchange.PositionLong,
		Size:          size,
		EntryPrice:    2.0,
		MarkPrice:     2.1,
		UnrealizedPnl: pnl,
		Notional:      size * 2.1,
	}
}

func newTestManager(gw exchange.Gateway, cfg config.RulesConfig) *Manager {
	return NewManager(cfg, gw, nil, testSymbol, false, nil)
}

func TestEvaluateCycle_LadderFiresOncePerRungAscending(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())
	ctx := context.Background()

	type step struct {
		pnl      float64
		wantRule string
	}
	steps := []step{
		{pnl: 5, wantRule: ""},
		{pnl: 12, wantRule: "partial_take_1"},
		{pnl: 26, wantRule: "partial_take_2"},
		{pnl: 60, wantRule: "partial_take_3"},
		{pnl: 110, wantRule: "full_exit"},
	}

	for _, s := range steps {
		events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, s.pnl)})

		var fired string
		for _, event := range events {
			if event.Type == ActionProfitTake {
				if fired != "" {
					t.Fatalf("pnl=%v: more than one ladder rung fired in a single cycle", s.pnl)
				}
				fired = event.Rule
			}
		}
		if fired != s.wantRule {
			t.Errorf("pnl=%v: fired rung %q, want %q", s.pnl, fired, s.wantRule)
		}
	}

	if len(gw.placed) != 4 {
		t.Fatalf("expected 4 close orders, got %d", len(gw.placed))
	}
	for i, req := range gw.placed {
		if !req.ReduceOnly {
			t.Errorf("order %d: ladder close must be reduce-only", i)
		}
		if req.Side != exchange.SideSell {
			t.Errorf("order %d: long position closes with sell, got %s", i, req.Side)
		}
	}

	if mgr.State() != StateClosed {
		t.Errorf("expected closed lifecycle after full_exit rung, got %s", mgr.State())
	}

	// 已实现收益 = 数量 x (mark - entry)，多头方向为正
	wantRealized := (25.0 + 30.0 + 40.0 + 100.0) * 0.1
	if diff := math.Abs(mgr.TotalRealizedProfit() - wantRealized); diff > 1e-6 {
		t.Errorf("total realized profit %v, want about %v", mgr.TotalRealizedProfit(), wantRealized)
	}

	// 封存后同一档位不再触发
	events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 120)})
	for _, event := range events {
		if event.Type == ActionProfitTake {
			t.Errorf("latched rung fired again: %s", event.Rule)
		}
	}
}

func TestEvaluateCycle_StopLossAtBoundary(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())

	events := mgr.EvaluateCycle(context.Background(), CycleInput{Position: longPosition(100, -20)})

	if len(events) != 1 || events[0].Type != ActionStopLoss {
		t.Fatalf("expected single stop_loss event at pnl=-20, got %+v", events)
	}
	if len(gw.placed) != 1 || gw.placed[0].Quantity != 100 {
		t.Fatalf("expected full-size close order, got %+v", gw.placed)
	}
	if mgr.State() != StateClosed {
		t.Errorf("expected closed state after stop loss, got %s", mgr.State())
	}
}

func TestEvaluateCycle_TrailingStopUsesPeakDistance(t *testing.T) {
	cfg := testRulesConfig()
	cfg.ProfitTargets = []config.LadderRung{{Threshold: 1000, Percentage: 0.25}}

	gw := &fakeGateway{}
	mgr := newTestManager(gw, cfg)
	ctx := context.Background()

	mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 50)})
	if mgr.PeakPnl() != 50 {
		t.Fatalf("expected peak 50, got %v", mgr.PeakPnl())
	}

	events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 41)})
	if len(events) != 0 {
		t.Fatalf("pnl=41 with peak=50 must not trigger trailing stop, got %+v", events)
	}

	events = mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 39.9)})
	if len(events) != 1 || events[0].Type != ActionTrailingStop {
		t.Fatalf("pnl=39.9 with peak=50 must trigger trailing stop, got %+v", events)
	}
}

func TestEvaluateCycle_PeakIsMonotoneAndResets(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())
	ctx := context.Background()

	mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 8)})
	mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 3)})
	if mgr.PeakPnl() != 8 {
		t.Errorf("peak must not decrease, got %v", mgr.PeakPnl())
	}

	mgr.ObserveNoPosition()
	if mgr.PeakPnl() != 0 {
		t.Errorf("expected peak reset after no-position, got %v", mgr.PeakPnl())
	}
	if mgr.TotalRealizedProfit() != 0 {
		t.Errorf("expected realized profit reset, got %v", mgr.TotalRealizedProfit())
	}
	if mgr.State() != StateNoPosition {
		t.Errorf("expected no_position state, got %s", mgr.State())
	}
}

func TestEvaluateCycle_FailedCloseDoesNotLatch(t *testing.T) {
	gw := &fakeGateway{placeErr: context.DeadlineExceeded}
	mgr := newTestManager(gw, testRulesConfig())
	ctx := context.Background()

	events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 12)})
	if len(events) != 1 || events[0].Type != ActionProfitTake || events[0].Error == "" {
		t.Fatalf("expected failed profit_take event, got %+v", events)
	}

	// 失败不封存，条件仍成立时下一轮重试同一档
	events = mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 12)})
	if len(events) != 1 || events[0].Rule != "partial_take_1" {
		t.Fatalf("expected rung to re-fire after failure, got %+v", events)
	}

	gw.placeErr = nil
	events = mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 12)})
	if len(events) != 1 || events[0].Error != "" || !events[0].Executed {
		t.Fatalf("expected successful retry, got %+v", events)
	}

	events = mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 12)})
	for _, event := range events {
		if event.Type == ActionProfitTake {
			t.Errorf("latched rung fired again after success: %+v", event)
		}
	}
}

func TestEvaluateCycle_StopLossRefiresWhileCloseFails(t *testing.T) {
	gw := &fakeGateway{placeErr: context.DeadlineExceeded}
	mgr := newTestManager(gw, testRulesConfig())
	ctx := context.Background()

	// 止损没有封存位，条件持续成立时每轮都重试
	for cycle := 1; cycle <= 3; cycle++ {
		events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, -25)})
		if len(events) != 1 || events[0].Type != ActionStopLoss || events[0].Error == "" {
			t.Fatalf("cycle %d: expected failed stop_loss event, got %+v", cycle, events)
		}
		if mgr.State() == StateClosed {
			t.Fatalf("cycle %d: failed close must not mark lifecycle closed", cycle)
		}
	}
	if len(gw.placed) != 3 {
		t.Fatalf("expected one close attempt per cycle, got %d", len(gw.placed))
	}

	gw.placeErr = nil
	events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, -25)})
	if len(events) != 1 || events[0].Error != "" || !events[0].Executed {
		t.Fatalf("expected successful stop loss once gateway recovers, got %+v", events)
	}
	if mgr.State() != StateClosed {
		t.Errorf("expected closed state after successful stop loss, got %s", mgr.State())
	}
}

func TestEvaluateCycle_TrailingStopRefiresWhileCloseFails(t *testing.T) {
	cfg := testRulesConfig()
	cfg.ProfitTargets = []config.LadderRung{{Threshold: 1000, Percentage: 0.25}}

	gw := &fakeGateway{}
	mgr := newTestManager(gw, cfg)
	ctx := context.Background()

	mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 50)})

	gw.placeErr = context.DeadlineExceeded
	for cycle := 1; cycle <= 2; cycle++ {
		events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 39)})
		if len(events) != 1 || events[0].Type != ActionTrailingStop || events[0].Error == "" {
			t.Fatalf("cycle %d: expected failed trailing_stop event, got %+v", cycle, events)
		}
	}
	if len(gw.placed) != 2 {
		t.Fatalf("expected one close attempt per cycle, got %d", len(gw.placed))
	}

	gw.placeErr = nil
	events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 39)})
	if len(events) != 1 || !events[0].Executed {
		t.Fatalf("expected successful trailing stop once gateway recovers, got %+v", events)
	}
	if mgr.State() != StateClosed {
		t.Errorf("expected closed state after trailing stop, got %s", mgr.State())
	}
}

func TestEvaluateCycle_DrawdownProtection(t *testing.T) {
	cfg := testRulesConfig()
	cfg.TrailingStop = false
	cfg.ProfitTargets = []config.LadderRung{{Threshold: 1000, Percentage: 0.25}}

	gw := &fakeGateway{}
	mgr := newTestManager(gw, cfg)
	ctx := context.Background()

	mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 30)})
	events := mgr.EvaluateCycle(ctx, CycleInput{Position: longPosition(100, 10)})

	if len(events) != 1 || events[0].Type != ActionDrawdownProtection {
		t.Fatalf("expected drawdown_protection at drawdown=20, got %+v", events)
	}
	// 50% x 100 按步长 0.01 取整
	if gw.placed[0].Quantity != 50 {
		t.Errorf("expected half-size close, got %v", gw.placed[0].Quantity)
	}
}

func TestEvaluateCycle_MarginLimit(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())
	ctx := context.Background()

	events := mgr.EvaluateCycle(ctx, CycleInput{
		Position:   longPosition(100, 2),
		Account:    exchange.AccountSnapshot{MarginRatio: 0.34},
		HasAccount: true,
	})
	if len(events) != 0 {
		t.Fatalf("margin ratio 0.34 below limit must not fire, got %+v", events)
	}

	events = mgr.EvaluateCycle(ctx, CycleInput{
		Position:   longPosition(100, 2),
		Account:    exchange.AccountSnapshot{MarginRatio: 0.36},
		HasAccount: true,
	})
	if len(events) != 1 || events[0].Type != ActionMarginManagement {
		t.Fatalf("margin ratio 0.36 must fire margin_management, got %+v", events)
	}
	if gw.placed[0].Quantity != 30 {
		t.Errorf("expected 30%% close of size 100, got %v", gw.placed[0].Quantity)
	}
}

func TestEvaluateCycle_FundingRules(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())
	ctx := context.Background()

	// 轻微负费率只预警，不下单
	events := mgr.EvaluateCycle(ctx, CycleInput{
		Position:   longPosition(100, 2),
		Funding:    exchange.FundingSnapshot{Rate: -0.003},
		HasFunding: true,
	})
	if len(events) != 1 || events[0].Type != ActionFundingWarning {
		t.Fatalf("expected funding_warning at rate=-0.003, got %+v", events)
	}
	if len(gw.placed) != 0 {
		t.Fatalf("funding warning must not place orders, got %d", len(gw.placed))
	}

	// 严重负费率强制全平
	events = mgr.EvaluateCycle(ctx, CycleInput{
		Position:   longPosition(100, 2),
		Funding:    exchange.FundingSnapshot{Rate: -0.006},
		HasFunding: true,
	})
	if len(events) != 1 || events[0].Type != ActionFundingExit {
		t.Fatalf("expected funding_exit at rate=-0.006, got %+v", events)
	}
	if len(gw.placed) != 1 || gw.placed[0].Quantity != 100 {
		t.Fatalf("expected full-size close, got %+v", gw.placed)
	}
}

func TestEvaluateCycle_DustCloseIsNoOp(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())

	// 0.03 x 25% = 0.0075，低于步长 0.01
	events := mgr.EvaluateCycle(context.Background(), CycleInput{Position: longPosition(0.03, 12)})

	if len(events) != 1 || events[0].Type != ActionProfitTake {
		t.Fatalf("expected profit_take event, got %+v", events)
	}
	if !events[0].NoOp || !events[0].Executed {
		t.Errorf("dust close must be recorded as executed no-op, got %+v", events[0])
	}
	if len(gw.placed) != 0 {
		t.Errorf("dust close must not reach the exchange, got %d orders", len(gw.placed))
	}
}

func TestEvaluateCycle_DryRunSkipsOrders(t *testing.T) {
	gw := &fakeGateway{}
	mgr := NewManager(testRulesConfig(), gw, nil, testSymbol, true, nil)

	events := mgr.EvaluateCycle(context.Background(), CycleInput{Position: longPosition(100, 12)})

	if len(events) != 1 || !events[0].Executed {
		t.Fatalf("expected executed dry-run event, got %+v", events)
	}
	if len(gw.placed) != 0 {
		t.Errorf("dry-run must not place orders, got %d", len(gw.placed))
	}
}

func TestEvaluateCycle_ShortPositionClosesWithBuy(t *testing.T) {
	gw := &fakeGateway{}
	mgr := newTestManager(gw, testRulesConfig())

	pos := exchange.PositionSnapshot{
		Symbol:        testSymbol,
		Side:          exchange.PositionShort,
		Size:          100,
		EntryPrice:    2.1,
		MarkPrice:     2.0,
		UnrealizedPnl: 12,
	}
	events := mgr.EvaluateCycle(context.Background(), CycleInput{Position: pos})

	if len(events) != 1 || events[0].Type != ActionProfitTake {
		t.Fatalf("expected profit_take, got %+v", events)
	}
	if gw.placed[0].Side != exchange.SideBuy {
		t.Errorf("short position closes with buy, got %s", gw.placed[0].Side)
	}
	// 空头方向已实现收益 = -qty x (mark - entry)
	if diff := math.Abs(events[0].RealizedProfit - 25*0.1); diff > 1e-6 {
		t.Errorf("unexpected realized profit for short: %v", events[0].RealizedProfit)
	}
}
