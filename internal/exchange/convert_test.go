package exchange

import (
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestConvertOrder_NativeStatusWins(t *testing.T) {
	// ccxt 把部分成交归为 open，币安原生状态必须优先
	raw := ccxt.Order{
		Id:     strPtr("123"),
		Status: strPtr("open"),
		Side:   strPtr("BUY"),
		Amount: floatPtr(50),
		Filled: floatPtr(20),
		Cost:   floatPtr(40),
		Info: map[string]interface{}{
			"status": "PARTIALLY_FILLED",
		},
	}

	result := convertOrder(raw, "ASTER/USDT", VenueSpot)

	if result.Status != OrderStatusPartiallyFilled {
		t.Errorf("expected partially_filled, got %s", result.Status)
	}
	if result.Side != SideBuy {
		t.Errorf("expected buy side, got %s", result.Side)
	}
	if result.ExecutedQty != 20 || result.CumQuote != 40 {
		t.Errorf("unexpected fill fields: %+v", result)
	}
}

func TestConvertOrder_FallsBackToInfoFields(t *testing.T) {
	raw := ccxt.Order{
		Info: map[string]interface{}{
			"orderId":             int64(456),
			"status":              "FILLED",
			"executedQty":         "49.98",
			"cummulativeQuoteQty": "99.96",
			"avgPrice":            "2.0",
		},
	}

	result := convertOrder(raw, "ASTER/USDT", VenueSpot)

	if result.OrderID != "456" {
		t.Errorf("expected order id from info, got %q", result.OrderID)
	}
	if result.Status != OrderStatusFilled {
		t.Errorf("expected filled, got %s", result.Status)
	}
	if result.ExecutedQty != 49.98 {
		t.Errorf("expected executed qty from info, got %v", result.ExecutedQty)
	}
	if result.CumQuote != 99.96 {
		t.Errorf("expected cum quote from info, got %v", result.CumQuote)
	}
	if result.AvgPrice != 2.0 {
		t.Errorf("expected avg price from info, got %v", result.AvgPrice)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		native   string
		unified  string
		executed float64
		want     OrderStatus
	}{
		{native: "NEW", want: OrderStatusNew},
		{native: "FILLED", unified: "open", want: OrderStatusFilled},
		{native: "CANCELED", want: OrderStatusCanceled},
		{native: "EXPIRED", want: OrderStatusExpired},
		{native: "REJECTED", want: OrderStatusRejected},
		{unified: "closed", want: OrderStatusFilled},
		{unified: "open", executed: 0, want: OrderStatusNew},
		{unified: "open", executed: 5, want: OrderStatusPartiallyFilled},
		{want: OrderStatusNew},
	}

	for _, tc := range cases {
		if got := normalizeStatus(tc.native, tc.unified, tc.executed); got != tc.want {
			t.Errorf("normalizeStatus(%q, %q, %v) = %s, want %s", tc.native, tc.unified, tc.executed, got, tc.want)
		}
	}
}

func TestOrderStatusPredicates(t *testing.T) {
	terminal := []OrderStatus{
		OrderStatusFilled, OrderStatusPartiallyFilled,
		OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if OrderStatusNew.Terminal() {
		t.Error("new should not be terminal")
	}

	if !OrderStatusFilled.FilledLike() || !OrderStatusPartiallyFilled.FilledLike() {
		t.Error("filled and partially_filled should count as fills")
	}
	if OrderStatusCanceled.FilledLike() {
		t.Error("canceled should not count as a fill")
	}
}

func TestParseNumeric(t *testing.T) {
	if got := parseNumeric("49.98"); got != 49.98 {
		t.Errorf("string parse failed: %v", got)
	}
	if got := parseNumeric(12.5); got != 12.5 {
		t.Errorf("float passthrough failed: %v", got)
	}
	if got := parseNumeric(nil); got != 0 {
		t.Errorf("nil should parse to zero: %v", got)
	}
	if got := parseNumeric("not-a-number"); got != 0 {
		t.Errorf("garbage should parse to zero: %v", got)
	}
}
