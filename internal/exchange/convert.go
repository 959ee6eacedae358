package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// convertOrder 将 ccxt 订单转换为统一结果。币安原生状态优先于 ccxt 归一状态，
// 因为后者把部分成交也归为 open。
func convertOrder(raw ccxt.Order, symbol string, venue Venue) OrderResult {
	result := OrderResult{
		OrderID:      derefString(raw.Id),
		Symbol:       symbol,
		Venue:        venue,
		Side:         Side(strings.ToLower(derefString(raw.Side))),
		RequestedQty: derefFloat(raw.Amount),
		ExecutedQty:  derefFloat(raw.Filled),
		AvgPrice:     derefFloat(raw.Average),
		CumQuote:     derefFloat(raw.Cost),
		UpdatedAt:    time.Now().UTC(),
	}

	rawStatus := ""
	if raw.Info != nil {
		rawStatus, _ = raw.Info["status"].(string)
		if result.OrderID == "" {
			if id := raw.Info["orderId"]; id != nil {
				result.OrderID = fmt.Sprintf("%v", id)
			}
		}
		if result.ExecutedQty == 0 {
			result.ExecutedQty = parseNumeric(raw.Info["executedQty"])
		}
		if result.CumQuote == 0 {
			for _, key := range []string{"cumQuote", "cummulativeQuoteQty", "executedQuoteQty"} {
				if v := parseNumeric(raw.Info[key]); v > 0 {
					result.CumQuote = v
					break
				}
			}
		}
		if result.AvgPrice == 0 {
			result.AvgPrice = parseNumeric(raw.Info["avgPrice"])
		}
	}

	result.Status = normalizeStatus(rawStatus, derefString(raw.Status), result.ExecutedQty)
	return result
}

func normalizeStatus(native, unified string, executed float64) OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(native)) {
	case "NEW":
		return OrderStatusNew
	case "PARTIALLY_FILLED":
		return OrderStatusPartiallyFilled
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED":
		return OrderStatusCanceled
	case "EXPIRED":
		return OrderStatusExpired
	case "REJECTED":
		return OrderStatusRejected
	}

	switch strings.ToLower(strings.TrimSpace(unified)) {
	case "closed":
		return OrderStatusFilled
	case "canceled":
		return OrderStatusCanceled
	case "expired":
		return OrderStatusExpired
	case "rejected":
		return OrderStatusRejected
	case "open":
		if executed > 0 {
			return OrderStatusPartiallyFilled
		}
		return OrderStatusNew
	}

	return OrderStatusNew
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}
