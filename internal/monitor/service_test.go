package monitor

import (
	"context"
	"testing"

	"funding-arb/internal/config"
	"funding-arb/internal/risk"
	"funding-arb/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestRecordActionsRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordActions(ctx, "ASTER/USDT:USDT", []risk.ActionEvent{
		{
			Type:     risk.ActionProfitTake,
			Rule:     "partial_take_1",
			Quantity: 25,
			Executed: true,
			Reason:   "ladder threshold reached",
		},
	})

	events, err := svc.ListEvents(ctx, EventAction, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 action event, got %d", len(events))
	}
	if events[0].Type != EventAction {
		t.Errorf("unexpected event type: %s", events[0].Type)
	}

	payload, ok := events[0].Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload did not decode to a map: %T", events[0].Payload)
	}
	if payload["symbol"] != "ASTER/USDT:USDT" {
		t.Errorf("unexpected symbol in payload: %v", payload["symbol"])
	}
}

func TestRecordActionsSkipsEmptyCycles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordActions(ctx, "ASTER/USDT:USDT", nil)

	events, err := svc.ListEvents(ctx, EventAction, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("empty action cycle must not be persisted, got %d events", len(events))
	}
}

func TestListEventsFiltersByTypeAndOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordError(ctx, "first", nil, nil)
	svc.RecordError(ctx, "second", context.DeadlineExceeded, map[string]interface{}{"symbol": "ASTER/USDT"})
	svc.RecordActions(ctx, "ASTER/USDT:USDT", []risk.ActionEvent{{Type: risk.ActionFundingWarning, Executed: true}})

	errorEvents, err := svc.ListEvents(ctx, EventError, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(errorEvents) != 2 {
		t.Fatalf("expected 2 error events, got %d", len(errorEvents))
	}

	// 时间倒序，最近的在前
	first, ok := errorEvents[0].Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload did not decode to a map: %T", errorEvents[0].Payload)
	}
	if first["message"] != "second" {
		t.Errorf("expected newest event first, got %v", first["message"])
	}
	if first["error"] == "" {
		t.Errorf("expected error string in payload, got %v", first)
	}
}
