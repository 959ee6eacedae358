package exchange

import (
	"context"
	"errors"
	"testing"
)

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		step  float64
		want  float64
	}{
		{name: "rounds down to step", value: 49.987, step: 0.01, want: 49.98},
		{name: "exact multiple unchanged", value: 50, step: 0.01, want: 50},
		{name: "binary float drift", value: 0.3, step: 0.1, want: 0.3},
		{name: "below one step", value: 0.0075, step: 0.01, want: 0},
		{name: "zero step passthrough", value: 1.2345, step: 0, want: 1.2345},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FloorToStep(tc.value, tc.step); got != tc.want {
				t.Errorf("FloorToStep(%v, %v) = %v, want %v", tc.value, tc.step, got, tc.want)
			}
		})
	}
}

func TestFloorToStep_Idempotent(t *testing.T) {
	values := []float64{49.987, 0.105, 1234.5678, 0.019999}
	for _, v := range values {
		once := FloorToStep(v, 0.01)
		twice := FloorToStep(once, 0.01)
		if once != twice {
			t.Errorf("flooring %v twice changed the result: %v -> %v", v, once, twice)
		}
	}
}

func TestSymbolConstraintsValidate(t *testing.T) {
	cons := SymbolConstraints{StepSize: 0.01, MinQty: 0.1, MinNotional: 10}

	if err := cons.Validate("ASTER/USDT", VenueSpot, 5, 2.0); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	var consErr *ConstraintViolationError

	err := cons.Validate("ASTER/USDT", VenueSpot, 0.05, 2.0)
	if !errors.As(err, &consErr) {
		t.Fatalf("expected min-qty violation, got %v", err)
	}

	err = cons.Validate("ASTER/USDT", VenueSpot, 1, 2.0)
	if !errors.As(err, &consErr) {
		t.Fatalf("expected min-notional violation (2 USDT < 10), got %v", err)
	}
}

type stubConstraintGateway struct {
	Gateway
	calls int
	cons  SymbolConstraints
	err   error
}

func (s *stubConstraintGateway) GetSymbolConstraints(context.Context, string, Venue) (SymbolConstraints, error) {
	s.calls++
	if s.err != nil {
		return SymbolConstraints{}, s.err
	}
	return s.cons, nil
}

func TestResolverCachesPerVenueAndSymbol(t *testing.T) {
	stub := &stubConstraintGateway{cons: SymbolConstraints{StepSize: 0.01, MinQty: 0.01}}
	resolver := NewResolver(stub, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(ctx, "ASTER/USDT", VenueSpot); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if stub.calls != 1 {
		t.Errorf("expected single gateway fetch for repeated symbol, got %d", stub.calls)
	}

	if _, err := resolver.Resolve(ctx, "ASTER/USDT", VenueFutures); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("same symbol on another venue must fetch again, got %d calls", stub.calls)
	}
}

func TestResolverDoesNotCacheErrors(t *testing.T) {
	stub := &stubConstraintGateway{err: ErrConstraintUnavailable}
	resolver := NewResolver(stub, nil)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, "ASTER/USDT", VenueSpot); !errors.Is(err, ErrConstraintUnavailable) {
		t.Fatalf("expected ErrConstraintUnavailable, got %v", err)
	}

	stub.err = nil
	stub.cons = SymbolConstraints{StepSize: 0.01}
	cons, err := resolver.Resolve(ctx, "ASTER/USDT", VenueSpot)
	if err != nil {
		t.Fatalf("Resolve after recovery returned error: %v", err)
	}
	if cons.StepSize != 0.01 {
		t.Errorf("unexpected constraints after recovery: %+v", cons)
	}
}
