package scanner

import (
	"context"
	"errors"
	"testing"

	"funding-arb/internal/exchange"
)

type fakeMarketData struct {
	spotSymbols    []string
	futuresSymbols []string
	tickers        map[string]exchange.TickerStats
	funding        map[string]exchange.FundingSnapshot
}

func (f *fakeMarketData) ListSymbols(_ context.Context, venue exchange.Venue) ([]string, error) {
	if venue == exchange.VenueFutures {
		return f.futuresSymbols, nil
	}
	return f.spotSymbols, nil
}

func (f *fakeMarketData) GetTickerStats(_ context.Context, symbol string, venue exchange.Venue) (exchange.TickerStats, error) {
	stats, ok := f.tickers[string(venue)+"|"+symbol]
	if !ok {
		return exchange.TickerStats{}, errors.New("no ticker configured")
	}
	return stats, nil
}

func (f *fakeMarketData) GetFundingRate(_ context.Context, symbol string) (exchange.FundingSnapshot, error) {
	snapshot, ok := f.funding[symbol]
	if !ok {
		return exchange.FundingSnapshot{}, errors.New("no funding configured")
	}
	return snapshot, nil
}

func healthyTicker(symbol string, price, volume float64) exchange.TickerStats {
	return exchange.TickerStats{
		Symbol:      symbol,
		Last:        price,
		High:        price * 1.03,
		Low:         price * 0.98,
		QuoteVolume: volume,
		Change24h:   0.04,
	}
}

func addPair(f *fakeMarketData, base string, price, volume, fundingRate float64) {
	spot := base + "/USDT"
	futures := spot + ":USDT"
	f.spotSymbols = append(f.spotSymbols, spot)
	f.futuresSymbols = append(f.futuresSymbols, futures)
	f.tickers["spot|"+spot] = healthyTicker(spot, price, volume)
	f.tickers["futures|"+futures] = healthyTicker(futures, price*1.0005, volume*3)
	f.funding[futures] = exchange.FundingSnapshot{Rate: fundingRate}
}

func newFakeMarketData() *fakeMarketData {
	return &fakeMarketData{
		tickers: make(map[string]exchange.TickerStats),
		funding: make(map[string]exchange.FundingSnapshot),
	}
}

func TestScan_OnlyAnalyzesCommonSymbols(t *testing.T) {
	fake := newFakeMarketData()
	addPair(fake, "ASTER", 2.0, 5_000_000, 0.006)

	// 只在现货上市
	fake.spotSymbols = append(fake.spotSymbols, "SPOTONLY/USDT")
	// 只在合约上市
	fake.futuresSymbols = append(fake.futuresSymbols, "FUTONLY/USDT:USDT")
	// 非 USDT 计价
	fake.spotSymbols = append(fake.spotSymbols, "ASTER/BTC")

	scan := NewScanner(fake, nil, Options{Workers: 2})
	report, err := scan.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if len(report.Results) != 1 {
		t.Fatalf("expected single common pair, got %d", len(report.Results))
	}
	if report.Results[0].Symbol != "ASTER/USDT" {
		t.Errorf("unexpected symbol: %s", report.Results[0].Symbol)
	}
	if report.Results[0].FuturesSymbol != "ASTER/USDT:USDT" {
		t.Errorf("unexpected futures symbol: %s", report.Results[0].FuturesSymbol)
	}
}

func TestScan_FiltersAndSortsByScore(t *testing.T) {
	fake := newFakeMarketData()
	addPair(fake, "AAA", 2.0, 5_000_000, 0.006)  // 优秀费率
	addPair(fake, "BBB", 3.0, 5_000_000, 0.0002) // 弱正费率
	addPair(fake, "CCC", 1.0, 50_000, 0.006)     // 现货量不足，过滤
	addPair(fake, "DDD", 1.0, 5_000_000, -0.003) // 负费率超限，过滤

	scan := NewScanner(fake, nil, Options{Workers: 4})
	report, err := scan.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("expected 2 surviving pairs, got %d", len(report.Results))
	}
	if report.Results[0].Symbol != "AAA/USDT" {
		t.Errorf("expected AAA/USDT first by score, got %s", report.Results[0].Symbol)
	}
	if report.Results[0].Score <= report.Results[1].Score {
		t.Errorf("results not sorted by score: %v vs %v", report.Results[0].Score, report.Results[1].Score)
	}
	if report.Results[0].Recommendation != "excellent" {
		t.Errorf("expected excellent recommendation, got %s", report.Results[0].Recommendation)
	}
}

func TestScan_SurvivesPerPairFailures(t *testing.T) {
	fake := newFakeMarketData()
	addPair(fake, "AAA", 2.0, 5_000_000, 0.006)

	// 合约行情缺失：该对分析失败但整体扫描继续
	fake.spotSymbols = append(fake.spotSymbols, "BROKEN/USDT")
	fake.futuresSymbols = append(fake.futuresSymbols, "BROKEN/USDT:USDT")
	fake.tickers["spot|BROKEN/USDT"] = healthyTicker("BROKEN/USDT", 1.0, 5_000_000)

	scan := NewScanner(fake, nil, Options{Workers: 2})
	report, err := scan.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected broken pair to be skipped, got %d results", len(report.Results))
	}
}

func TestScoreBoundaries(t *testing.T) {
	scan := NewScanner(newFakeMarketData(), nil, Options{})
	spot := healthyTicker("AAA/USDT", 2.0, 50_000_000)
	futures := healthyTicker("AAA/USDT:USDT", 2.0, 50_000_000)

	// 高费率高量零价差适度波动不得超过 100 分
	if got := scan.score(spot, futures, 0.01, 0, 0.05); got > 100 {
		t.Errorf("score exceeded cap: %v", got)
	}

	// 负费率显著压低评分
	positive := scan.score(spot, futures, 0.006, 0.0005, 0.05)
	negative := scan.score(spot, futures, -0.001, 0.0005, 0.05)
	if negative >= positive {
		t.Errorf("negative funding should lower the score: %v >= %v", negative, positive)
	}

	// 评分不会为负
	if got := scan.score(healthyTicker("X", 1, 0), healthyTicker("X", 1, 0), -0.001, 0.01, 0.3); got < 0 {
		t.Errorf("score went negative: %v", got)
	}
}
