package scanner

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"funding-arb/internal/exchange"
)

const (
	defaultWorkers = 10
	quoteSuffix    = "/USDT"
	futuresSuffix  = "/USDT:USDT"
)

// marketData 覆盖扫描所需的只读行情原语。
type marketData interface {
	ListSymbols(ctx context.Context, venue exchange.Venue) ([]string, error)
	GetTickerStats(ctx context.Context, symbol string, venue exchange.Venue) (exchange.TickerStats, error)
	GetFundingRate(ctx context.Context, symbol string) (exchange.FundingSnapshot, error)
}

// Scanner 扫描同时在现货与合约上市的 USDT 交易对并按机会评分排序。
type Scanner struct {
	gateway  marketData
	logger   *zap.Logger
	criteria Criteria
	workers  int
}

// Options 为扫描器可选配置。
type Options struct {
	Criteria *Criteria
	Workers  int
}

// NewScanner 创建扫描器。
func NewScanner(gateway marketData, logger *zap.Logger, opts Options) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}

	criteria := DefaultCriteria()
	if opts.Criteria != nil {
		criteria = *opts.Criteria
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Scanner{
		gateway:  gateway,
		logger:   logger,
		criteria: criteria,
		workers:  workers,
	}
}

// Scan 执行一次全量扫描。单个交易对的失败只记日志，不中断整体扫描。
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	common, err := s.commonSymbols(ctx)
	if err != nil {
		return Report{}, err
	}

	s.logger.Info("开始扫描交易对",
		zap.Int("candidates", len(common)),
		zap.Int("workers", s.workers),
	)

	var (
		mu      sync.Mutex
		results []PairResult
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	for _, symbol := range common {
		group.Go(func() error {
			result, ok, analyzeErr := s.analyzePair(groupCtx, symbol)
			if analyzeErr != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				s.logger.Warn("分析交易对失败",
					zap.String("symbol", symbol),
					zap.Error(analyzeErr),
				)
				return nil
			}
			if !ok {
				return nil
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Report{}, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})

	s.logger.Info("扫描完成",
		zap.Int("candidates", len(common)),
		zap.Int("matched", len(results)),
	)

	return Report{
		ScanTime:   time.Now().UTC(),
		TotalPairs: len(results),
		Results:    results,
	}, nil
}

// commonSymbols 求现货与合约市场共同上市的 USDT 交易对。
func (s *Scanner) commonSymbols(ctx context.Context) ([]string, error) {
	spotSymbols, err := s.gateway.ListSymbols(ctx, exchange.VenueSpot)
	if err != nil {
		return nil, err
	}
	futuresSymbols, err := s.gateway.ListSymbols(ctx, exchange.VenueFutures)
	if err != nil {
		return nil, err
	}

	futuresSet := make(map[string]struct{}, len(futuresSymbols))
	for _, symbol := range futuresSymbols {
		if strings.HasSuffix(symbol, futuresSuffix) {
			futuresSet[strings.TrimSuffix(symbol, ":USDT")] = struct{}{}
		}
	}

	var common []string
	for _, symbol := range spotSymbols {
		if !strings.HasSuffix(symbol, quoteSuffix) {
			continue
		}
		if _, ok := futuresSet[symbol]; ok {
			common = append(common, symbol)
		}
	}

	sort.Strings(common)
	return common, nil
}

func (s *Scanner) analyzePair(ctx context.Context, symbol string) (PairResult, bool, error) {
	futuresSymbol := symbol + ":USDT"

	spot, err := s.gateway.GetTickerStats(ctx, symbol, exchange.VenueSpot)
	if err != nil {
		return PairResult{}, false, err
	}
	futures, err := s.gateway.GetTickerStats(ctx, futuresSymbol, exchange.VenueFutures)
	if err != nil {
		return PairResult{}, false, err
	}
	funding, err := s.gateway.GetFundingRate(ctx, futuresSymbol)
	if err != nil {
		return PairResult{}, false, err
	}

	spread := math.Abs(spot.Last-futures.Last) / spot.Last
	if !s.meetsCriteria(spot, futures, funding.Rate, spread) {
		return PairResult{}, false, nil
	}

	volatility := 0.0
	if spot.Low > 0 {
		volatility = (spot.High - spot.Low) / spot.Low
	}
	score := s.score(spot, futures, funding.Rate, spread, volatility)

	return PairResult{
		Symbol:            symbol,
		FuturesSymbol:     futuresSymbol,
		SpotPrice:         spot.Last,
		FuturesPrice:      futures.Last,
		PriceSpreadPct:    spread * 100,
		FundingRate8h:     funding.Rate * 100,
		FundingRateDaily:  funding.Rate * 3 * 100,
		FundingRateAnnual: funding.Rate * 3 * 365 * 100,
		SpotVolume24h:     spot.QuoteVolume,
		FuturesVolume24h:  futures.QuoteVolume,
		PriceChange24h:    spot.Change24h * 100,
		Volatility24h:     volatility * 100,
		NextFunding:       funding.NextFundingTime,
		Score:             score,
		Recommendation:    s.recommend(funding.Rate, score),
	}, true, nil
}

func (s *Scanner) meetsCriteria(spot, futures exchange.TickerStats, fundingRate, spread float64) bool {
	if spot.Last < s.criteria.MinPrice || spot.Last > s.criteria.MaxPrice {
		return false
	}
	if spot.QuoteVolume < s.criteria.MinSpotVolumeUSDT {
		return false
	}
	if futures.QuoteVolume < s.criteria.MinFuturesVolumeUSDT {
		return false
	}
	if spread > s.criteria.MaxSpreadPercent/100 {
		return false
	}

	change := math.Abs(spot.Change24h)
	if change < s.criteria.MinChange24h || change > s.criteria.MaxChange24h {
		return false
	}

	// 允许轻微负费率，过度负费率直接排除
	return fundingRate >= s.criteria.MaxNegativeFunding
}

// score 计算 0-100 的机会评分：费率权重最高，量、价差、波动率依次补充。
func (s *Scanner) score(spot, futures exchange.TickerStats, fundingRate, spread, volatility float64) float64 {
	score := 0.0

	switch {
	case fundingRate >= s.criteria.ExcellentFunding:
		score += 50
	case fundingRate >= s.criteria.MinPositiveFunding:
		score += 30
	case fundingRate >= 0:
		score += 10
	default:
		score -= 20
	}

	score += math.Min(30, (spot.QuoteVolume+futures.QuoteVolume)/1_000_000*10)
	score += math.Max(0, 20-spread*100*40)

	if volatility >= 0.02 && volatility <= 0.10 {
		score += 20
	} else if volatility > 0.20 {
		score -= 10
	}

	return math.Max(0, math.Min(100, score))
}

func (s *Scanner) recommend(fundingRate, score float64) string {
	switch {
	case score >= 80 && fundingRate >= s.criteria.ExcellentFunding:
		return "excellent"
	case score >= 60 && fundingRate >= s.criteria.MinPositiveFunding:
		return "good"
	case score >= 40 && fundingRate >= 0:
		return "fair"
	case fundingRate < 0:
		return "negative-funding"
	default:
		return "poor"
	}
}
