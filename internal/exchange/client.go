package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"funding-arb/internal/config"
)

// venueClient 覆盖现货与合约客户端共有的下单查询原语。
type venueClient interface {
	LoadMarkets(params ...interface{}) (map[string]ccxt.MarketInterface, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CreateMarketBuyOrderWithCost(symbol string, cost float64, options ...ccxt.CreateMarketBuyOrderWithCostOptions) (ccxt.Order, error)
	FetchOrder(id string, options ...ccxt.FetchOrderOptions) (ccxt.Order, error)
}

// futuresClient 额外覆盖仅合约侧存在的账户与费率原语。
type futuresClient interface {
	venueClient
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
	FetchFundingRate(symbol string, options ...ccxt.FetchFundingRateOptions) (ccxt.FundingRate, error)
}

// Client 同时维护现货与 USDⓈ-M 合约两个客户端并实现重试机制。
type Client struct {
	cfg     config.ExchangeConfig
	logger  *zap.Logger
	spot    venueClient
	futures futuresClient

	marketsMu sync.Mutex
	markets   map[Venue]map[string]ccxt.MarketInterface
}

// NewClient 构造双市场网关。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"recvWindow":              cfg.RecvWindow,
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	spot := ccxt.NewBinance(userConfig)
	futures := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		spot.SetSandboxMode(true)
		futures.SetSandboxMode(true)
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		spot:    spot,
		futures: futures,
		markets: make(map[Venue]map[string]ccxt.MarketInterface),
	}, nil
}

func (c *Client) venue(v Venue) venueClient {
	if v == VenueFutures {
		return c.futures
	}
	return c.spot
}

// GetPrice 返回指定市场的最新成交价。
func (c *Client) GetPrice(ctx context.Context, symbol string, venue Venue) (float64, error) {
	var price float64

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ticker_%s", venue), func() error {
		if err := c.ensureMarketsLoaded(ctx, venue); err != nil {
			return err
		}

		ticker, err := c.venue(venue).FetchTicker(symbol)
		if err != nil {
			return err
		}

		price = derefFloat(ticker.Last)
		if price <= 0 {
			price = parseNumeric(ticker.Info["price"])
		}
		if price <= 0 {
			return fmt.Errorf("%w: ticker for %s has no price", ErrTransport, symbol)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return price, nil
}

// GetSymbolConstraints 从市场元数据提取步长与最小量约束。
func (c *Client) GetSymbolConstraints(ctx context.Context, symbol string, venue Venue) (SymbolConstraints, error) {
	if err := c.ensureMarketsLoaded(ctx, venue); err != nil {
		return SymbolConstraints{}, err
	}

	c.marketsMu.Lock()
	market, ok := c.markets[venue][symbol]
	c.marketsMu.Unlock()
	if !ok {
		return SymbolConstraints{}, fmt.Errorf("%w: %s not listed on %s market", ErrConstraintUnavailable, symbol, venue)
	}

	constraints := SymbolConstraints{
		StepSize:    derefFloat(market.Precision.Amount),
		MinQty:      derefFloat(market.Limits.Amount.Min),
		MinNotional: derefFloat(market.Limits.Cost.Min),
	}
	if constraints.StepSize <= 0 {
		return SymbolConstraints{}, fmt.Errorf("%w: %s missing amount step", ErrConstraintUnavailable, symbol)
	}

	return constraints, nil
}

// PlaceMarketOrder 提交市价单。请求要么按数量要么按 quote 金额计价。
func (c *Client) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error) {
	if req.Quantity <= 0 && req.QuoteQuantity <= 0 {
		return OrderResult{}, fmt.Errorf("exchange: 市价单必须指定数量或金额: %+v", req)
	}

	params := map[string]interface{}{}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}
	if req.ClientOrderID != "" {
		params["newClientOrderId"] = req.ClientOrderID
	}

	var raw ccxt.Order
	err := c.callWithRetry(ctx, fmt.Sprintf("create_order_%s", req.Venue), func() error {
		if err := c.ensureMarketsLoaded(ctx, req.Venue); err != nil {
			return err
		}

		var err error
		if req.QuoteQuantity > 0 {
			var opts []ccxt.CreateMarketBuyOrderWithCostOptions
			if len(params) > 0 {
				opts = append(opts, ccxt.WithCreateMarketBuyOrderWithCostParams(params))
			}
			raw, err = c.venue(req.Venue).CreateMarketBuyOrderWithCost(req.Symbol, req.QuoteQuantity, opts...)
		} else {
			var opts []ccxt.CreateMarketOrderOptions
			if len(params) > 0 {
				opts = append(opts, ccxt.WithCreateMarketOrderParams(params))
			}
			raw, err = c.venue(req.Venue).CreateMarketOrder(req.Symbol, string(req.Side), req.Quantity, opts...)
		}
		return err
	})
	if err != nil {
		return OrderResult{}, err
	}

	result := convertOrder(raw, req.Symbol, req.Venue)
	if result.Side == "" {
		result.Side = req.Side
	}
	if result.RequestedQty == 0 {
		result.RequestedQty = req.Quantity
	}
	return result, nil
}

// GetOrder 按订单号查询订单。
func (c *Client) GetOrder(ctx context.Context, symbol string, venue Venue, orderID string) (OrderResult, error) {
	var raw ccxt.Order

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_order_%s", venue), func() error {
		var err error
		raw, err = c.venue(venue).FetchOrder(orderID, ccxt.WithFetchOrderSymbol(symbol))
		return err
	})
	if err != nil {
		return OrderResult{}, err
	}

	return convertOrder(raw, symbol, venue), nil
}

// GetPosition 返回指定合约的持仓快照；无持仓时第二个返回值为 false。
func (c *Client) GetPosition(ctx context.Context, symbol string) (PositionSnapshot, bool, error) {
	var raw []ccxt.Position

	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		var err error
		raw, err = c.futures.FetchPositions()
		return err
	})
	if err != nil {
		return PositionSnapshot{}, false, err
	}

	for _, pos := range raw {
		if !strings.EqualFold(derefString(pos.Symbol), symbol) {
			continue
		}
		size := derefFloat(pos.Contracts)
		if size == 0 {
			continue
		}

		side := PositionLong
		if strings.EqualFold(derefString(pos.Side), "short") || size < 0 {
			side = PositionShort
		}
		if size < 0 {
			size = -size
		}

		mark := derefFloat(pos.MarkPrice)
		snapshot := PositionSnapshot{
			Symbol:        symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    derefFloat(pos.EntryPrice),
			MarkPrice:     mark,
			UnrealizedPnl: derefFloat(pos.UnrealizedPnl),
			Notional:      derefFloat(pos.Notional),
		}
		if snapshot.Notional == 0 && mark > 0 {
			snapshot.Notional = size * mark
		}
		return snapshot, true, nil
	}

	return PositionSnapshot{}, false, nil
}

// GetAccount 返回合约账户快照，保证金占用率在此边界一次性算好。
func (c *Client) GetAccount(ctx context.Context) (AccountSnapshot, error) {
	var balances ccxt.Balances

	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		var err error
		balances, err = c.futures.FetchBalance()
		return err
	})
	if err != nil {
		return AccountSnapshot{}, err
	}

	var snapshot AccountSnapshot
	if balances.Info != nil {
		snapshot.TotalBalance = parseNumeric(balances.Info["totalWalletBalance"])
		snapshot.AvailableBalance = parseNumeric(balances.Info["availableBalance"])
		snapshot.UnrealizedPnl = parseNumeric(balances.Info["totalUnrealizedProfit"])
		if snapshot.TotalBalance > 0 {
			snapshot.MarginRatio = parseNumeric(balances.Info["totalInitialMargin"]) / snapshot.TotalBalance
		}
	}

	if snapshot.TotalBalance == 0 && balances.Total != nil {
		for _, code := range []string{"USDT", "USDC", "USD"} {
			if total, ok := balances.Total[code]; ok && total != nil {
				snapshot.TotalBalance = *total
				break
			}
		}
	}
	if snapshot.AvailableBalance == 0 && balances.Free != nil {
		for _, code := range []string{"USDT", "USDC", "USD"} {
			if free, ok := balances.Free[code]; ok && free != nil {
				snapshot.AvailableBalance = *free
				break
			}
		}
	}

	return snapshot, nil
}

// GetFundingRate 返回当前资金费率与下次结算时间。
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (FundingSnapshot, error) {
	var raw ccxt.FundingRate

	err := c.callWithRetry(ctx, "fetch_funding_rate", func() error {
		var err error
		raw, err = c.futures.FetchFundingRate(symbol)
		return err
	})
	if err != nil {
		return FundingSnapshot{}, err
	}

	snapshot := FundingSnapshot{Rate: derefFloat(raw.FundingRate)}
	if snapshot.Rate == 0 && raw.Info != nil {
		snapshot.Rate = parseNumeric(raw.Info["lastFundingRate"])
	}
	if raw.Info != nil {
		if ms := parseNumeric(raw.Info["nextFundingTime"]); ms > 0 {
			snapshot.NextFundingTime = time.UnixMilli(int64(ms)).UTC()
		}
	}

	return snapshot, nil
}

// ListSymbols 列出指定市场全部活跃交易对。
func (c *Client) ListSymbols(ctx context.Context, venue Venue) ([]string, error) {
	if err := c.ensureMarketsLoaded(ctx, venue); err != nil {
		return nil, err
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	symbols := make([]string, 0, len(c.markets[venue]))
	for symbol, market := range c.markets[venue] {
		if market.Active != nil && !*market.Active {
			continue
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

// GetTickerStats 返回扫描所需的 24h 行情统计。
func (c *Client) GetTickerStats(ctx context.Context, symbol string, venue Venue) (TickerStats, error) {
	var stats TickerStats

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ticker_stats_%s", venue), func() error {
		if err := c.ensureMarketsLoaded(ctx, venue); err != nil {
			return err
		}

		ticker, err := c.venue(venue).FetchTicker(symbol)
		if err != nil {
			return err
		}

		stats = TickerStats{
			Symbol:      symbol,
			Last:        derefFloat(ticker.Last),
			Bid:         derefFloat(ticker.Bid),
			Ask:         derefFloat(ticker.Ask),
			High:        derefFloat(ticker.High),
			Low:         derefFloat(ticker.Low),
			QuoteVolume: derefFloat(ticker.QuoteVolume),
			Change24h:   derefFloat(ticker.Percentage) / 100,
		}
		if stats.QuoteVolume <= 0 && ticker.Info != nil {
			stats.QuoteVolume = parseNumeric(ticker.Info["quoteVolume"])
		}
		if stats.Change24h == 0 && ticker.Info != nil {
			stats.Change24h = parseNumeric(ticker.Info["priceChangePercent"]) / 100
		}
		if stats.Last <= 0 {
			return fmt.Errorf("%w: ticker for %s has no price", ErrTransport, symbol)
		}
		return nil
	})
	if err != nil {
		return TickerStats{}, err
	}

	return stats, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context, venue Venue) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if _, ok := c.markets[venue]; ok {
		return nil
	}

	var markets map[string]ccxt.MarketInterface
	loadErr := c.callWithRetry(ctx, fmt.Sprintf("load_markets_%s", venue), func() error {
		var err error
		markets, err = c.venue(venue).LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.markets[venue] = markets
	c.logger.Info("已完成市场元数据加载",
		zap.String("venue", string(venue)),
		zap.Int("markets", len(markets)),
	)
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr := Normalize(err)
		retry := classifyRetryable(normalizedErr)

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func classifyRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRetryable(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
