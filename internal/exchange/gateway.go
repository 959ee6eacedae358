package exchange

import "context"

// Gateway 抽象交易所读写原语，方便以假实现驱动引擎测试。
type Gateway interface {
	GetPrice(ctx context.Context, symbol string, venue Venue) (float64, error)
	GetSymbolConstraints(ctx context.Context, symbol string, venue Venue) (SymbolConstraints, error)
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
	GetOrder(ctx context.Context, symbol string, venue Venue, orderID string) (OrderResult, error)
	GetPosition(ctx context.Context, symbol string) (PositionSnapshot, bool, error)
	GetAccount(ctx context.Context) (AccountSnapshot, error)
	GetFundingRate(ctx context.Context, symbol string) (FundingSnapshot, error)
}

var _ Gateway = (*Client)(nil)
