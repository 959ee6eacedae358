package scanner

import "time"

// Criteria 为扫描过滤条件，全部可在构造时覆盖。
type Criteria struct {
	MinPositiveFunding float64 // 正费率最低门槛
	ExcellentFunding   float64 // 优秀费率门槛
	MaxNegativeFunding float64 // 负费率下限，低于此直接过滤

	MinSpotVolumeUSDT    float64
	MinFuturesVolumeUSDT float64

	MinPrice         float64
	MaxPrice         float64
	MaxSpreadPercent float64 // 现货合约价差上限（百分比）

	MinChange24h float64 // 24h 涨跌幅下限（绝对值）
	MaxChange24h float64 // 24h 涨跌幅上限（绝对值）
}

// DefaultCriteria 返回默认过滤条件。
func DefaultCriteria() Criteria {
	return Criteria{
		MinPositiveFunding:   0.0005,
		ExcellentFunding:     0.005,
		MaxNegativeFunding:   -0.002,
		MinSpotVolumeUSDT:    100_000,
		MinFuturesVolumeUSDT: 500_000,
		MinPrice:             0.001,
		MaxPrice:             1000,
		MaxSpreadPercent:     0.5,
		MinChange24h:         0.02,
		MaxChange24h:         0.20,
	}
}

// PairResult 为单个交易对的分析结果。
type PairResult struct {
	Symbol            string    `json:"symbol"`
	FuturesSymbol     string    `json:"futures_symbol"`
	SpotPrice         float64   `json:"spot_price"`
	FuturesPrice      float64   `json:"futures_price"`
	PriceSpreadPct    float64   `json:"price_spread_pct"`
	FundingRate8h     float64   `json:"funding_rate_8h"`
	FundingRateDaily  float64   `json:"funding_rate_daily"`
	FundingRateAnnual float64   `json:"funding_rate_annual"`
	SpotVolume24h     float64   `json:"spot_volume_24h"`
	FuturesVolume24h  float64   `json:"futures_volume_24h"`
	PriceChange24h    float64   `json:"price_change_24h"`
	Volatility24h     float64   `json:"volatility_24h"`
	NextFunding       time.Time `json:"next_funding"`
	Score             float64   `json:"score"`
	Recommendation    string    `json:"recommendation"`
}

// Report 为一次完整扫描的结果。
type Report struct {
	ScanTime   time.Time    `json:"scan_time"`
	TotalPairs int          `json:"total_pairs"`
	Results    []PairResult `json:"results"`
}
