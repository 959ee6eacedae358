package risk

// RuleState 是规则引擎独占的跨周期状态。仓位存续期间 peakPnl 单调不减，
// 检测到无持仓的那一刻整体清零，下一段仓位生命周期从零开始。
type RuleState struct {
	peakPnl             float64
	latches             map[string]bool
	totalRealizedProfit float64
}

// NewRuleState 创建空状态。
func NewRuleState() *RuleState {
	return &RuleState{
		latches: make(map[string]bool),
	}
}

// UpdatePeak 用当前盈亏刷新峰值。
func (s *RuleState) UpdatePeak(pnl float64) {
	if pnl > s.peakPnl {
		s.peakPnl = pnl
	}
}

// PeakPnl 返回本段仓位生命周期内观察到的最高浮盈。
func (s *RuleState) PeakPnl() float64 {
	return s.peakPnl
}

// Latched 判断某档止盈是否已执行过。
func (s *RuleState) Latched(rule string) bool {
	return s.latches[rule]
}

// Latch 永久封存某档止盈，本段生命周期内不再触发。
func (s *RuleState) Latch(rule string) {
	s.latches[rule] = true
}

// AddRealized 累加已实现收益。
func (s *RuleState) AddRealized(profit float64) {
	s.totalRealizedProfit += profit
}

// TotalRealizedProfit 返回累计已实现收益。
func (s *RuleState) TotalRealizedProfit() float64 {
	return s.totalRealizedProfit
}

// Reset 清空全部状态。
func (s *RuleState) Reset() {
	s.peakPnl = 0
	s.totalRealizedProfit = 0
	s.latches = make(map[string]bool)
}
