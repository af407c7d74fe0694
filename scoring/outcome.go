package scoring

import (
	"time"

	"github.com/pocketsim/pocketsim/market"
)

// Trade results.
const (
	ResultWin     = "win"
	ResultLoss    = "loss"
	ResultPending = "pending"
)

// Outcome is one executed trade as seen by the learning engine.
type Outcome struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Side       market.Side       `json:"side"`
	Amount     float64           `json:"amount"`
	Strategy   string            `json:"strategy"`
	Timeframe  string            `json:"timeframe"`
	EntryPrice float64           `json:"entry_price"`
	ExitPrice  float64           `json:"exit_price"`
	Result     string            `json:"result"`
	Profit     float64           `json:"profit"`
	Confidence int               `json:"confidence"`
	RiskScore  int               `json:"risk_score"`
	Conditions market.Conditions `json:"conditions"`
	Time       time.Time         `json:"time"`
}

func (o Outcome) decided() bool {
	return o.Result == ResultWin || o.Result == ResultLoss
}

// StrategyStats is the per-strategy performance aggregate. It is mutated
// incrementally on each outcome, never recomputed from history.
type StrategyStats struct {
	Trades        int                   `json:"trades"`
	Wins          int                   `json:"wins"`
	Losses        int                   `json:"losses"`
	TotalProfit   float64               `json:"total_profit"`
	TotalLoss     float64               `json:"total_loss"`
	AvgConfidence float64               `json:"avg_confidence"`
	AvgRiskScore  float64               `json:"avg_risk_score"`
	Recent        []string              `json:"recent"` // last recentWindow decided results
	Conditions    map[string]*CondStats `json:"conditions"`
}

// WinRate is the lifetime win percentage for the strategy.
func (s *StrategyStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades) * 100
}

// CondStats counts outcomes under one market-condition bucket.
type CondStats struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
}

func (c *CondStats) WinRate() float64 {
	if c.Trades == 0 {
		return 0
	}
	return float64(c.Wins) / float64(c.Trades) * 100
}

// AdaptiveSettings are nudged after each recorded outcome based on the
// trailing trade window.
type AdaptiveSettings struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxRiskPerTrade     float64 `json:"max_risk_per_trade"`
}

func defaultAdaptive() AdaptiveSettings {
	return AdaptiveSettings{ConfidenceThreshold: 70, MaxRiskPerTrade: 5}
}
