// Package journal keeps the append-only record of executed trades and
// their resolved outcomes.
package journal

import "time"

// Record is one executed trade. Result and profit are filled in when the
// trade resolves; until then the row carries result "pending".
type Record struct {
	TradeID    string
	Symbol     string
	Side       string
	Amount     float64
	Strategy   string
	Timeframe  string
	EntryPrice float64
	ExitPrice  float64
	Result     string
	Profit     float64
	Confidence int
	RiskScore  int
	OpenTime   time.Time
	CloseTime  time.Time
}

// Summary aggregates the journal for reporting.
type Summary struct {
	Trades    int
	Wins      int
	Losses    int
	NetProfit float64
}

type Journal interface {
	RecordTrade(Record) error
	ResolveTrade(tradeID, result string, profit, exitPrice float64, closeTime time.Time) error
	Close() error
}
