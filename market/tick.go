package market

import (
	"errors"
	"sync"
	"time"
)

// Side is the direction of a binary-options trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Volatility and trend classification labels carried on ticks and analyses.
const (
	VolLow    = "low"
	VolMedium = "medium"
	VolHigh   = "high"

	TrendBullish  = "bullish"
	TrendBearish  = "bearish"
	TrendSideways = "sideways"
)

// Tick is a single simulated price update for one symbol.
type Tick struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	Volume        int64     `json:"volume"`
	Volatility    string    `json:"volatility"`
	Trend         string    `json:"trend"`
	Time          time.Time `json:"time"`
}

func (t Tick) Mid() float64 {
	if t.Bid == 0 && t.Ask == 0 {
		return 0
	}
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// TickStore holds the latest tick per symbol.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, errors.New("price not found")
	}
	return t, nil
}
