package market

import "time"

// Sentiment labels produced by the market analysis pass.
const (
	SentimentStrongBullish = "strong_bullish"
	SentimentBullish       = "bullish"
	SentimentNeutral       = "neutral"
	SentimentBearish       = "bearish"
	SentimentStrongBearish = "strong_bearish"
)

// Conditions tags a trade with the market regime it was taken under.
type Conditions struct {
	Volatility string `json:"volatility"`
	Sentiment  string `json:"sentiment"`
}

// Key is the aggregate bucket used by the scoring engine.
func (c Conditions) Key() string {
	return c.Volatility + "_" + c.Sentiment
}

// Signal is a synthetic trading signal for one symbol.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Direction  Side      `json:"direction"` // empty means HOLD
	Strength   int       `json:"strength"`
	Confidence int       `json:"confidence"`
	RSI        float64   `json:"rsi"`
	MACD       string    `json:"macd"` // bullish or bearish
	Time       time.Time `json:"time"`
}

// Hold reports whether the signal carries no actionable direction.
func (s Signal) Hold() bool { return s.Direction == "" }

// Analysis is the slower-cadence market classification for one symbol.
type Analysis struct {
	Symbol     string     `json:"symbol"`
	Conditions Conditions `json:"conditions"`
	Trend      string     `json:"trend"`
	Time       time.Time  `json:"time"`
}
