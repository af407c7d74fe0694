package risk

import "time"

// DailyStats tracks today's trading activity. The record resets when the
// wall-clock date rolls over.
type DailyStats struct {
	Date                 string   `json:"date"` // YYYY-MM-DD
	Trades               int      `json:"trades"`
	TotalRisk            float64  `json:"total_risk"`
	TotalProfit          float64  `json:"total_profit"`
	TotalLoss            float64  `json:"total_loss"`
	ConsecutiveLosses    int      `json:"consecutive_losses"`
	MaxConsecutiveLosses int      `json:"max_consecutive_losses"`
	LargestLoss          float64  `json:"largest_loss"`
	RiskEvents           []string `json:"risk_events,omitempty"`
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func freshDailyStats(t time.Time) DailyStats {
	return DailyStats{Date: dateKey(t)}
}
