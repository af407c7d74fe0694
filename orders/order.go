package orders

import (
	"time"

	"github.com/pocketsim/pocketsim/market"
)

// Status of a pending order. Transitions are one-directional:
// pending -> triggered -> executed, or pending -> expired | cancelled.
// A terminal order is never re-evaluated against new ticks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTriggered Status = "triggered"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled || s == StatusExpired
}

// PendingOrder is a user-defined trade awaiting a target price.
type PendingOrder struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        market.Side `json:"side"`
	Amount      float64     `json:"amount"`
	TargetPrice float64     `json:"target_price"`
	StopLoss    *float64    `json:"stop_loss,omitempty"`
	TakeProfit  *float64    `json:"take_profit,omitempty"`
	Timeframe   string      `json:"timeframe"`
	Strategy    string      `json:"strategy,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`

	// Set once the order executes.
	EntryPrice float64    `json:"entry_price,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// targetReached: a BUY waits for the price to dip to the target, a SELL
// for it to rise.
func (o *PendingOrder) targetReached(price float64) bool {
	if o.Side == market.Buy {
		return price <= o.TargetPrice
	}
	return price >= o.TargetPrice
}

func (o *PendingOrder) expired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

func (o *PendingOrder) valid() bool {
	if o.ID == "" || o.Symbol == "" || o.TargetPrice <= 0 || o.Amount <= 0 {
		return false
	}
	return o.Side == market.Buy || o.Side == market.Sell
}
