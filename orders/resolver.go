package orders

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/scoring"
)

// DefaultPayout is the fraction of the stake paid out on a winning
// binary-options trade.
const DefaultPayout = 0.85

// OutcomeSink receives resolved trade outcomes.
type OutcomeSink interface {
	OnOutcome(scoring.Outcome)
}

// OutcomeSinkFunc adapts a function to OutcomeSink.
type OutcomeSinkFunc func(scoring.Outcome)

func (f OutcomeSinkFunc) OnOutcome(o scoring.Outcome) { f(o) }

// Resolver settles executed binary-options trades when their timeframe
// elapses: a BUY wins if the price moved above the entry, a SELL if it
// moved below. A win pays amount x payout, a loss costs the stake.
type Resolver struct {
	ticks    *market.TickStore
	payout   float64
	sink     OutcomeSink
	now      func() time.Time
	schedule func(d time.Duration, fn func())
}

type ResolverOption func(*Resolver)

func WithPayout(p float64) ResolverOption {
	return func(r *Resolver) { r.payout = p }
}

func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func WithResolverScheduler(fn func(d time.Duration, f func())) ResolverOption {
	return func(r *Resolver) { r.schedule = fn }
}

func NewResolver(ticks *market.TickStore, sink OutcomeSink, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		ticks:  ticks,
		payout: DefaultPayout,
		sink:   sink,
		now:    time.Now,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule queues resolution of an executed order after its timeframe.
// Timeframe labels are durations such as "30s", "1m", "5m".
func (r *Resolver) Schedule(o PendingOrder, entryPrice float64, confidence, riskScore int, cond market.Conditions) error {
	d, err := str2duration.ParseDuration(o.Timeframe)
	if err != nil {
		return fmt.Errorf("resolve %q: bad timeframe %q: %w", o.ID, o.Timeframe, err)
	}

	r.schedule(d, func() {
		exit := entryPrice
		if t, err := r.ticks.Get(o.Symbol); err == nil {
			exit = t.Price
		}
		out := r.Resolve(o, entryPrice, exit, confidence, riskScore, cond)
		if r.sink != nil {
			r.sink.OnOutcome(out)
		}
	})
	return nil
}

// Resolve settles one trade against an exit price. A flat expiry counts
// as a loss.
func (r *Resolver) Resolve(o PendingOrder, entry, exit float64, confidence, riskScore int, cond market.Conditions) scoring.Outcome {
	win := (o.Side == market.Buy && exit > entry) ||
		(o.Side == market.Sell && exit < entry)

	result := scoring.ResultLoss
	profit := -o.Amount
	if win {
		result = scoring.ResultWin
		profit = o.Amount * r.payout
	}

	log.WithFields(log.Fields{
		"id": o.ID, "result": result, "profit": profit,
	}).Info("orders: trade resolved")

	return scoring.Outcome{
		ID:         o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Amount:     o.Amount,
		Strategy:   o.Strategy,
		Timeframe:  o.Timeframe,
		EntryPrice: entry,
		ExitPrice:  exit,
		Result:     result,
		Profit:     profit,
		Confidence: confidence,
		RiskScore:  riskScore,
		Conditions: cond,
		Time:       r.now(),
	}
}
