// Package scoring maintains the trading experience aggregates and blends
// them into a per-strategy confidence number. Despite the "ML" label the
// source design carried, this is running arithmetic over win rates: the
// value is in the bookkeeping, not the model.
package scoring

import (
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/store"
)

const (
	defaultConfidence = 60
	minConfidence     = 30
	maxConfidence     = 95

	minStrategySamples  = 5
	minRecentSamples    = 5
	minConditionSamples = 3

	recentWindow  = 20
	historyCap    = 1000
	streakCap     = 50
	adaptWindow   = 50
	adaptMinTrade = 20
)

// experience is the persisted engine state.
type experience struct {
	TotalTrades int                       `json:"total_trades"`
	Wins        int                       `json:"wins"`
	TotalProfit float64                   `json:"total_profit"`
	TotalLoss   float64                   `json:"total_loss"`
	WinStreaks  []int                     `json:"win_streaks"`
	LossStreaks []int                     `json:"loss_streaks"`
	Strategies  map[string]*StrategyStats `json:"strategies"`
	Conditions  map[string]*CondStats     `json:"conditions"`
	History     []Outcome                 `json:"history"`
	Adaptive    AdaptiveSettings          `json:"adaptive"`
}

func freshExperience() experience {
	return experience{
		Strategies: map[string]*StrategyStats{},
		Conditions: map[string]*CondStats{},
		Adaptive:   defaultAdaptive(),
	}
}

// Engine records trade outcomes and answers confidence queries. Safe for
// concurrent use.
type Engine struct {
	mu  sync.Mutex
	exp experience
	st  *store.Store
}

// NewEngine loads persisted experience from the store; a missing or
// corrupt blob starts the engine fresh.
func NewEngine(st *store.Store) *Engine {
	e := &Engine{exp: freshExperience(), st: st}
	if st != nil {
		var exp experience
		if st.Load(store.KeyExperience, &exp) {
			if exp.Strategies == nil {
				exp.Strategies = map[string]*StrategyStats{}
			}
			if exp.Conditions == nil {
				exp.Conditions = map[string]*CondStats{}
			}
			if exp.Adaptive.ConfidenceThreshold == 0 {
				exp.Adaptive = defaultAdaptive()
			}
			e.exp = exp
		}
	}
	return e
}

// RecordOutcome folds one trade outcome into every aggregate and runs the
// settings-adaptation pass.
func (e *Engine) RecordOutcome(o Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o.Time.IsZero() {
		o.Time = time.Now()
	}

	e.exp.TotalTrades++
	switch o.Result {
	case ResultWin:
		e.exp.Wins++
		e.exp.TotalProfit += o.Profit
	case ResultLoss:
		e.exp.TotalLoss += math.Abs(o.Profit)
	}

	e.updateStrategyLocked(o)
	e.updateConditionsLocked(o)

	e.exp.History = append(e.exp.History, o)
	if len(e.exp.History) > historyCap {
		e.exp.History = e.exp.History[len(e.exp.History)-historyCap:]
	}

	if o.decided() {
		e.updateStreaksLocked(o.Result)
	}
	e.adaptLocked()
	e.persistLocked()
}

func (e *Engine) updateStrategyLocked(o Outcome) {
	s, ok := e.exp.Strategies[o.Strategy]
	if !ok {
		s = &StrategyStats{Conditions: map[string]*CondStats{}}
		e.exp.Strategies[o.Strategy] = s
	}

	s.Trades++
	switch o.Result {
	case ResultWin:
		s.Wins++
		s.TotalProfit += o.Profit
	case ResultLoss:
		s.Losses++
		s.TotalLoss += math.Abs(o.Profit)
	}

	n := float64(s.Trades)
	s.AvgConfidence = movingAvg(s.AvgConfidence, float64(o.Confidence), n)
	s.AvgRiskScore = movingAvg(s.AvgRiskScore, float64(o.RiskScore), n)

	if o.decided() {
		s.Recent = append(s.Recent, o.Result)
		if len(s.Recent) > recentWindow {
			s.Recent = s.Recent[len(s.Recent)-recentWindow:]
		}
	}

	if s.Conditions == nil {
		s.Conditions = map[string]*CondStats{}
	}
	key := o.Conditions.Key()
	cs, ok := s.Conditions[key]
	if !ok {
		cs = &CondStats{}
		s.Conditions[key] = cs
	}
	cs.Trades++
	if o.Result == ResultWin {
		cs.Wins++
	}
}

func (e *Engine) updateConditionsLocked(o Outcome) {
	key := o.Conditions.Key()
	cs, ok := e.exp.Conditions[key]
	if !ok {
		cs = &CondStats{}
		e.exp.Conditions[key] = cs
	}
	cs.Trades++
	if o.Result == ResultWin {
		cs.Wins++
	}
}

// updateStreaksLocked records the length of the streak the just-appended
// outcome belongs to. Streak arrays are bounded to the last streakCap
// entries.
func (e *Engine) updateStreaksLocked(result string) {
	streak := 0
	for i := len(e.exp.History) - 1; i >= 0; i-- {
		h := e.exp.History[i]
		if !h.decided() {
			continue
		}
		if h.Result != result {
			break
		}
		streak++
	}

	if result == ResultWin {
		e.exp.WinStreaks = appendBounded(e.exp.WinStreaks, streak, streakCap)
	} else {
		e.exp.LossStreaks = appendBounded(e.exp.LossStreaks, streak, streakCap)
	}
}

// adaptLocked nudges the adaptive settings from the trailing window:
// a cold streak raises the confidence bar, a hot one lowers it; risky
// trading shrinks the per-trade risk budget.
func (e *Engine) adaptLocked() {
	window := e.exp.History
	if len(window) > adaptWindow {
		window = window[len(window)-adaptWindow:]
	}
	if len(window) < adaptMinTrade {
		return
	}

	wins := 0
	riskSum := 0.0
	for _, o := range window {
		if o.Result == ResultWin {
			wins++
		}
		riskSum += float64(o.RiskScore)
	}
	winRate := float64(wins) / float64(len(window)) * 100
	avgRisk := riskSum / float64(len(window))

	a := &e.exp.Adaptive
	if winRate < 50 {
		a.ConfidenceThreshold = math.Min(85, a.ConfidenceThreshold+2)
	} else if winRate > 70 {
		a.ConfidenceThreshold = math.Max(60, a.ConfidenceThreshold-1)
	}

	if avgRisk > 70 {
		a.MaxRiskPerTrade = math.Max(2, a.MaxRiskPerTrade-0.5)
	} else if avgRisk < 40 && winRate > 65 {
		a.MaxRiskPerTrade = math.Min(10, a.MaxRiskPerTrade+0.5)
	}
}

// Confidence blends lifetime, recent-window, and condition-specific win
// rates into a 0-100 score, clamped to [30, 95]. A strategy with fewer
// than five recorded trades gets the default of 60.
func (e *Engine) Confidence(strategy string, c market.Conditions) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.exp.Strategies[strategy]
	if !ok || s.Trades < minStrategySamples {
		return defaultConfidence
	}

	confidence := s.WinRate()

	if len(s.Recent) >= minRecentSamples {
		recentWins := 0
		for _, r := range s.Recent {
			if r == ResultWin {
				recentWins++
			}
		}
		recentRate := float64(recentWins) / float64(len(s.Recent)) * 100
		confidence = confidence*0.6 + recentRate*0.4
	}

	if cs, ok := s.Conditions[c.Key()]; ok && cs.Trades >= minConditionSamples {
		confidence = confidence*0.7 + cs.WinRate()*0.3
	}

	return int(math.Max(minConfidence, math.Min(maxConfidence, math.Round(confidence))))
}

// Experienced reports whether Confidence for the strategy is built from
// recorded trades rather than the cold-start default.
func (e *Engine) Experienced(strategy string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.exp.Strategies[strategy]
	return ok && s.Trades >= minStrategySamples
}

// Adaptive returns the current adaptive settings.
func (e *Engine) Adaptive() AdaptiveSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exp.Adaptive
}

// Strategy returns a copy of the aggregate for one strategy.
func (e *Engine) Strategy(name string) (StrategyStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.exp.Strategies[name]
	if !ok {
		return StrategyStats{}, false
	}
	out := *s
	out.Recent = append([]string(nil), s.Recent...)
	out.Conditions = make(map[string]*CondStats, len(s.Conditions))
	for k, v := range s.Conditions {
		cv := *v
		out.Conditions[k] = &cv
	}
	return out, true
}

// Reset drops all learning data.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exp = freshExperience()
	if e.st != nil {
		e.st.Clear(store.KeyExperience)
	}
}

func (e *Engine) persistLocked() {
	if e.st == nil {
		return
	}
	if err := e.st.Save(store.KeyExperience, e.exp); err != nil {
		log.WithError(err).Debug("scoring: persist experience failed")
	}
}

func movingAvg(old, v, n float64) float64 {
	return (old*(n-1) + v) / n
}

func appendBounded(xs []int, v, limit int) []int {
	xs = append(xs, v)
	if len(xs) > limit {
		xs = xs[len(xs)-limit:]
	}
	return xs
}
