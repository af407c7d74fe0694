package scoring

import (
	"fmt"
	"math"
)

// Experience levels by trade count.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

type BestStrategy struct {
	Name    string  `json:"name"`
	WinRate float64 `json:"win_rate"`
	Trades  int     `json:"trades"`
}

type BestCondition struct {
	Key     string  `json:"key"`
	WinRate float64 `json:"win_rate"`
	Trades  int     `json:"trades"`
}

// Insights is a summary view of the accumulated experience.
type Insights struct {
	TotalTrades     int              `json:"total_trades"`
	OverallWinRate  float64          `json:"overall_win_rate"`
	ProfitFactor    float64          `json:"profit_factor"`
	MaxDrawdown     float64          `json:"max_drawdown"`
	MaxWinStreak    int              `json:"max_win_streak"`
	MaxLossStreak   int              `json:"max_loss_streak"`
	BestStrategy    *BestStrategy    `json:"best_strategy,omitempty"`
	BestCondition   *BestCondition   `json:"best_condition,omitempty"`
	ExperienceLevel string           `json:"experience_level"`
	Adaptive        AdaptiveSettings `json:"adaptive"`
	Recommendations []string         `json:"recommendations"`
}

// Insights summarizes the engine state for dashboards and the CLI.
func (e *Engine) Insights() Insights {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.exp.TotalTrades
	winRate := 0.0
	if total > 0 {
		winRate = float64(e.exp.Wins) / float64(total) * 100
	}

	profitFactor := 0.0
	if e.exp.TotalLoss > 0 {
		profitFactor = e.exp.TotalProfit / e.exp.TotalLoss
	}

	ins := Insights{
		TotalTrades:     total,
		OverallWinRate:  math.Round(winRate),
		ProfitFactor:    profitFactor,
		MaxDrawdown:     maxDrawdown(e.exp.History),
		MaxWinStreak:    maxInt(e.exp.WinStreaks),
		MaxLossStreak:   maxInt(e.exp.LossStreaks),
		ExperienceLevel: experienceLevel(total),
		Adaptive:        e.exp.Adaptive,
	}

	for name, s := range e.exp.Strategies {
		if s.Trades < minStrategySamples {
			continue
		}
		if ins.BestStrategy == nil || s.WinRate() > ins.BestStrategy.WinRate {
			ins.BestStrategy = &BestStrategy{Name: name, WinRate: s.WinRate(), Trades: s.Trades}
		}
	}

	for key, c := range e.exp.Conditions {
		if c.Trades < minStrategySamples {
			continue
		}
		if ins.BestCondition == nil || c.WinRate() > ins.BestCondition.WinRate {
			ins.BestCondition = &BestCondition{Key: key, WinRate: c.WinRate(), Trades: c.Trades}
		}
	}

	ins.Recommendations = recommendations(total, winRate, e.exp.History)
	return ins
}

func recommendations(total int, winRate float64, history []Outcome) []string {
	var recs []string

	if total < 10 {
		return []string{
			"build experience with small position sizes",
			"focus on high-confidence signals",
		}
	}

	if winRate < 50 {
		recs = append(recs,
			"reduce position sizes until performance improves",
			"trade only above the adaptive confidence threshold")
	} else if winRate > 70 {
		recs = append(recs, "performance is strong; gradual size increases are reasonable")
	}

	window := history
	if len(window) > recentWindow {
		window = window[len(window)-recentWindow:]
	}
	if len(window) > 0 {
		riskSum := 0.0
		for _, o := range window {
			riskSum += float64(o.RiskScore)
		}
		if riskSum/float64(len(window)) > 70 {
			recs = append(recs, fmt.Sprintf(
				"recent trades average a risk score above 70 across the last %d; scale back", len(window)))
		}
	}

	return recs
}

// maxDrawdown walks the cumulative profit curve of the history window.
func maxDrawdown(history []Outcome) float64 {
	var peak, balance, worst float64
	for _, o := range history {
		balance += o.Profit
		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			if dd := (peak - balance) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func experienceLevel(total int) string {
	switch {
	case total < 20:
		return LevelBeginner
	case total < 100:
		return LevelIntermediate
	case total < 500:
		return LevelAdvanced
	default:
		return LevelExpert
	}
}

func maxInt(xs []int) int {
	m := 0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}
