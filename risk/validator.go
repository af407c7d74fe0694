// Package risk validates proposed trades against the configured risk
// profile and tracks daily loss/streak statistics.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/store"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

type Action string

const (
	ActionBlock  Action = "BLOCK"
	ActionWarn   Action = "WARN"
	ActionReduce Action = "REDUCE"
)

// Finding codes.
const (
	FindingDailyLossLimit    = "DAILY_LOSS_LIMIT"
	FindingDailyLossWarning  = "DAILY_LOSS_WARNING"
	FindingPositionSize      = "POSITION_SIZE"
	FindingConsecutiveLosses = "CONSECUTIVE_LOSSES"
	FindingLowConfidence     = "LOW_CONFIDENCE"
)

type Finding struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Action   Action   `json:"action"`
}

// Decision is the structured result of validating one trade. A blocked
// trade is not an error; callers inspect Allowed and the findings.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	Findings          []Finding `json:"findings"`
	RecommendedAmount float64   `json:"recommended_amount"`
	RiskScore         int       `json:"risk_score"`
}

// TradeParams describes a trade about to execute.
type TradeParams struct {
	Symbol     string
	Side       market.Side
	Amount     float64
	Strategy   string
	Confidence int
	Timeframe  string
}

// Status is a point-in-time view of the risk state.
type Status struct {
	Daily    DailyStats `json:"daily"`
	Settings Settings   `json:"settings"`
	Level    Severity   `json:"level"`
}

// Manager owns the risk settings and daily stats. All methods are safe
// for concurrent use.
type Manager struct {
	mu       sync.Mutex
	settings Settings
	daily    DailyStats
	st       *store.Store
	now      func() time.Time
}

type ManagerOption func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager loads settings and daily stats from the store, falling back
// to defaults when nothing usable is persisted.
func NewManager(st *store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		settings: DefaultSettings(),
		st:       st,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if st != nil {
		var s Settings
		if st.Load(store.KeyRiskSettings, &s) {
			m.settings = s
		}
		var d DailyStats
		if st.Load(store.KeyDailyStats, &d) && d.Date == dateKey(m.now()) {
			m.daily = d
			return m
		}
	}
	m.daily = freshDailyStats(m.now())
	return m
}

// Validate scores a proposed trade. All checks run; findings accumulate
// rather than short-circuit.
func (m *Manager) Validate(p TradeParams, balance float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	var findings []Finding

	if m.settings.DailyLossLimit > 0 {
		dailyLoss := math.Abs(m.daily.TotalLoss)
		switch {
		case dailyLoss >= m.settings.DailyLossLimit:
			findings = append(findings, Finding{
				Type:     FindingDailyLossLimit,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("daily loss limit of %.2f reached", m.settings.DailyLossLimit),
				Action:   ActionBlock,
			})
		case dailyLoss+p.Amount > m.settings.DailyLossLimit:
			findings = append(findings, Finding{
				Type:     FindingDailyLossWarning,
				Severity: SeverityMedium,
				Message:  "trade may exceed daily loss limit",
				Action:   ActionWarn,
			})
		}
	}

	positionPct := 0.0
	if balance > 0 {
		positionPct = p.Amount / balance * 100
	}
	if positionPct > m.settings.MaxPositionSize {
		findings = append(findings, Finding{
			Type:     FindingPositionSize,
			Severity: SeverityHigh,
			Message: fmt.Sprintf("position size %.1f%% exceeds limit of %.1f%%",
				positionPct, m.settings.MaxPositionSize),
			Action: ActionReduce,
		})
	}

	if m.daily.ConsecutiveLosses >= m.settings.MaxConsecutiveLosses {
		findings = append(findings, Finding{
			Type:     FindingConsecutiveLosses,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%d consecutive losses reached", m.daily.ConsecutiveLosses),
			Action:   ActionBlock,
		})
	}

	if p.Confidence < m.settings.MinConfidence {
		findings = append(findings, Finding{
			Type:     FindingLowConfidence,
			Severity: SeverityMedium,
			Message: fmt.Sprintf("signal confidence %d%% below minimum %d%%",
				p.Confidence, m.settings.MinConfidence),
			Action: ActionWarn,
		})
	}

	allowed := true
	for _, f := range findings {
		if f.Action == ActionBlock {
			allowed = false
			break
		}
	}

	return Decision{
		Allowed:           allowed,
		Findings:          findings,
		RecommendedAmount: m.recommendedAmountLocked(p.Amount, balance, findings),
		RiskScore:         riskScore(p, positionPct, findings),
	}
}

// recommendedAmountLocked caps the stake at the position-size limit, then
// scales it down by the severity of what Validate found.
func (m *Manager) recommendedAmountLocked(requested, balance float64, findings []Finding) float64 {
	amount := requested

	maxAmount := balance * m.settings.MaxPositionSize / 100
	if maxAmount > 0 {
		amount = math.Min(amount, maxAmount)
	}

	high, medium := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		}
	}

	switch {
	case high > 0:
		amount *= 0.5
	case medium > 1:
		amount *= 0.7
	case medium > 0:
		amount *= 0.8
	}

	return math.Max(1, math.Round(amount))
}

func riskScore(p TradeParams, positionPct float64, findings []Finding) int {
	score := 30.0

	for _, f := range findings {
		switch f.Severity {
		case SeverityHigh:
			score += 25
		case SeverityMedium:
			score += 15
		default:
			score += 5
		}
	}

	score += positionPct * 2

	if p.Confidence < 60 {
		score += 20
	} else if p.Confidence > 80 {
		score -= 10
	}

	return int(math.Min(100, math.Max(0, score)))
}

// RecordOutcome folds a decided trade into today's stats.
func (m *Manager) RecordOutcome(result string, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	m.daily.Trades++

	switch result {
	case "win":
		m.daily.TotalProfit += profit
		m.daily.ConsecutiveLosses = 0
	case "loss":
		loss := math.Abs(profit)
		m.daily.TotalLoss += loss
		m.daily.ConsecutiveLosses++
		if m.daily.ConsecutiveLosses > m.daily.MaxConsecutiveLosses {
			m.daily.MaxConsecutiveLosses = m.daily.ConsecutiveLosses
		}
		if loss > m.daily.LargestLoss {
			m.daily.LargestLoss = loss
		}
		if m.daily.ConsecutiveLosses >= m.settings.MaxConsecutiveLosses {
			m.daily.RiskEvents = append(m.daily.RiskEvents,
				fmt.Sprintf("loss streak hit %d", m.daily.ConsecutiveLosses))
		}
	}

	m.persistLocked()
}

// Settings returns a copy of the current risk settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// UpdateSettings replaces and persists the risk settings.
func (m *Manager) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	if m.st != nil {
		if err := m.st.Save(store.KeyRiskSettings, s); err != nil {
			log.WithError(err).Debug("risk: persist settings failed")
		}
	}
	return nil
}

// Daily returns a copy of today's stats.
func (m *Manager) Daily() DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.daily
}

// Status reports the current stats, settings, and overall risk level.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	factors := 0
	if m.daily.ConsecutiveLosses >= 2 {
		factors++
	}
	if math.Abs(m.daily.TotalLoss) > m.settings.DailyLossLimit*0.7 {
		factors++
	}
	if m.daily.Trades > 20 { // overtrading
		factors++
	}

	level := SeverityLow
	switch {
	case factors >= 2:
		level = SeverityHigh
	case factors == 1:
		level = SeverityMedium
	}

	return Status{Daily: m.daily, Settings: m.settings, Level: level}
}

func (m *Manager) rolloverLocked() {
	if m.daily.Date != dateKey(m.now()) {
		m.daily = freshDailyStats(m.now())
		m.persistLocked()
	}
}

func (m *Manager) persistLocked() {
	if m.st == nil {
		return
	}
	if err := m.st.Save(store.KeyDailyStats, m.daily); err != nil {
		log.WithError(err).Debug("risk: persist daily stats failed")
	}
}
