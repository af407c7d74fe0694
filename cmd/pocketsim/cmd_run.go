package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/pocketsim/pocketsim/broker"
	"github.com/pocketsim/pocketsim/config"
	"github.com/pocketsim/pocketsim/feed"
	"github.com/pocketsim/pocketsim/journal"
	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/orders"
	"github.com/pocketsim/pocketsim/risk"
	"github.com/pocketsim/pocketsim/scoring"
	"github.com/pocketsim/pocketsim/sim"
	"github.com/pocketsim/pocketsim/store"
)

// Demo credentials used when none are configured. The platform is a
// simulation, so a generated demo session is the normal mode.
const (
	demoAPIKey    = "demo-0000000000000000000000"
	demoAccountID = "1000001"
)

var flagAuto bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := newPlatform(cfg)
		if err != nil {
			return err
		}
		return p.run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagAuto, "auto", false, "place trades automatically from simulator signals")
}

// tradingState is the platform snapshot persisted between runs. It
// carries a short TTL, so only a quick restart resumes it.
type tradingState struct {
	Active  bool    `json:"active"`
	Auto    bool    `json:"auto"`
	Balance float64 `json:"balance"`
}

type platform struct {
	cfg      *config.Config
	st       *store.Store
	broker   *broker.Client
	risk     *risk.Manager
	scoring  *scoring.Engine
	sim      *sim.Simulator
	book     *orders.Book
	resolver *orders.Resolver
	jnl      journal.Journal
	feed     *feed.Server

	mu         sync.Mutex
	conditions map[string]market.Conditions
}

func newPlatform(cfg *config.Config) (*platform, error) {
	stateTTL, _ := str2duration.ParseDuration(cfg.Store.StateTTL)
	sessionTTL, _ := str2duration.ParseDuration(cfg.Store.SessionTTL)

	var opts []store.Option
	if stateTTL > 0 {
		opts = append(opts, store.WithTTL(store.KeyTradingState, stateTTL))
	}
	if sessionTTL > 0 {
		opts = append(opts, store.WithTTL(store.KeySession, sessionTTL))
	}
	st, err := store.New(cfg.Store.Dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	p := &platform{
		cfg:        cfg,
		st:         st,
		conditions: make(map[string]market.Conditions),
	}

	// Persisted risk settings win over the config file; the file only
	// seeds the first run.
	var persisted risk.Settings
	firstRun := !st.Load(store.KeyRiskSettings, &persisted)
	p.risk = risk.NewManager(st)
	if firstRun {
		if err := p.risk.UpdateSettings(cfg.Risk); err != nil {
			return nil, fmt.Errorf("seed risk settings: %w", err)
		}
	}

	p.scoring = scoring.NewEngine(st)

	delay, err := cfg.Broker.ParseReconnectDelay()
	if err != nil {
		return nil, err
	}
	p.broker = broker.New(st,
		broker.WithReconnectPolicy(cfg.Broker.ReconnectAttempts, delay))

	interval, err := cfg.Simulator.ParseInterval()
	if err != nil {
		return nil, err
	}
	p.sim = sim.New(sim.Config{
		Interval: interval,
		Symbols:  cfg.Simulator.Symbols,
		Seed:     cfg.Simulator.Seed,
	})

	p.resolver = orders.NewResolver(p.sim.Ticks(), orders.OutcomeSinkFunc(p.onOutcome),
		orders.WithPayout(cfg.Broker.Payout))
	p.book = orders.NewBook(st, p.execute)

	if cfg.Journal.Enabled {
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		p.jnl = j
	}

	if cfg.Feed.Enabled {
		p.feed = feed.NewServer(p.sim)
	}

	return p, nil
}

func (p *platform) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !p.broker.Restore() {
		creds := broker.Credentials{
			APIKey:    p.cfg.Broker.APIKey,
			AccountID: p.cfg.Broker.AccountID,
		}
		if creds.APIKey == "" {
			creds = broker.Credentials{APIKey: demoAPIKey, AccountID: demoAccountID}
		}
		if _, err := p.broker.Connect(ctx, creds); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}

	var prev tradingState
	if p.st.Load(store.KeyTradingState, &prev) && prev.Active {
		log.WithField("balance", prev.Balance).Info("resuming previous trading state")
	}

	subs := []*sim.Subscription{
		p.sim.Hub().OnTick(sim.SymbolAll, func(t market.Tick) {
			p.book.Evaluate(t)
		}),
		p.sim.Hub().OnAnalysis(sim.SymbolAll, func(a market.Analysis) {
			p.mu.Lock()
			p.conditions[a.Symbol] = a.Conditions
			p.mu.Unlock()
		}),
	}
	if flagAuto {
		subs = append(subs, p.sim.Hub().OnSignal(sim.SymbolAll, p.onSignal))
	}
	defer func() {
		for _, s := range subs {
			s.Cancel()
		}
	}()

	var httpSrv *http.Server
	if p.feed != nil {
		mux := http.NewServeMux()
		mux.Handle("/ws", p.feed)
		httpSrv = &http.Server{Addr: p.cfg.Feed.Addr, Handler: mux}
		go func() {
			log.WithField("addr", p.cfg.Feed.Addr).Info("feed listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("feed server failed")
			}
		}()
	}

	p.saveState()
	p.sim.Start()
	log.WithFields(log.Fields{
		"symbols": p.sim.Symbols(),
		"auto":    flagAuto,
		"pending": len(p.book.Pending()),
	}).Info("platform running")

	<-ctx.Done()
	log.Info("shutting down")

	p.sim.Stop()
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if p.feed != nil {
		p.feed.Close()
	}
	if p.jnl != nil {
		if err := p.jnl.Close(); err != nil {
			log.WithError(err).Warn("close journal")
		}
	}
	p.saveState()

	p.logSummary()
	return nil
}

// execute is the gate between a triggered order and a live trade. A
// non-nil return cancels the order instead of executing it.
func (p *platform) execute(o orders.PendingOrder, t market.Tick) error {
	cond := p.conditionsFor(o.Symbol)
	conf := p.scoring.Confidence(o.Strategy, cond)

	// The adaptive threshold only applies once the score reflects real
	// trade history. Gating the cold-start default (60, below the initial
	// threshold of 70) would refuse every trade and starve the learning
	// loop of the outcomes that move either number.
	if p.scoring.Experienced(o.Strategy) {
		if threshold := p.scoring.Adaptive().ConfidenceThreshold; float64(conf) < threshold {
			return fmt.Errorf("confidence %d below adaptive threshold %.0f", conf, threshold)
		}
	}

	decision := p.risk.Validate(risk.TradeParams{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Amount:     o.Amount,
		Strategy:   o.Strategy,
		Confidence: conf,
		Timeframe:  o.Timeframe,
	}, p.broker.Balance())
	if !decision.Allowed {
		return fmt.Errorf("risk check failed: %s", firstBlocking(decision))
	}

	// Trade the recommended size, which may be reduced from the request.
	trade := o
	trade.Amount = decision.RecommendedAmount

	if err := p.resolver.Schedule(trade, t.Price, conf, decision.RiskScore, cond); err != nil {
		return fmt.Errorf("schedule resolution: %w", err)
	}

	if p.jnl != nil {
		err := p.jnl.RecordTrade(journal.Record{
			TradeID:    o.ID,
			Symbol:     o.Symbol,
			Side:       string(o.Side),
			Amount:     trade.Amount,
			Strategy:   o.Strategy,
			Timeframe:  o.Timeframe,
			EntryPrice: t.Price,
			Result:     scoring.ResultPending,
			Confidence: conf,
			RiskScore:  decision.RiskScore,
			OpenTime:   t.Time,
		})
		if err != nil {
			log.WithError(err).Warn("journal trade open failed")
		}
	}

	log.WithFields(log.Fields{
		"order":      o.ID,
		"symbol":     o.Symbol,
		"side":       o.Side,
		"amount":     trade.Amount,
		"entry":      t.Price,
		"confidence": conf,
		"risk_score": decision.RiskScore,
	}).Info("trade executed")
	return nil
}

// onOutcome fans a resolved trade out to every component that learns
// from it.
func (p *platform) onOutcome(out scoring.Outcome) {
	p.scoring.RecordOutcome(out)
	p.risk.RecordOutcome(out.Result, out.Profit)
	p.broker.ApplyProfit(out.Profit)

	if p.jnl != nil {
		err := p.jnl.ResolveTrade(out.ID, out.Result, out.Profit, out.ExitPrice, out.Time)
		if err != nil {
			log.WithError(err).Warn("journal trade close failed")
		}
	}

	p.saveState()
	log.WithFields(log.Fields{
		"order":   out.ID,
		"symbol":  out.Symbol,
		"result":  out.Result,
		"profit":  out.Profit,
		"balance": p.broker.Balance(),
	}).Info("trade resolved")
}

// onSignal turns an actionable simulator signal into a pending order.
func (p *platform) onSignal(sig market.Signal) {
	if sig.Hold() {
		return
	}

	tick, err := p.sim.Ticks().Get(sig.Symbol)
	if err != nil {
		return
	}

	// Wait for a small pullback before entering.
	offset := tick.Price * 0.0005
	target := tick.Price - offset
	if sig.Direction == market.Sell {
		target = tick.Price + offset
	}

	settings := p.risk.Settings()
	amount := p.broker.Balance() * settings.MaxPositionSize / 100
	expires := tick.Time.Add(2 * time.Minute)

	o, err := p.book.Add(orders.PendingOrder{
		Symbol:      sig.Symbol,
		Side:        sig.Direction,
		Amount:      amount,
		TargetPrice: target,
		Timeframe:   "1m",
		Strategy:    "momentum",
		ExpiresAt:   &expires,
	})
	if err != nil {
		log.WithError(err).Debug("auto order rejected")
		return
	}
	log.WithFields(log.Fields{
		"order":  o.ID,
		"symbol": o.Symbol,
		"side":   o.Side,
		"target": o.TargetPrice,
	}).Info("auto order placed")
}

func (p *platform) conditionsFor(symbol string) market.Conditions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conditions[symbol]
}

func (p *platform) saveState() {
	err := p.st.Save(store.KeyTradingState, tradingState{
		Active:  true,
		Auto:    flagAuto,
		Balance: p.broker.Balance(),
	})
	if err != nil {
		log.WithError(err).Debug("persist trading state failed")
	}
}

func firstBlocking(d risk.Decision) string {
	for _, f := range d.Findings {
		if f.Action == risk.ActionBlock {
			return f.Message
		}
	}
	return "blocked"
}

func (p *platform) logSummary() {
	daily := p.risk.Daily()
	insights := p.scoring.Insights()
	log.WithFields(log.Fields{
		"balance":    p.broker.Balance(),
		"trades":     daily.Trades,
		"net_profit": daily.TotalProfit,
		"win_rate":   insights.OverallWinRate,
		"level":      insights.ExperienceLevel,
	}).Info("session summary")
}
