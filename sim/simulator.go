// Package sim generates synthetic market data: price ticks on a fixed
// cadence, trading signals, and slower market-condition analyses. The
// numbers are a seeded random walk, not market data; the rest of the
// platform consumes them as opaque values.
package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/market"
)

// DefaultInterval matches the 2-second cadence of the dashboard feed.
const DefaultInterval = 2 * time.Second

// analysisEvery is the number of tick intervals between analysis passes.
const analysisEvery = 3

var basePrices = map[string]float64{
	"EUR/USD": 1.0850,
	"GBP/USD": 1.2650,
	"USD/JPY": 149.50,
	"AUD/USD": 0.6550,
	"BTC/USD": 43250,
	"ETH/USD": 2280,
}

type Config struct {
	Interval time.Duration
	Symbols  []string
	Seed     int64
}

type symbolState struct {
	base  float64
	last  float64
	trend float64 // -1..1
	vol   float64 // 0..1
}

// Simulator drives the hub with generated ticks, signals, and analyses.
type Simulator struct {
	hub      *Hub
	ticks    *market.TickStore
	interval time.Duration
	symbols  []string

	mu      sync.Mutex
	rng     *rand.Rand
	state   map[string]*symbolState
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(cfg Config) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"EUR/USD"}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulator{
		hub:      NewHub(),
		ticks:    market.NewTickStore(),
		interval: cfg.Interval,
		symbols:  cfg.Symbols,
		rng:      rand.New(rand.NewSource(seed)),
		state:    make(map[string]*symbolState, len(cfg.Symbols)),
	}
	for _, sym := range cfg.Symbols {
		base, ok := basePrices[sym]
		if !ok {
			base = 1.0
		}
		s.state[sym] = &symbolState{base: base, last: base, vol: 0.5}
	}
	return s
}

// Hub exposes the listener registry.
func (s *Simulator) Hub() *Hub { return s.hub }

// Ticks exposes the latest-tick store.
func (s *Simulator) Ticks() *market.TickStore { return s.ticks }

// Symbols returns the configured symbol list.
func (s *Simulator) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Start launches the update loop. Starting a running simulator is a
// no-op.
func (s *Simulator) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	log.WithField("interval", s.interval).Info("sim: started")

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		n := 0
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				s.step(now)
				n++
				if n%analysisEvery == 0 {
					s.analyze(now)
				}
			}
		}
	}()
}

// Stop halts the update loop and waits for it to exit.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	log.Info("sim: stopped")
}

// step produces one tick and one signal per symbol.
func (s *Simulator) step(now time.Time) {
	for _, sym := range s.symbols {
		t := s.nextTick(sym, now)
		s.ticks.Set(t)
		s.hub.publishTick(t)
		s.hub.publishSignal(s.nextSignal(sym, now))
	}
}

// analyze produces one market analysis per symbol.
func (s *Simulator) analyze(now time.Time) {
	for _, sym := range s.symbols {
		s.hub.publishAnalysis(s.nextAnalysis(sym, now))
	}
}

func (s *Simulator) nextTick(symbol string, now time.Time) market.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state[symbol]

	// Drift volatility and trend so regimes persist across ticks.
	st.vol = clamp(st.vol+(s.rng.Float64()-0.5)*0.1, 0.1, 1)
	st.trend = clamp(st.trend+(s.rng.Float64()-0.5)*0.2, -1, 1)

	noise := (s.rng.Float64() - 0.5) * 2
	change := st.base * (st.trend*0.0001 + st.vol*noise*0.0005)
	price := math.Max(st.base*1e-5, st.last+change)
	st.last = price

	spread := st.base * 0.00005
	return market.Tick{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: (price - st.base) / st.base * 100,
		Bid:           price - s.rng.Float64()*spread,
		Ask:           price + s.rng.Float64()*spread,
		Volume:        int64(s.rng.Intn(1_000_000)),
		Volatility:    volLabel(st.vol),
		Trend:         trendLabel(st.trend),
		Time:          now,
	}
}

func (s *Simulator) nextSignal(symbol string, now time.Time) market.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	rsi := 30 + s.rng.Float64()*40
	macd := "bearish"
	if s.rng.Float64() > 0.5 {
		macd = "bullish"
	}

	var direction market.Side
	var strength float64
	switch {
	case rsi < 35 && macd == "bullish":
		direction = market.Buy
		strength = 70 + s.rng.Float64()*20
	case rsi > 65 && macd == "bearish":
		direction = market.Sell
		strength = 70 + s.rng.Float64()*20
	default:
		strength = 40 + s.rng.Float64()*20
	}

	return market.Signal{
		Symbol:     symbol,
		Direction:  direction,
		Strength:   int(math.Round(strength)),
		Confidence: int(math.Round(strength * 0.9)),
		RSI:        rsi,
		MACD:       macd,
		Time:       now,
	}
}

func (s *Simulator) nextAnalysis(symbol string, now time.Time) market.Analysis {
	s.mu.Lock()
	st := s.state[symbol]
	vol, trend := st.vol, st.trend
	s.mu.Unlock()

	return market.Analysis{
		Symbol: symbol,
		Conditions: market.Conditions{
			Volatility: volLabel(vol),
			Sentiment:  sentimentLabel(trend),
		},
		Trend: trendLabel(trend),
		Time:  now,
	}
}

func volLabel(v float64) string {
	switch {
	case v > 0.7:
		return market.VolHigh
	case v > 0.4:
		return market.VolMedium
	default:
		return market.VolLow
	}
}

func trendLabel(t float64) string {
	switch {
	case t > 0.2:
		return market.TrendBullish
	case t < -0.2:
		return market.TrendBearish
	default:
		return market.TrendSideways
	}
}

func sentimentLabel(t float64) string {
	switch {
	case t > 0.6:
		return market.SentimentStrongBullish
	case t > 0.2:
		return market.SentimentBullish
	case t < -0.6:
		return market.SentimentStrongBearish
	case t < -0.2:
		return market.SentimentBearish
	default:
		return market.SentimentNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
