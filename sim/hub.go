package sim

import (
	"sync"

	"github.com/pocketsim/pocketsim/market"
)

// SymbolAll subscribes a callback to every symbol.
const SymbolAll = ""

// Hub is the listener registry for simulator updates. Callbacks run on
// the simulator goroutine; the hub holds its lock only while copying the
// callback list, so a callback may safely cancel its own subscription.
type Hub struct {
	mu       sync.Mutex
	nextID   int
	ticks    map[string]map[int]func(market.Tick)
	signals  map[string]map[int]func(market.Signal)
	analyses map[string]map[int]func(market.Analysis)
}

func NewHub() *Hub {
	return &Hub{
		ticks:    map[string]map[int]func(market.Tick){},
		signals:  map[string]map[int]func(market.Signal){},
		analyses: map[string]map[int]func(market.Analysis){},
	}
}

// Subscription is a handle to one registered callback.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the callback from the registry. Safe to call twice.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

func (h *Hub) OnTick(symbol string, fn func(market.Tick)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	if h.ticks[symbol] == nil {
		h.ticks[symbol] = map[int]func(market.Tick){}
	}
	h.ticks[symbol][id] = fn
	return &Subscription{cancel: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.ticks[symbol], id)
	}}
}

func (h *Hub) OnSignal(symbol string, fn func(market.Signal)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	if h.signals[symbol] == nil {
		h.signals[symbol] = map[int]func(market.Signal){}
	}
	h.signals[symbol][id] = fn
	return &Subscription{cancel: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.signals[symbol], id)
	}}
}

func (h *Hub) OnAnalysis(symbol string, fn func(market.Analysis)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	if h.analyses[symbol] == nil {
		h.analyses[symbol] = map[int]func(market.Analysis){}
	}
	h.analyses[symbol][id] = fn
	return &Subscription{cancel: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.analyses[symbol], id)
	}}
}

func (h *Hub) publishTick(t market.Tick) {
	h.mu.Lock()
	fns := make([]func(market.Tick), 0, len(h.ticks[t.Symbol])+len(h.ticks[SymbolAll]))
	for _, fn := range h.ticks[t.Symbol] {
		fns = append(fns, fn)
	}
	for _, fn := range h.ticks[SymbolAll] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (h *Hub) publishSignal(s market.Signal) {
	h.mu.Lock()
	fns := make([]func(market.Signal), 0, len(h.signals[s.Symbol])+len(h.signals[SymbolAll]))
	for _, fn := range h.signals[s.Symbol] {
		fns = append(fns, fn)
	}
	for _, fn := range h.signals[SymbolAll] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (h *Hub) publishAnalysis(a market.Analysis) {
	h.mu.Lock()
	fns := make([]func(market.Analysis), 0, len(h.analyses[a.Symbol])+len(h.analyses[SymbolAll]))
	for _, fn := range h.analyses[a.Symbol] {
		fns = append(fns, fn)
	}
	for _, fn := range h.analyses[SymbolAll] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}
