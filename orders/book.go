// Package orders holds the pending-order book and the trigger engine that
// fires trades when a tick reaches an order's target price.
package orders

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/internal/id"
	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/store"
)

// ExecuteFunc runs a trade whose order just fired. A non-nil error means
// the trade was refused (risk gate); the order is then cancelled.
type ExecuteFunc func(o PendingOrder, t market.Tick) error

// Book owns all pending orders. Every status change rewrites the whole
// persisted list, mirroring how the snapshot store works elsewhere.
type Book struct {
	mu       sync.Mutex
	orders   []*PendingOrder
	st       *store.Store
	execute  ExecuteFunc
	delay    time.Duration
	now      func() time.Time
	schedule func(d time.Duration, fn func())
}

type BookOption func(*Book)

// WithExecuteDelay sets the pause between trigger and execution.
func WithExecuteDelay(d time.Duration) BookOption {
	return func(b *Book) { b.delay = d }
}

// WithNow overrides the wall clock, for tests.
func WithNow(now func() time.Time) BookOption {
	return func(b *Book) { b.now = now }
}

// WithScheduler overrides deferred execution, for tests.
func WithScheduler(fn func(d time.Duration, f func())) BookOption {
	return func(b *Book) { b.schedule = fn }
}

func NewBook(st *store.Store, execute ExecuteFunc, opts ...BookOption) *Book {
	b := &Book{
		st:      st,
		execute: execute,
		delay:   100 * time.Millisecond,
		now:     time.Now,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.load()
	return b
}

// load restores pending orders from the store. Entries that fail to
// decode or validate are dropped; only pending orders survive a restart.
func (b *Book) load() {
	if b.st == nil {
		return
	}
	var raws []json.RawMessage
	if !b.st.Load(store.KeyPendingOrders, &raws) {
		return
	}
	for _, raw := range raws {
		var o PendingOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			continue
		}
		if !o.valid() || o.Status != StatusPending {
			continue
		}
		b.orders = append(b.orders, &o)
	}
	if len(b.orders) > 0 {
		log.WithField("count", len(b.orders)).Info("orders: restored pending orders")
	}
}

// Add registers a new pending order. ID, status, and creation time are
// assigned here; caller-set values for them are ignored.
func (b *Book) Add(o PendingOrder) (PendingOrder, error) {
	if o.Symbol == "" {
		return PendingOrder{}, fmt.Errorf("add order: symbol is required")
	}
	if o.TargetPrice <= 0 {
		return PendingOrder{}, fmt.Errorf("add order: target price must be positive")
	}
	if o.Amount <= 0 {
		return PendingOrder{}, fmt.Errorf("add order: amount must be positive")
	}
	if o.Side != market.Buy && o.Side != market.Sell {
		return PendingOrder{}, fmt.Errorf("add order: side must be BUY or SELL")
	}

	o.ID = id.New()
	o.Status = StatusPending
	o.CreatedAt = b.now()
	o.EntryPrice = 0
	o.ExecutedAt = nil

	b.mu.Lock()
	b.orders = append(b.orders, &o)
	b.persistLocked()
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"id": o.ID, "symbol": o.Symbol, "side": o.Side, "target": o.TargetPrice,
	}).Info("orders: pending order added")
	return o, nil
}

// Cancel moves a pending order to cancelled.
func (b *Book) Cancel(orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o := b.findLocked(orderID)
	if o == nil {
		return fmt.Errorf("cancel order: %q not found", orderID)
	}
	if o.Status != StatusPending {
		return fmt.Errorf("cancel order: %q is %s", orderID, o.Status)
	}
	o.Status = StatusCancelled
	b.persistLocked()
	return nil
}

// Get returns a copy of the order with the given ID.
func (b *Book) Get(orderID string) (PendingOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.findLocked(orderID)
	if o == nil {
		return PendingOrder{}, false
	}
	return *o, true
}

// Pending returns copies of all orders still awaiting their target.
func (b *Book) Pending() []PendingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []PendingOrder
	for _, o := range b.orders {
		if o.Status == StatusPending {
			out = append(out, *o)
		}
	}
	return out
}

func (b *Book) findLocked(orderID string) *PendingOrder {
	for _, o := range b.orders {
		if o.ID == orderID {
			return o
		}
	}
	return nil
}

func (b *Book) persistLocked() {
	if b.st == nil {
		return
	}
	if err := b.st.Save(store.KeyPendingOrders, b.orders); err != nil {
		log.WithError(err).Debug("orders: persist failed")
	}
}
