package orders

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/store"
)

// immediate runs scheduled callbacks synchronously so tests never wait.
func immediate(_ time.Duration, fn func()) { fn() }

type recordingExec struct {
	mu     sync.Mutex
	orders []PendingOrder
	err    error
}

func (r *recordingExec) fn(o PendingOrder, _ market.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.orders = append(r.orders, o)
	return nil
}

func (r *recordingExec) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func newBook(t *testing.T, exec ExecuteFunc, opts ...BookOption) *Book {
	t.Helper()
	st, err := store.New(t.TempDir())
	assert.NoError(t, err)
	opts = append([]BookOption{WithScheduler(immediate)}, opts...)
	return NewBook(st, exec, opts...)
}

func tick(symbol string, price float64) market.Tick {
	return market.Tick{Symbol: symbol, Price: price, Time: time.Now()}
}

func TestBuyTargetReachedExecutes(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{}
	b := newBook(t, exec.fn)

	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)

	// Above target: nothing happens.
	assert.Empty(t, b.Evaluate(tick("EUR/USD", 1.0850)))

	// At target: triggered, then executed through the scheduler.
	changed := b.Evaluate(tick("EUR/USD", 1.0800))
	assert.Len(t, changed, 1)
	assert.Equal(t, StatusTriggered, changed[0].Status)

	got, ok := b.Get(o.ID)
	assert.True(t, ok)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.InDelta(t, 1.0800, got.EntryPrice, 1e-9)
	assert.NotNil(t, got.ExecutedAt)
	assert.Equal(t, 1, exec.count())
}

func TestSellTargetDirection(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{}
	b := newBook(t, exec.fn)

	_, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Sell, Amount: 10,
		TargetPrice: 1.0900, Timeframe: "1m",
	})
	assert.NoError(t, err)

	assert.Empty(t, b.Evaluate(tick("EUR/USD", 1.0850)))
	assert.Len(t, b.Evaluate(tick("EUR/USD", 1.0900)), 1)
}

func TestExecuteNow(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{}
	b := newBook(t, exec.fn)

	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)

	// Price is nowhere near the target, execution happens anyway.
	assert.NoError(t, b.ExecuteNow(o.ID, tick("EUR/USD", 1.0850)))

	got, ok := b.Get(o.ID)
	assert.True(t, ok)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.InDelta(t, 1.0850, got.EntryPrice, 1e-9)
	assert.Equal(t, 1, exec.count())
}

func TestExecuteNowRejectsNonPending(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{}
	b := newBook(t, exec.fn)

	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)
	assert.NoError(t, b.ExecuteNow(o.ID, tick("EUR/USD", 1.0850)))

	err = b.ExecuteNow(o.ID, tick("EUR/USD", 1.0850))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")

	err = b.ExecuteNow("missing", tick("EUR/USD", 1.0850))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, 1, exec.count())
}

func TestExecutedOrderNeverReEvaluated(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{}
	b := newBook(t, exec.fn)

	_, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)

	assert.Len(t, b.Evaluate(tick("EUR/USD", 1.0790)), 1)
	// Same price again: the order is terminal, nothing fires twice.
	assert.Empty(t, b.Evaluate(tick("EUR/USD", 1.0790)))
	assert.Equal(t, 1, exec.count())
}

func TestExpiryWithoutTrigger(t *testing.T) {
	t.Parallel()

	now := time.Now()
	exec := &recordingExec{}
	b := newBook(t, exec.fn, WithNow(func() time.Time { return now }))

	expiry := now.Add(time.Minute)
	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m", ExpiresAt: &expiry,
	})
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	changed := b.Evaluate(tick("EUR/USD", 1.0850))
	assert.Len(t, changed, 1)
	assert.Equal(t, StatusExpired, changed[0].Status)

	// Expired exactly once; later ticks leave it alone even at target.
	assert.Empty(t, b.Evaluate(tick("EUR/USD", 1.0790)))
	got, _ := b.Get(o.ID)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Zero(t, exec.count())
}

func TestTargetWinsOverSimultaneousExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	exec := &recordingExec{}
	b := newBook(t, exec.fn, WithNow(func() time.Time { return now }))

	expiry := now.Add(time.Minute)
	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m", ExpiresAt: &expiry,
	})
	assert.NoError(t, err)

	// Past expiry AND at target in the same tick: the trigger fires.
	now = now.Add(2 * time.Minute)
	changed := b.Evaluate(tick("EUR/USD", 1.0795))
	assert.Len(t, changed, 1)
	assert.Equal(t, StatusTriggered, changed[0].Status)

	got, _ := b.Get(o.ID)
	assert.Equal(t, StatusExecuted, got.Status)
}

func TestRefusedExecutionCancelsOrder(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{err: errors.New("risk blocked")}
	b := newBook(t, exec.fn)

	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)

	b.Evaluate(tick("EUR/USD", 1.0800))

	got, _ := b.Get(o.ID)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestEvaluateIgnoresOtherSymbols(t *testing.T) {
	t.Parallel()

	exec := &recordingExec{}
	b := newBook(t, exec.fn)

	_, err := b.Add(PendingOrder{
		Symbol: "GBP/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.2600, Timeframe: "1m",
	})
	assert.NoError(t, err)

	assert.Empty(t, b.Evaluate(tick("EUR/USD", 1.0000)))
}

func TestCancel(t *testing.T) {
	t.Parallel()

	b := newBook(t, nil)
	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)

	assert.NoError(t, b.Cancel(o.ID))
	assert.Error(t, b.Cancel(o.ID), "cancelling twice must fail")
	assert.Error(t, b.Cancel("missing"))

	// Cancelled orders never trigger.
	assert.Empty(t, b.Evaluate(tick("EUR/USD", 1.0800)))
}

func TestAddValidation(t *testing.T) {
	t.Parallel()

	b := newBook(t, nil)

	tests := []struct {
		name  string
		order PendingOrder
	}{
		{"no_symbol", PendingOrder{Side: market.Buy, Amount: 10, TargetPrice: 1}},
		{"no_target", PendingOrder{Symbol: "EUR/USD", Side: market.Buy, Amount: 10}},
		{"no_amount", PendingOrder{Symbol: "EUR/USD", Side: market.Buy, TargetPrice: 1}},
		{"bad_side", PendingOrder{Symbol: "EUR/USD", Side: "HOLD", Amount: 10, TargetPrice: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Add(tt.order)
			assert.Error(t, err)
		})
	}
}

func TestLoadDropsMalformedOrders(t *testing.T) {
	t.Parallel()

	st, err := store.New(t.TempDir())
	assert.NoError(t, err)

	good := PendingOrder{
		ID: "GOOD", Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.08, Status: StatusPending, CreatedAt: time.Now(),
	}
	executed := good
	executed.ID = "DONE"
	executed.Status = StatusExecuted

	goodRaw, _ := json.Marshal(good)
	executedRaw, _ := json.Marshal(executed)
	raws := []json.RawMessage{
		goodRaw,
		json.RawMessage(`"not an order"`),
		json.RawMessage(`{"id":"","symbol":""}`),
		executedRaw,
	}
	assert.NoError(t, st.Save(store.KeyPendingOrders, raws))

	b := NewBook(st, nil, WithScheduler(immediate))
	pending := b.Pending()
	assert.Len(t, pending, 1)
	assert.Equal(t, "GOOD", pending[0].ID)
}

func TestStatusChangesPersist(t *testing.T) {
	t.Parallel()

	st, err := store.New(t.TempDir())
	assert.NoError(t, err)

	b := NewBook(st, nil, WithScheduler(immediate))
	o, err := b.Add(PendingOrder{
		Symbol: "EUR/USD", Side: market.Buy, Amount: 10,
		TargetPrice: 1.0800, Timeframe: "1m",
	})
	assert.NoError(t, err)

	// A fresh book sees the pending order.
	b2 := NewBook(st, nil, WithScheduler(immediate))
	assert.Len(t, b2.Pending(), 1)

	// After execution the persisted entry is terminal and is not restored.
	b.Evaluate(tick("EUR/USD", 1.0800))
	got, _ := b.Get(o.ID)
	assert.Equal(t, StatusExecuted, got.Status)

	b3 := NewBook(st, nil, WithScheduler(immediate))
	assert.Empty(t, b3.Pending())
}
