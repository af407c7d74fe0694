package orders

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/market"
)

// Evaluate runs every pending order for the tick's symbol through the
// target and expiry checks, returning copies of the orders whose state
// changed. Target-reached takes priority when an order is simultaneously
// past its expiry; that tie-break is deliberate and pinned by tests.
func (b *Book) Evaluate(t market.Tick) []PendingOrder {
	b.mu.Lock()

	var changed []PendingOrder
	var triggered []string
	now := b.now()

	for _, o := range b.orders {
		if o.Status != StatusPending || o.Symbol != t.Symbol {
			continue
		}

		switch {
		case o.targetReached(t.Price):
			o.Status = StatusTriggered
			changed = append(changed, *o)
			triggered = append(triggered, o.ID)

		case o.expired(now):
			o.Status = StatusExpired
			changed = append(changed, *o)
			log.WithFields(log.Fields{"id": o.ID, "symbol": o.Symbol}).
				Info("orders: pending order expired")
		}
	}

	if len(changed) > 0 {
		b.persistLocked()
	}
	b.mu.Unlock()

	// Execution is deferred by a short fixed delay, the way the platform
	// models broker latency. Scheduled outside the lock so a synchronous
	// scheduler cannot deadlock.
	for _, id := range triggered {
		log.WithFields(log.Fields{"id": id, "price": t.Price}).
			Info("orders: target reached, order triggered")
		orderID := id
		b.schedule(b.delay, func() {
			b.runExecution(orderID, t)
		})
	}
	return changed
}

// ExecuteNow triggers a pending order at the given tick without waiting
// for its target price. The usual execution delay still applies.
func (b *Book) ExecuteNow(orderID string, t market.Tick) error {
	b.mu.Lock()
	o := b.findLocked(orderID)
	if o == nil {
		b.mu.Unlock()
		return fmt.Errorf("order %q not found", orderID)
	}
	if o.Status != StatusPending {
		b.mu.Unlock()
		return fmt.Errorf("order %q is %s, not pending", orderID, o.Status)
	}

	o.Status = StatusTriggered
	b.persistLocked()
	b.mu.Unlock()

	log.WithFields(log.Fields{"id": orderID, "price": t.Price}).
		Info("orders: immediate execution requested")
	b.schedule(b.delay, func() {
		b.runExecution(orderID, t)
	})
	return nil
}

func (b *Book) runExecution(orderID string, t market.Tick) {
	b.mu.Lock()
	o := b.findLocked(orderID)
	if o == nil || o.Status != StatusTriggered {
		b.mu.Unlock()
		return
	}

	execute := b.execute
	snapshot := *o
	b.mu.Unlock()

	var execErr error
	if execute != nil {
		execErr = execute(snapshot, t)
	}

	b.mu.Lock()
	o = b.findLocked(orderID)
	if o == nil || o.Status != StatusTriggered {
		b.mu.Unlock()
		return
	}
	if execErr != nil {
		o.Status = StatusCancelled
		b.persistLocked()
		b.mu.Unlock()
		log.WithError(execErr).WithField("id", orderID).
			Warn("orders: execution refused, order cancelled")
		return
	}

	now := b.now()
	o.Status = StatusExecuted
	o.EntryPrice = t.Price
	o.ExecutedAt = &now
	b.persistLocked()
	b.mu.Unlock()

	log.WithFields(log.Fields{"id": orderID, "entry": t.Price}).
		Info("orders: order executed")
}
