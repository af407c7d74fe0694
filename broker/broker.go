// Package broker simulates the "Pocket Option" session layer. There is
// no real broker: credentials are format-checked, account balances are
// generated, and connection drops are healed by a bounded retry loop.
package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/internal/id"
	"github.com/pocketsim/pocketsim/store"
)

const (
	minAPIKeyLen    = 20
	minAccountIDLen = 6

	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 5 * time.Second
)

type Credentials struct {
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id"`
}

type AccountInfo struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Equity    float64 `json:"equity"`
	Currency  string  `json:"currency"`
	Demo      bool    `json:"demo"`
}

// Session is the snapshot persisted between runs.
type Session struct {
	Connected   bool        `json:"connected"`
	Account     AccountInfo `json:"account"`
	Credentials Credentials `json:"credentials"`
	SessionID   string      `json:"session_id"`
}

// ValidationError reports a malformed credential field. It is a
// structured failure for the caller, never a fatal condition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Client is the simulated broker connection.
type Client struct {
	mu        sync.Mutex
	connected bool
	account   AccountInfo
	creds     Credentials
	sessionID string

	st       *store.Store
	rng      *rand.Rand
	latency  time.Duration
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithLatency sets the simulated authentication latency.
func WithLatency(d time.Duration) Option {
	return func(c *Client) { c.latency = d }
}

// WithReconnectPolicy bounds the reconnect loop.
func WithReconnectPolicy(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// WithSeed makes the generated account deterministic, for tests.
func WithSeed(seed int64) Option {
	return func(c *Client) { c.rng = rand.New(rand.NewSource(seed)) }
}

func New(st *store.Store, opts ...Option) *Client {
	c := &Client{
		st:       st,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		latency:  300 * time.Millisecond,
		attempts: DefaultReconnectAttempts,
		delay:    DefaultReconnectDelay,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validateCredentials(creds Credentials) error {
	if len(creds.APIKey) < minAPIKeyLen {
		return &ValidationError{Field: "api key", Reason: fmt.Sprintf("must be at least %d characters", minAPIKeyLen)}
	}
	if len(creds.AccountID) < minAccountIDLen {
		return &ValidationError{Field: "account id", Reason: fmt.Sprintf("must be at least %d characters", minAccountIDLen)}
	}
	for _, r := range creds.AccountID {
		if r < '0' || r > '9' {
			return &ValidationError{Field: "account id", Reason: "must be numeric"}
		}
	}
	return nil
}

// Connect validates the credentials, waits out the simulated
// authentication latency, and produces a synthetic account.
func (c *Client) Connect(ctx context.Context, creds Credentials) (AccountInfo, error) {
	if err := validateCredentials(creds); err != nil {
		return AccountInfo{}, err
	}

	if err := c.sleep(ctx, c.latency); err != nil {
		return AccountInfo{}, err
	}

	c.mu.Lock()
	balance := 1000 + c.rng.Float64()*5000
	c.account = AccountInfo{
		AccountID: creds.AccountID,
		Balance:   balance,
		Equity:    balance,
		Currency:  "USD",
		Demo:      true,
	}
	c.creds = creds
	c.connected = true
	c.sessionID = id.New()
	c.saveSessionLocked()
	account := c.account
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"account": account.AccountID, "balance": account.Balance,
	}).Info("broker: connected")
	return account, nil
}

// Disconnect drops the session and clears the persisted snapshot.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.sessionID = ""
	if c.st != nil {
		c.st.Clear(store.KeySession)
	}
	c.mu.Unlock()
	log.Info("broker: disconnected")
}

// Reconnect retries Connect with the stored credentials up to the
// configured attempt budget, waiting a fixed delay between tries. It
// gives up with the last error once the budget is spent.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		log.WithFields(log.Fields{"attempt": attempt, "max": c.attempts}).
			Info("broker: reconnecting")

		if _, lastErr = c.Connect(ctx, creds); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < c.attempts {
			if err := c.sleep(ctx, c.delay); err != nil {
				return err
			}
		}
	}

	log.WithError(lastErr).Warn("broker: max reconnection attempts reached")
	return fmt.Errorf("reconnect failed after %d attempts: %w", c.attempts, lastErr)
}

// Connected reports the connection state.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Account returns the current synthetic account info.
func (c *Client) Account() AccountInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// Balance is a convenience accessor for the risk validator.
func (c *Client) Balance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account.Balance
}

// ApplyProfit adjusts the synthetic balance after a resolved trade.
func (c *Client) ApplyProfit(profit float64) {
	c.mu.Lock()
	c.account.Balance += profit
	c.account.Equity = c.account.Balance
	c.saveSessionLocked()
	c.mu.Unlock()
}

// Restore rehydrates the session from the store. The snapshot carries a
// TTL on its key, so a stale session simply fails to load.
func (c *Client) Restore() bool {
	if c.st == nil {
		return false
	}
	var s Session
	if !c.st.Load(store.KeySession, &s) || !s.Connected {
		return false
	}

	c.mu.Lock()
	c.connected = true
	c.account = s.Account
	c.creds = s.Credentials
	c.sessionID = s.SessionID
	c.mu.Unlock()

	log.WithField("account", s.Account.AccountID).Info("broker: session restored")
	return true
}

func (c *Client) saveSessionLocked() {
	if c.st == nil {
		return
	}
	err := c.st.Save(store.KeySession, Session{
		Connected:   c.connected,
		Account:     c.account,
		Credentials: c.creds,
		SessionID:   c.sessionID,
	})
	if err != nil {
		log.WithError(err).Debug("broker: persist session failed")
	}
}
