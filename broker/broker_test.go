package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketsim/pocketsim/store"
)

const (
	goodKey     = "demo-key-abcdefghijklmnop"
	goodAccount = "1234567"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	opts = append([]Option{WithLatency(0), WithSeed(1)}, opts...)
	return New(st, opts...)
}

func TestConnect(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	acct, err := c.Connect(context.Background(), Credentials{APIKey: goodKey, AccountID: goodAccount})
	require.NoError(t, err)

	assert.True(t, c.Connected())
	assert.Equal(t, goodAccount, acct.AccountID)
	assert.Equal(t, "USD", acct.Currency)
	assert.True(t, acct.Demo)
	assert.GreaterOrEqual(t, acct.Balance, 1000.0)
	assert.LessOrEqual(t, acct.Balance, 6000.0)
	assert.Equal(t, acct.Balance, acct.Equity)
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		creds Credentials
		field string
	}{
		{"short api key", Credentials{APIKey: "too-short", AccountID: goodAccount}, "api key"},
		{"empty api key", Credentials{AccountID: goodAccount}, "api key"},
		{"short account id", Credentials{APIKey: goodKey, AccountID: "12345"}, "account id"},
		{"non numeric account id", Credentials{APIKey: goodKey, AccountID: "abc1234"}, "account id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t)

			_, err := c.Connect(context.Background(), tt.creds)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.False(t, c.Connected())
		})
	}
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	_, err := c.Connect(context.Background(), Credentials{APIKey: goodKey, AccountID: goodAccount})
	require.NoError(t, err)

	c.Disconnect()
	assert.False(t, c.Connected())

	// The snapshot is gone, so a fresh client cannot restore.
	fresh := New(c.st, WithLatency(0))
	assert.False(t, fresh.Restore())
}

func TestRestore(t *testing.T) {
	t.Parallel()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	c := New(st, WithLatency(0), WithSeed(7))
	acct, err := c.Connect(context.Background(), Credentials{APIKey: goodKey, AccountID: goodAccount})
	require.NoError(t, err)

	fresh := New(st, WithLatency(0))
	require.True(t, fresh.Restore())
	assert.True(t, fresh.Connected())
	assert.Equal(t, acct, fresh.Account())
}

func TestRestoreStaleSession(t *testing.T) {
	t.Parallel()
	st, err := store.New(t.TempDir(),
		store.WithTTL(store.KeySession, time.Nanosecond))
	require.NoError(t, err)

	c := New(st, WithLatency(0))
	_, err = c.Connect(context.Background(), Credentials{APIKey: goodKey, AccountID: goodAccount})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	fresh := New(st, WithLatency(0))
	assert.False(t, fresh.Restore())
}

func TestApplyProfit(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	_, err := c.Connect(context.Background(), Credentials{APIKey: goodKey, AccountID: goodAccount})
	require.NoError(t, err)

	before := c.Balance()
	c.ApplyProfit(42.5)
	assert.InDelta(t, before+42.5, c.Balance(), 1e-9)

	c.ApplyProfit(-10)
	assert.InDelta(t, before+32.5, c.Balance(), 1e-9)
}

func TestReconnectGivesUp(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, WithReconnectPolicy(3, 0))

	// Invalid stored credentials make every attempt fail.
	c.creds = Credentials{APIKey: "bad", AccountID: "bad"}

	err := c.Reconnect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.False(t, c.Connected())
}

func TestReconnectSucceeds(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, WithReconnectPolicy(3, 0))

	_, err := c.Connect(context.Background(), Credentials{APIKey: goodKey, AccountID: goodAccount})
	require.NoError(t, err)

	// Disconnect keeps credentials, so the retry loop can reuse them.
	c.Disconnect()
	require.NoError(t, c.Reconnect(context.Background()))
	assert.True(t, c.Connected())
}

func TestReconnectRespectsContext(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, WithReconnectPolicy(5, time.Hour))
	c.creds = Credentials{APIKey: "bad", AccountID: "bad"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Reconnect(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
