package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	interval, err := cfg.Simulator.ParseInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, interval)

	delay, err := cfg.Broker.ParseReconnectDelay()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, delay)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
simulator:
  interval: 500ms
  symbols: ["EUR/USD"]
  seed: 42
risk:
  max_position_size: 3
  daily_loss_limit: 50
  max_consecutive_losses: 2
  min_confidence: 70
  risk_reward_ratio: 2
  initial_balance: 2000
store:
  dir: /tmp/state
journal:
  enabled: false
feed:
  enabled: false
broker:
  reconnect_attempts: 3
  reconnect_delay: 10s
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"EUR/USD"}, cfg.Simulator.Symbols)
	assert.Equal(t, int64(42), cfg.Simulator.Seed)
	assert.Equal(t, 3.0, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 70, cfg.Risk.MinConfidence)
	assert.Equal(t, "/tmp/state", cfg.Store.Dir)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, 3, cfg.Broker.ReconnectAttempts)

	interval, err := cfg.Simulator.ParseInterval()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, interval)
}

func TestLoadFromJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "simulator": {"interval": "1s", "symbols": ["BTC/USD"]},
  "risk": {
    "max_position_size": 5, "daily_loss_limit": 100,
    "max_consecutive_losses": 3, "min_confidence": 65,
    "risk_reward_ratio": 2, "initial_balance": 1000
  },
  "store": {"dir": "/tmp/state"},
  "broker": {"reconnect_attempts": 5, "reconnect_delay": "5s"}
}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD"}, cfg.Simulator.Symbols)
	assert.Equal(t, 5.0, cfg.Risk.MaxPositionSize)
}

func TestLoadUnparseable(t *testing.T) {
	path := writeFile(t, "config.yaml", "{not valid yaml or json")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tried YAML and JSON")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("POCKETSIM_API_KEY", "env-key-abcdefghijklmnop")
	t.Setenv("POCKETSIM_ACCOUNT_ID", "9876543")

	path := writeFile(t, "config.yaml", `
simulator:
  interval: 2s
  symbols: ["EUR/USD"]
risk:
  max_position_size: 5
  daily_loss_limit: 100
  max_consecutive_losses: 3
  min_confidence: 65
  risk_reward_ratio: 2
  initial_balance: 1000
store:
  dir: /tmp/state
broker:
  api_key: file-key
  account_id: "111111"
  reconnect_attempts: 5
  reconnect_delay: 5s
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key-abcdefghijklmnop", cfg.Broker.APIKey)
	assert.Equal(t, "9876543", cfg.Broker.AccountID)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no symbols", func(c *Config) { c.Simulator.Symbols = nil }, "symbols"},
		{"bad interval", func(c *Config) { c.Simulator.Interval = "soon" }, "interval"},
		{"no store dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"bad state ttl", func(c *Config) { c.Store.StateTTL = "forever" }, "state_ttl"},
		{"journal without path", func(c *Config) { c.Journal.DBPath = "" }, "db_path"},
		{"feed without addr", func(c *Config) { c.Feed.Addr = "" }, "feed.addr"},
		{"no reconnect budget", func(c *Config) { c.Broker.ReconnectAttempts = 0 }, "reconnect_attempts"},
		{"impossible payout", func(c *Config) { c.Broker.Payout = 1.5 }, "payout"},
		{"oversized position", func(c *Config) { c.Risk.MaxPositionSize = 200 }, "max_position_size"},
		{"zero balance", func(c *Config) { c.Risk.InitialBalance = 0 }, "initial_balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Simulator.Seed = 99

	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveToFile(path))

		loaded, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, int64(99), loaded.Simulator.Seed)
		assert.Equal(t, cfg.Risk, loaded.Risk)
	}
}
