// Package config loads and validates platform configuration from YAML
// or JSON files, with .env based credential overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/pocketsim/pocketsim/risk"
)

// Config represents the complete platform configuration
type Config struct {
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Risk      risk.Settings   `json:"risk" yaml:"risk"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
}

// SimulatorConfig contains price feed simulation parameters
type SimulatorConfig struct {
	Interval string   `json:"interval" yaml:"interval"` // e.g. "2s", "500ms"
	Symbols  []string `json:"symbols" yaml:"symbols"`
	Seed     int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ParseInterval converts the tick interval string to time.Duration
func (s SimulatorConfig) ParseInterval() (time.Duration, error) {
	if s.Interval == "" {
		return 0, nil
	}
	return str2duration.ParseDuration(s.Interval)
}

// StoreConfig contains persistence parameters
type StoreConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	StateTTL   string `json:"state_ttl,omitempty" yaml:"state_ttl,omitempty"`
	SessionTTL string `json:"session_ttl,omitempty" yaml:"session_ttl,omitempty"`
}

// JournalConfig contains trade journaling parameters
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// FeedConfig contains the websocket stream parameters
type FeedConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// BrokerConfig contains session and reconnect parameters
type BrokerConfig struct {
	APIKey            string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AccountID         string  `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Payout            float64 `json:"payout" yaml:"payout"` // fraction of stake paid on a win
	ReconnectAttempts int     `json:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    string  `json:"reconnect_delay" yaml:"reconnect_delay"`
}

// ParseReconnectDelay converts the delay string to time.Duration
func (b BrokerConfig) ParseReconnectDelay() (time.Duration, error) {
	if b.ReconnectDelay == "" {
		return 0, nil
	}
	return str2duration.ParseDuration(b.ReconnectDelay)
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// YAML renders the configuration for display.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// ApplyEnv overlays credentials from the environment. A .env file in
// the working directory is loaded first if present; real environment
// variables win over file entries.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("POCKETSIM_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("POCKETSIM_ACCOUNT_ID"); v != "" {
		c.Broker.AccountID = v
	}
	if v := os.Getenv("POCKETSIM_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.Simulator.ParseInterval(); err != nil {
		return fmt.Errorf("simulator.interval: %w", err)
	}
	if len(c.Simulator.Symbols) == 0 {
		return fmt.Errorf("simulator.symbols must not be empty")
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if c.Store.StateTTL != "" {
		if _, err := str2duration.ParseDuration(c.Store.StateTTL); err != nil {
			return fmt.Errorf("store.state_ttl: %w", err)
		}
	}
	if c.Store.SessionTTL != "" {
		if _, err := str2duration.ParseDuration(c.Store.SessionTTL); err != nil {
			return fmt.Errorf("store.session_ttl: %w", err)
		}
	}
	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path required when journaling is enabled")
	}
	if c.Feed.Enabled && c.Feed.Addr == "" {
		return fmt.Errorf("feed.addr required when the feed is enabled")
	}
	if c.Broker.Payout <= 0 || c.Broker.Payout > 1 {
		return fmt.Errorf("broker.payout must be between 0 and 1")
	}
	if c.Broker.ReconnectAttempts <= 0 {
		return fmt.Errorf("broker.reconnect_attempts must be positive")
	}
	if _, err := c.Broker.ParseReconnectDelay(); err != nil {
		return fmt.Errorf("broker.reconnect_delay: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Simulator: SimulatorConfig{
			Interval: "2s",
			Symbols:  []string{"EUR/USD", "GBP/USD", "USD/JPY", "AUD/USD", "BTC/USD", "ETH/USD"},
		},
		Risk: risk.DefaultSettings(),
		Store: StoreConfig{
			Dir:        "./data/state",
			StateTTL:   "1h",
			SessionTTL: "24h",
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "./data/trades.db",
		},
		Feed: FeedConfig{
			Enabled: true,
			Addr:    ":8089",
		},
		Broker: BrokerConfig{
			Payout:            0.85,
			ReconnectAttempts: 5,
			ReconnectDelay:    "5s",
		},
	}
}
