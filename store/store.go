// Package store is a JSON file-backed key-value store with per-key TTLs.
// It replaces a real persistence layer for the simulated platform: every
// failure mode (missing file, corrupt JSON, permission error) degrades to
// "no data" so callers can fall back to defaults.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Well-known keys used across the platform.
const (
	KeyTradingState  = "trading_state"
	KeySession       = "session"
	KeyPendingOrders = "pending_orders"
	KeyRiskSettings  = "risk_settings"
	KeyDailyStats    = "daily_stats"
	KeyExperience    = "ml_experience"
)

type envelope struct {
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// Store persists one JSON blob per key under a directory.
type Store struct {
	dir  string
	ttls map[string]time.Duration
	now  func() time.Time
}

type Option func(*Store)

// WithTTL makes Load treat entries under key older than d as absent.
func WithTTL(key string, d time.Duration) Option {
	return func(s *Store) { s.ttls[key] = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:  dir,
		ttls: map[string]time.Duration{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save marshals v under key, stamping the write time for TTL checks.
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	env, err := json.Marshal(envelope{SavedAt: s.now(), Data: data})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(key), env, 0o644)
}

// Load unmarshals the entry under key into v. It returns false when the
// entry is missing, unreadable, corrupt, or past its TTL. Stale entries
// are cleared so the next read is cheap.
func (s *Store) Load(key string, v any) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("key", key).Debug("store: read failed")
		}
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.WithError(err).WithField("key", key).Debug("store: corrupt entry")
		return false
	}

	if ttl, ok := s.ttls[key]; ok && s.now().Sub(env.SavedAt) > ttl {
		s.Clear(key)
		return false
	}

	if err := json.Unmarshal(env.Data, v); err != nil {
		log.WithError(err).WithField("key", key).Debug("store: decode failed")
		return false
	}
	return true
}

// Clear removes the entry under key, if any.
func (s *Store) Clear(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("key", key).Debug("store: clear failed")
	}
}

func (s *Store) path(key string) string {
	key = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(s.dir, key+".json")
}
