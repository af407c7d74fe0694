// Package id mints ULID identifiers for orders and journal records.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints ULIDs from a clock and a monotonic entropy source.
// IDs generated within the same millisecond remain lexicographically
// increasing, which keeps order and journal records time-sortable.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

type Option func(*Generator)

// WithNow overrides the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(opts ...Option) *Generator {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := &Generator{
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New returns the next ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}

var defaultGen = NewGenerator()

// New returns a ULID string from the package-level generator.
func New() string {
	return defaultGen.New()
}
