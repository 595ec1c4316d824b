package engine

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator issues correlation tokens for call trees. Every call in
// one logical tree (the top-level call and all its sub-calls) shares a
// token. Implemented by UUIDv7Generator in production and
// testutil.FixedTokenGenerator in tests.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-sortable UUIDv7 tokens, which keeps journal
// listings roughly in submission order when browsing by token.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7 string.
// Panics if UUID generation fails, which does not happen in practice.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// sequenceGenerator issues "tok-1", "tok-2", ... for callers that want
// readable tokens without fixing them up front.
type sequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator issuing prefix-1, prefix-2, …
func NewSequenceGenerator(prefix string) TokenGenerator {
	return &sequenceGenerator{prefix: prefix}
}

func (g *sequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
