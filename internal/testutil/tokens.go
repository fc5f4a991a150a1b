package testutil

import (
	"fmt"
	"sync"
)

// FixedTokenGenerator returns the same operation token every time.
//
// Useful when a test only cares that operations carry a token, not which.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed token generator.
// If token is empty, Generate() returns "test-op-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-op-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
//
// Implements engine.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// CountingTokenGenerator returns "<prefix>-1", "<prefix>-2", ... so golden
// snapshots can name operations without depending on UUIDs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type CountingTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewCountingTokenGenerator creates a counting generator. The first call to
// Generate() returns "<prefix>-1". An empty prefix defaults to "op".
func NewCountingTokenGenerator(prefix string) *CountingTokenGenerator {
	if prefix == "" {
		prefix = "op"
	}
	return &CountingTokenGenerator{prefix: prefix}
}

// Generate increments the counter and returns the next token.
func (g *CountingTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Current returns how many tokens have been generated.
func (g *CountingTokenGenerator) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. After Reset(), Generate() returns
// "<prefix>-1" again.
func (g *CountingTokenGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
