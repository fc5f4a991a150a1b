package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GateScope selects how finely the gate serializes operations.
type GateScope string

const (
	// ScopeGlobal serializes every operation in the process.
	ScopeGlobal GateScope = "global"
	// ScopeContext serializes operations per context. Operations that are
	// not bound to a context share key 0.
	ScopeContext GateScope = "context"
)

// ParseGateScope validates a scope name. Empty defaults to ScopeGlobal.
func ParseGateScope(s string) (GateScope, error) {
	switch GateScope(s) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeContext:
		return ScopeContext, nil
	default:
		return "", fmt.Errorf("invalid gate scope %q: must be global or context", s)
	}
}

// Gate is the mutual-exclusion gate around every mutating operation.
//
// Each key owns a one-slot channel semaphore so acquisition can honor
// context cancellation. Callers must release exactly once, typically with
// defer immediately after a successful Acquire.
//
// Thread-safety: Gate is safe for concurrent use.
type Gate struct {
	scope GateScope

	mu    sync.Mutex
	slots map[int64]chan struct{}

	observe func(scope GateScope, wait time.Duration)
}

// NewGate creates a gate with the given scope.
func NewGate(scope GateScope) *Gate {
	if scope == "" {
		scope = ScopeGlobal
	}
	return &Gate{
		scope: scope,
		slots: make(map[int64]chan struct{}),
	}
}

// Scope returns the gate's scope.
func (g *Gate) Scope() GateScope {
	return g.scope
}

// Acquire blocks until the gate for contextID is held or ctx is done.
// On success it returns the release function.
func (g *Gate) Acquire(ctx context.Context, contextID int64) (func(), error) {
	slot := g.slot(contextID)
	start := time.Now()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire gate: %w", ctx.Err())
	}

	if g.observe != nil {
		g.observe(g.scope, time.Since(start))
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (g *Gate) slot(contextID int64) chan struct{} {
	key := int64(0)
	if g.scope == ScopeContext {
		key = contextID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		g.slots[key] = slot
	}
	return slot
}
