// Package throttle limits how often an owner may run the computation
// pipeline. Compute calls a metered upstream engine, so the limit is enforced
// at the orchestrator entry, never silently as a save side effect.
package throttle

import (
	"context"
	"sync"
	"time"

	id "taxfiling/pkg/domain"
)

// Limiter answers whether an owner may run another computation now.
type Limiter interface {
	Allow(ctx context.Context, owner id.UserID) (bool, error)
}

// Unlimited disables throttling (tests, dev).
type Unlimited struct{}

func (Unlimited) Allow(context.Context, id.UserID) (bool, error) { return true, nil }

// InMemory is a fixed-window counter per owner.
type InMemory struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[id.UserID]*windowCount

	// now is swappable for tests.
	now func() time.Time
}

type windowCount struct {
	windowStart time.Time
	count       int
}

// NewInMemory constructs a memory-backed limiter allowing limit computations
// per window per owner.
func NewInMemory(limit int, window time.Duration) *InMemory {
	return &InMemory{
		limit:  limit,
		window: window,
		counts: make(map[id.UserID]*windowCount),
		now:    time.Now,
	}
}

func (l *InMemory) Allow(_ context.Context, owner id.UserID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	wc, ok := l.counts[owner]
	if !ok || now.Sub(wc.windowStart) >= l.window {
		l.counts[owner] = &windowCount{windowStart: now, count: 1}
		return true, nil
	}
	if wc.count >= l.limit {
		return false, nil
	}
	wc.count++
	return true, nil
}
