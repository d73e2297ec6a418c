package concurrency

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("system is busy")

// ConcurrencyGuard admits at most a fixed number of tasks at once and turns
// the rest away with ErrBusy instead of queueing them.
type ConcurrencyGuard struct {
	mu     sync.Mutex
	limit  int
	active int
}

// NewConcurrencyGuard returns a guard admitting limit tasks; limit < 1 is
// treated as 1.
func NewConcurrencyGuard(limit int) *ConcurrencyGuard {
	if limit < 1 {
		limit = 1
	}
	return &ConcurrencyGuard{limit: limit}
}

// TryAcquire takes a slot. The returned release func is idempotent.
func (g *ConcurrencyGuard) TryAcquire() (func(), error) {
	g.mu.Lock()
	if g.active >= g.limit {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	g.active++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.active--
			g.mu.Unlock()
		})
	}, nil
}

// Active returns the number of slots in use.
func (g *ConcurrencyGuard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Limit returns the number of slots.
func (g *ConcurrencyGuard) Limit() int {
	return g.limit
}
