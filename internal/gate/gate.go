package gate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many items a queue may hold at once.
//
// Producers take one slot per submitted item and hold it until the item's
// result has been consumed. Waiting producers are woken in the order they
// arrived: semaphore.Weighted serves Acquire calls FIFO, so a later producer
// can never overtake an earlier one.
//
// A task may fan out into several results. The extra results are recorded as
// debt with Charge instead of acquiring, so a dispatcher is never blocked by
// its own consumers; each Release first pays debt down and only then returns
// a slot to the semaphore.
//
// A nil *Gate is an unlimited gate: every method is a no-op.
type Gate struct {
	limit int64
	sem   *semaphore.Weighted

	mu   sync.Mutex
	debt int64
}

// New returns a gate admitting at most limit items, or nil when limit <= 0.
func New(limit int) *Gate {
	if limit <= 0 {
		return nil
	}
	return &Gate{
		limit: int64(limit),
		sem:   semaphore.NewWeighted(int64(limit)),
	}
}

// Acquire takes one slot, blocking until one is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire takes one slot without blocking.
func (g *Gate) TryAcquire() bool {
	if g == nil {
		return true
	}
	return g.sem.TryAcquire(1)
}

// Charge records n items that entered the queue without a slot of their own.
func (g *Gate) Charge(n int) {
	if g == nil || n <= 0 {
		return
	}
	g.mu.Lock()
	g.debt += int64(n)
	g.mu.Unlock()
}

// Release frees one item's worth of capacity.
func (g *Gate) Release() {
	if g == nil {
		return
	}
	g.mu.Lock()
	if g.debt > 0 {
		g.debt--
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.sem.Release(1)
}

// Limit returns the configured capacity, or 0 for an unlimited gate.
func (g *Gate) Limit() int {
	if g == nil {
		return 0
	}
	return int(g.limit)
}

// Debt returns the number of charged items not yet released.
func (g *Gate) Debt() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.debt)
}
