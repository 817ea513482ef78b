package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// MaxWorkersCap bounds any pool's max workers. The gate's semaphore is born
// at this capacity with the unused share pre-held, which makes resizing
// symmetric: growing releases permits, shrinking acquires them.
const MaxWorkersCap = 1024

// gate is the pool's admission semaphore: at most `limit` tasks from the
// pool run concurrently.
type gate struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	limit int
}

func newGate(limit int) *gate {
	g := &gate{sem: semaphore.NewWeighted(MaxWorkersCap), limit: limit}
	// Fresh semaphore, no contention: this cannot block.
	_ = g.sem.Acquire(context.Background(), int64(MaxWorkersCap-limit))
	return g
}

// Acquire blocks until a permit is available or ctx fires.
func (g *gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *gate) Release() {
	g.sem.Release(1)
}

// Resize adjusts the concurrency limit. Growing releases the delta
// immediately; shrinking acquires the delta, blocking until running tasks
// release permits or ctx fires. On a failed shrink the previous limit stays
// in force.
func (g *gate) Resize(ctx context.Context, newLimit int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delta := newLimit - g.limit
	switch {
	case delta > 0:
		g.sem.Release(int64(delta))
	case delta < 0:
		if err := g.sem.Acquire(ctx, int64(-delta)); err != nil {
			return err
		}
	}
	g.limit = newLimit
	return nil
}

func (g *gate) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}
