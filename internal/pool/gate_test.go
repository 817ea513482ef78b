package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustAcquire(t *testing.T, g *gate) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func acquireBlocked(t *testing.T, g *gate) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire over the limit = %v, want deadline exceeded", err)
	}
}

func TestGateBoundsConcurrency(t *testing.T) {
	t.Parallel()
	g := newGate(2)
	mustAcquire(t, g)
	mustAcquire(t, g)
	acquireBlocked(t, g)

	g.Release()
	mustAcquire(t, g)
}

func TestGateGrow(t *testing.T) {
	t.Parallel()
	g := newGate(1)
	mustAcquire(t, g)
	acquireBlocked(t, g)

	if err := g.Resize(context.Background(), 3); err != nil {
		t.Fatalf("Resize grow: %v", err)
	}
	mustAcquire(t, g)
	mustAcquire(t, g)
	acquireBlocked(t, g)
	if g.Limit() != 3 {
		t.Fatalf("Limit = %d, want 3", g.Limit())
	}
}

func TestGateShrinkWaitsForPermits(t *testing.T) {
	t.Parallel()
	g := newGate(2)
	mustAcquire(t, g)
	mustAcquire(t, g)

	// Both permits held: shrink must fail within its bound and leave the
	// limit unchanged.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	err := g.Resize(ctx, 1)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Resize shrink while busy = %v, want deadline exceeded", err)
	}
	if g.Limit() != 2 {
		t.Fatalf("failed shrink changed limit to %d", g.Limit())
	}

	g.Release()
	if err := g.Resize(context.Background(), 1); err != nil {
		t.Fatalf("Resize shrink after release: %v", err)
	}
	if g.Limit() != 1 {
		t.Fatalf("Limit = %d, want 1", g.Limit())
	}
	acquireBlocked(t, g)
}
