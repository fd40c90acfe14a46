package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGate_Unlimited(t *testing.T) {
	g := New(0)
	if g != nil {
		t.Fatal("expected nil gate for non-positive limit")
	}

	for range 100 {
		if err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("unlimited acquire failed: %v", err)
		}
	}
	if !g.TryAcquire() {
		t.Error("unlimited TryAcquire should succeed")
	}
	g.Charge(3)
	g.Release()
	if g.Limit() != 0 || g.Debt() != 0 {
		t.Errorf("expected zero limit and debt, got %d/%d", g.Limit(), g.Debt())
	}
}

func TestGate_Blocks(t *testing.T) {
	t.Run("acquire blocks at limit", func(t *testing.T) {
		g := New(2)
		ctx := context.Background()
		_ = g.Acquire(ctx)
		_ = g.Acquire(ctx)

		acquired := make(chan struct{})
		go func() {
			_ = g.Acquire(ctx)
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("third acquire should block")
		case <-time.After(50 * time.Millisecond):
		}

		g.Release()

		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("release did not unblock waiter")
		}
	})

	t.Run("context cancels wait", func(t *testing.T) {
		g := New(1)
		_ = g.Acquire(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := g.Acquire(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}

		// The cancelled waiter must not hold a slot.
		g.Release()
		if !g.TryAcquire() {
			t.Error("slot should be free after cancelled waiter and release")
		}
	})
}

func TestGate_ChargeIsPaidBeforeRelease(t *testing.T) {
	g := New(1)
	_ = g.Acquire(context.Background())
	g.Charge(2)

	if g.Debt() != 2 {
		t.Fatalf("expected debt 2, got %d", g.Debt())
	}

	g.Release()
	g.Release()
	if g.TryAcquire() {
		t.Fatal("slot must stay taken while debt is being paid")
	}

	g.Release()
	if !g.TryAcquire() {
		t.Error("slot should be free once debt and the original item are released")
	}
}

func TestGate_FairWakeOrder(t *testing.T) {
	const waiters = 5
	g := New(1)
	_ = g.Acquire(context.Background())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
		// Give each waiter time to park before the next one arrives.
		time.Sleep(15 * time.Millisecond)
	}

	for range waiters {
		g.Release()
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != waiters {
		t.Fatalf("expected %d wakeups, got %d", waiters, len(order))
	}
	for i, id := range order {
		if id != i {
			t.Fatalf("expected FIFO wake order, got %v", order)
		}
	}
}
