package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock drives the governor without wall-clock sleeps. Sleeping advances
// the clock by the requested duration.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
	slp []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.slp = append(c.slp, d)
	c.mu.Unlock()
	return nil
}

func newTestGovernor(t *testing.T, calls, tokens int) (*Governor, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	g, err := New(calls, tokens, WithClock(clk.now, clk.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, clk
}

func TestNew_ZeroBudget(t *testing.T) {
	if _, err := New(0, 1000); !errors.Is(err, ErrZeroBudget) {
		t.Fatalf("expected ErrZeroBudget, got %v", err)
	}
	if _, err := New(10, 0); !errors.Is(err, ErrZeroBudget) {
		t.Fatalf("expected ErrZeroBudget, got %v", err)
	}
}

func TestReserve_EstimateExceedsBudget(t *testing.T) {
	g, _ := newTestGovernor(t, 5, 100)
	if _, err := g.Reserve(context.Background(), 101); err == nil {
		t.Fatal("expected error for estimate above token budget")
	}
}

func TestReserve_CallBudgetBlocksUntilWindowExpiry(t *testing.T) {
	g, clk := newTestGovernor(t, 2, 1_000_000)
	ctx := context.Background()

	start := clk.now()
	for i := 0; i < 2; i++ {
		res, err := g.Reserve(ctx, 100)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		res.Commit(100)
	}

	// Third call must wait for the first event to leave the 60s window.
	res, err := g.Reserve(ctx, 100)
	if err != nil {
		t.Fatalf("reserve 3: %v", err)
	}
	res.Commit(100)

	if elapsed := clk.now().Sub(start); elapsed < Window {
		t.Errorf("third call issued after %v, want >= %v", elapsed, Window)
	}
}

func TestReserve_TokenBudgetBlocks(t *testing.T) {
	g, clk := newTestGovernor(t, 100, 1000)
	ctx := context.Background()

	res, err := g.Reserve(ctx, 900)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res.Commit(900)

	start := clk.now()
	res2, err := g.Reserve(ctx, 200)
	if err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	res2.Commit(200)

	if elapsed := clk.now().Sub(start); elapsed < Window {
		t.Errorf("second call issued after %v, want >= %v", elapsed, Window)
	}
}

func TestReserve_SlidingLookbackFreesCapacity(t *testing.T) {
	g, clk := newTestGovernor(t, 2, 1_000_000)
	ctx := context.Background()

	if _, err := g.Reserve(ctx, 10); err != nil {
		t.Fatalf("reserve 1: %v", err)
	}
	clk.advance(61 * time.Second)
	if _, err := g.Reserve(ctx, 10); err != nil {
		t.Fatalf("reserve 2: %v", err)
	}
	// Only the second event remains in the window, so a third fits without
	// sleeping.
	if _, err := g.Reserve(ctx, 10); err != nil {
		t.Fatalf("reserve 3: %v", err)
	}
	if len(clk.slp) != 0 {
		t.Errorf("expected no sleeps, got %v", clk.slp)
	}

	calls, _ := g.Usage()
	if calls != 2 {
		t.Errorf("calls in window = %d, want 2", calls)
	}
}

func TestCommit_AdjustsTokenCharge(t *testing.T) {
	g, _ := newTestGovernor(t, 10, 1000)
	ctx := context.Background()

	res, err := g.Reserve(ctx, 800)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	res.Commit(50)

	// With only 50 actual tokens charged, a 900-token call fits immediately.
	if _, err := g.Reserve(ctx, 900); err != nil {
		t.Fatalf("reserve after commit: %v", err)
	}
	_, tokens := g.Usage()
	if tokens != 950 {
		t.Errorf("tokens in window = %d, want 950", tokens)
	}
}

func TestReserve_ContextCancelledDuringWait(t *testing.T) {
	g, _ := newTestGovernor(t, 1, 1000)
	g.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}
	ctx := context.Background()

	if _, err := g.Reserve(ctx, 10); err != nil {
		t.Fatalf("reserve 1: %v", err)
	}
	if _, err := g.Reserve(ctx, 10); err == nil {
		t.Fatal("expected error when wait is interrupted")
	}
}

func TestReserve_ConcurrentWorkersNeverExceedBudget(t *testing.T) {
	g, err := New(3, 1_000_000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Real clock, tiny window not possible (Window is fixed), so just check
	// the in-window invariant while hammering Reserve with ample budget.
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, rerr := g.Reserve(ctx, 10)
			if rerr != nil {
				t.Errorf("reserve: %v", rerr)
				return
			}
			res.Commit(10)
		}()
	}
	wg.Wait()

	calls, tokens := g.Usage()
	if calls > 3 {
		t.Errorf("calls in window = %d, want <= 3", calls)
	}
	if tokens > 30 {
		t.Errorf("tokens in window = %d, want <= 30", tokens)
	}
}
