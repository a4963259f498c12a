package quota

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Window is the trailing interval over which call and token budgets are
// enforced.
const Window = 60 * time.Second

// ErrZeroBudget is returned when a governor is configured with a zero or
// negative budget.
var ErrZeroBudget = eris.New("quota: call and token budgets must be positive")

// event is one call in the sliding log. tokens holds the estimate from
// Reserve until Commit replaces it with the actual charge.
type event struct {
	at     time.Time
	tokens int
}

// Governor enforces a call-count budget and a token budget over a rolling
// 60-second window with an exact sliding-log lookback. One Governor is shared
// by all workers of a single engine run; it is owned by the engine instance,
// never a package-level singleton.
type Governor struct {
	mu          sync.Mutex
	callBudget  int
	tokenBudget int
	events      []*event

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock and the context-aware sleep used by
// Reserve, so the window can be driven deterministically.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Governor) {
		g.now = now
		g.sleep = sleep
	}
}

// New creates a Governor for the given per-minute budgets.
func New(callBudget, tokenBudget int, opts ...Option) (*Governor, error) {
	if callBudget <= 0 || tokenBudget <= 0 {
		return nil, ErrZeroBudget
	}
	g := &Governor{
		callBudget:  callBudget,
		tokenBudget: tokenBudget,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Reservation is a pending charge against the window, created by Reserve and
// finalized by Commit once the actual token cost is known.
type Reservation struct {
	g  *Governor
	ev *event
}

// Commit replaces the reservation's token estimate with the actual cost
// reported by the service. The call timestamp stays at the dispatch instant.
func (r *Reservation) Commit(actualTokens int) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	r.ev.tokens = actualTokens
}

// Reserve blocks until one more call with the given token estimate fits the
// current window, then records a pending event and returns its reservation.
// The wait never holds the governor lock, and the check loops after every
// sleep because other workers may have claimed the freed capacity.
func (g *Governor) Reserve(ctx context.Context, estimatedTokens int) (*Reservation, error) {
	if estimatedTokens > g.tokenBudget {
		return nil, eris.Errorf("quota: token estimate %d exceeds per-minute budget %d", estimatedTokens, g.tokenBudget)
	}

	for {
		g.mu.Lock()
		now := g.now()
		g.prune(now)

		tokens := 0
		for _, ev := range g.events {
			tokens += ev.tokens
		}

		if len(g.events) < g.callBudget && tokens+estimatedTokens <= g.tokenBudget {
			ev := &event{at: now, tokens: estimatedTokens}
			g.events = append(g.events, ev)
			g.mu.Unlock()
			return &Reservation{g: g, ev: ev}, nil
		}

		wait := g.events[0].at.Add(Window).Sub(now)
		g.mu.Unlock()

		if wait <= 0 {
			continue
		}

		zap.L().Debug("quota window full, waiting",
			zap.Duration("wait", wait),
			zap.Int("calls_in_window", len(g.events)),
			zap.Int("tokens_in_window", tokens),
		)
		if err := g.sleep(ctx, wait); err != nil {
			return nil, eris.Wrap(err, "quota: reserve interrupted")
		}
	}
}

// Usage reports the calls and tokens currently charged to the window.
func (g *Governor) Usage() (calls, tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	for _, ev := range g.events {
		tokens += ev.tokens
	}
	return len(g.events), tokens
}

// prune drops events that have aged out of the trailing window. Caller holds
// the lock. Events are appended in timestamp order, so the log stays sorted.
func (g *Governor) prune(now time.Time) {
	i := 0
	for i < len(g.events) && now.Sub(g.events[i].at) >= Window {
		i++
	}
	if i > 0 {
		g.events = append(g.events[:0], g.events[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
