package enhance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gastroline/catalog-cli/internal/dataset"
	"github.com/gastroline/catalog-cli/internal/model"
	"github.com/gastroline/catalog-cli/internal/quota"
	"github.com/gastroline/catalog-cli/internal/resilience"
)

// Config holds the tunables of an enhancement run.
type Config struct {
	BatchSize            int
	MaxWorkers           int
	CallBudgetPerMinute  int
	TokenBudgetPerMinute int
	MaxRetryAttempts     int
	FuzzyMatchThreshold  float64
	Cooldown             time.Duration
	BackoffBase          time.Duration

	// QuotaOptions are passed through to the quota governor. Leave nil for
	// the real wall clock; tests inject a fake one here.
	QuotaOptions []quota.Option
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.CallBudgetPerMinute <= 0 {
		c.CallBudgetPerMinute = 15
	}
	if c.TokenBudgetPerMinute <= 0 {
		c.TokenBudgetPerMinute = 250_000
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.FuzzyMatchThreshold <= 0 {
		c.FuzzyMatchThreshold = 85
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	return c
}

// CheckpointWriter persists a snapshot of the dataset after each reconciled
// batch.
type CheckpointWriter interface {
	Write(snap *dataset.Table) error
}

// ProgressFunc receives a progress event after every completed batch.
type ProgressFunc func(model.RunProgress)

// Engine drives one enhancement run: it batches eligible records, dispatches
// them to the service under the quota governor, reconciles results back onto
// the dataset, and checkpoints after every batch.
type Engine struct {
	cfg      Config
	svc      Service
	gov      *quota.Governor
	rec      *Reconciler
	ckpt     CheckpointWriter
	progress ProgressFunc
}

// New creates an Engine. ckpt and progress may be nil.
func New(svc Service, ckpt CheckpointWriter, progress ProgressFunc, cfg Config) (*Engine, error) {
	if svc == nil {
		return nil, eris.New("enhance: service is required")
	}
	cfg = cfg.withDefaults()

	gov, err := quota.New(cfg.CallBudgetPerMinute, cfg.TokenBudgetPerMinute, cfg.QuotaOptions...)
	if err != nil {
		return nil, eris.Wrap(err, "enhance: configure quota governor")
	}

	return &Engine{
		cfg:      cfg,
		svc:      svc,
		gov:      gov,
		rec:      NewReconciler(cfg.FuzzyMatchThreshold),
		ckpt:     ckpt,
		progress: progress,
	}, nil
}

// runState accumulates per-run counters under its own mutex so progress
// events are emitted in a consistent, monotonic order.
type runState struct {
	mu        sync.Mutex
	runID     string
	total     int
	processed int
	failed    int
	failedIDs []string
	tokens    int
	batches   int
}

// Run enhances every eligible record of the dataset. The table is mutated in
// place. Cancelling ctx stops dispatching new batches; batches already in
// flight run to completion and are reconciled and checkpointed normally.
func (e *Engine) Run(ctx context.Context, t *dataset.Table, s *dataset.Schema) (*model.RunSummary, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := zap.L().With(zap.String("run_id", runID))

	eligible := dataset.Eligible(t, s)
	batches := BuildBatches(t, s, eligible, e.cfg.BatchSize)

	log.Info("enhancement run starting",
		zap.Int("eligible", len(eligible)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", e.cfg.BatchSize),
		zap.Int("workers", e.cfg.MaxWorkers),
	)

	summary := &model.RunSummary{
		RunID:         runID,
		TotalEligible: len(eligible),
	}
	if len(batches) == 0 {
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	// In-flight batches finish even when the run context is cancelled; the
	// dispatch loop is the only place cancellation is observed.
	workCtx := context.WithoutCancel(ctx)

	var tableMu sync.Mutex
	state := &runState{runID: runID, total: len(eligible)}

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.MaxWorkers)

	for _, b := range batches {
		if ctx.Err() != nil {
			log.Info("run cancelled, no further batches dispatched",
				zap.Int("next_batch", b.Seq))
			break
		}
		b := b
		g.Go(func() error {
			e.processBatch(ctx, workCtx, log, t, s, b, &tableMu, state)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "enhance: run batches")
	}

	state.mu.Lock()
	summary.Processed = state.processed
	summary.Failed = state.failed
	summary.FailedIdentifiers = state.failedIDs
	summary.Batches = state.batches
	summary.TokensUsed = state.tokens
	state.mu.Unlock()
	summary.Elapsed = time.Since(start)

	log.Info("enhancement run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("batches", summary.Batches),
		zap.Int("tokens_used", summary.TokensUsed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// processBatch runs one batch end to end. retryCtx governs quota waits and
// retry sleeps so cancellation cuts them short; callCtx keeps the API call
// itself alive past cancellation.
func (e *Engine) processBatch(retryCtx, callCtx context.Context, log *zap.Logger, t *dataset.Table, s *dataset.Schema, b model.Batch, tableMu *sync.Mutex, state *runState) {
	blog := log.With(zap.Int("batch", b.Seq), zap.String("profile", string(b.Profile)))

	retryCfg := resilience.RetryConfig{
		MaxAttempts: e.cfg.MaxRetryAttempts,
		BackoffBase: e.cfg.BackoffBase,
		Cooldown:    e.cfg.Cooldown,
		OnRetry:     resilience.RetryLogger("anthropic", "enhance"),
	}

	est := e.svc.EstimateTokens(b.Items, b.Profile)

	enh, err := resilience.DoVal(retryCtx, retryCfg, func(ctx context.Context) (*Enhancement, error) {
		rsv, err := e.gov.Reserve(ctx, est)
		if err != nil {
			return nil, err
		}
		enh, err := e.svc.Enhance(callCtx, b.Items, b.Profile)
		if err != nil {
			// The failed call still spent quota; the estimate stands as
			// its charge.
			return nil, err
		}
		rsv.Commit(enh.TokensUsed)
		return enh, nil
	})
	if err != nil {
		blog.Error("batch abandoned", zap.Int("records", len(b.Scope)), zap.Error(err))
		e.recordAbandoned(blog, t, s, b, tableMu, state)
		return
	}

	tableMu.Lock()
	out := e.rec.Reconcile(t, s, b, enh.Results)
	now := time.Now()
	for _, m := range out.Matches {
		ApplyResult(t, s, m.Row, m.Result, now)
	}
	var snap *dataset.Table
	if e.ckpt != nil {
		snap = t.Clone()
	}
	tableMu.Unlock()

	if snap != nil {
		// A checkpoint failure costs resumability, not correctness; the
		// run continues on the in-memory dataset.
		if err := e.ckpt.Write(snap); err != nil {
			blog.Warn("checkpoint write failed", zap.Error(err))
		}
	}

	var unmatchedIDs []string
	for _, row := range out.UnmatchedRows {
		unmatchedIDs = append(unmatchedIDs, strings.TrimSpace(t.Cell(row, s.Identifier)))
	}
	if len(unmatchedIDs) > 0 {
		blog.Warn("records left unprocessed after reconciliation",
			zap.Strings("identifiers", unmatchedIDs))
	}

	state.mu.Lock()
	state.processed += len(out.Matches)
	state.failed += len(out.UnmatchedRows)
	state.failedIDs = append(state.failedIDs, unmatchedIDs...)
	state.tokens += enh.TokensUsed
	state.batches++
	e.emitProgress(state, b.Seq, model.OutcomeReconciled)
	state.mu.Unlock()

	blog.Info("batch reconciled",
		zap.Int("matched", len(out.Matches)),
		zap.Int("unmatched", len(out.UnmatchedRows)),
		zap.Int("tokens", enh.TokensUsed),
	)
}

// recordAbandoned accounts an abandoned batch. No row is marked processed and
// nothing is written to the dataset; the records stay eligible for a future
// run. A checkpoint is still taken so a resume after a crash carries the
// latest state of every other batch.
func (e *Engine) recordAbandoned(log *zap.Logger, t *dataset.Table, s *dataset.Schema, b model.Batch, tableMu *sync.Mutex, state *runState) {
	tableMu.Lock()
	ids := make([]string, 0, len(b.Scope))
	for _, row := range b.Scope {
		ids = append(ids, strings.TrimSpace(t.Cell(row, s.Identifier)))
	}
	var snap *dataset.Table
	if e.ckpt != nil {
		snap = t.Clone()
	}
	tableMu.Unlock()

	if snap != nil {
		if err := e.ckpt.Write(snap); err != nil {
			log.Warn("checkpoint write failed", zap.Error(err))
		}
	}

	state.mu.Lock()
	state.failed += len(b.Scope)
	state.failedIDs = append(state.failedIDs, ids...)
	state.batches++
	e.emitProgress(state, b.Seq, model.OutcomeAbandoned)
	state.mu.Unlock()
}

// emitProgress is called with state.mu held.
func (e *Engine) emitProgress(state *runState, seq int, outcome model.BatchOutcome) {
	if e.progress == nil {
		return
	}
	e.progress(model.RunProgress{
		RunID:            state.runID,
		ProcessedSoFar:   state.processed,
		TotalEligible:    state.total,
		LastBatchSeq:     seq,
		LastBatchOutcome: outcome,
	})
}
