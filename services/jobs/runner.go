package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Outcome is the success result of a job body.
type Outcome struct {
	Records int
}

// Body is a job's business logic. The wrapper owns every ledger write; a
// body just returns its outcome or an error.
type Body func(ctx context.Context) (Outcome, error)

// Summary statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusLockBusy  = "lock_busy"
)

// Summary reports what one firing did. Manual triggers return it to the
// caller; scheduled firings just log it.
type Summary struct {
	Job     Kind   `json:"job"`
	Status  string `json:"status"`
	RunID   uint   `json:"run_id,omitempty"`
	Records int    `json:"records_processed"`
	Error   string `json:"error,omitempty"`
}

// Runner wraps every job execution: lock, ledger bookkeeping, panic
// containment, history pruning and chain triggering. Scheduling and business
// logic stay decoupled on either side of it.
type Runner struct {
	ledger   *Ledger
	locker   Locker
	logger   *zap.Logger
	keepRuns int
	bodies   map[Kind]Body
	nextRun  func(Kind) *time.Time
}

// NewRunner creates a new job runner
func NewRunner(ledger *Ledger, locker Locker, keepRuns int, logger *zap.Logger) *Runner {
	if keepRuns <= 0 {
		keepRuns = 5
	}
	return &Runner{
		ledger:   ledger,
		locker:   locker,
		logger:   logger,
		keepRuns: keepRuns,
		bodies:   make(map[Kind]Body),
	}
}

// Register binds a body to a job kind. The kind set is closed; registering
// an unknown kind panics at wiring time.
func (r *Runner) Register(kind Kind, body Body) {
	if !Valid(kind) {
		panic(fmt.Sprintf("register: %v: %s", ErrUnknownJob, kind))
	}
	r.bodies[kind] = body
}

// SetNextRunFunc lets the scheduler report each job's next firing time so
// the ledger can record it. Optional.
func (r *Runner) SetNextRunFunc(fn func(Kind) *time.Time) {
	r.nextRun = fn
}

// Run executes one job through the full wrapper: try-acquire the advisory
// lock, open a ledger record, run the body, close the record, prune history,
// then trigger the chain successor on success. The lock is released last, by
// defer, so neither an error nor a panic in the body can leak it. A busy
// lock is a normal skip, not a failure, and writes no ledger row.
func (r *Runner) Run(ctx context.Context, kind Kind) Summary {
	log := r.logger.With(zap.String("job", string(kind)))

	body, ok := r.bodies[kind]
	if !ok {
		log.Error("no body registered")
		return Summary{Job: kind, Status: StatusFailed, Error: ErrUnknownJob.Error()}
	}

	acquired, err := r.locker.TryAcquire(ctx, kind)
	if err != nil {
		log.Error("lock acquisition failed", zap.Error(err))
		return Summary{Job: kind, Status: StatusFailed, Error: err.Error()}
	}
	if !acquired {
		log.Info("lock busy, skipping this firing")
		return Summary{Job: kind, Status: StatusLockBusy}
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), kind); err != nil {
			log.Error("lock release failed", zap.Error(err))
		}
	}()

	var nextRunAt *time.Time
	if r.nextRun != nil {
		nextRunAt = r.nextRun(kind)
	}
	runID, err := r.ledger.Begin(kind, nextRunAt)
	if err != nil {
		log.Error("could not open run record", zap.Error(err))
		return Summary{Job: kind, Status: StatusFailed, Error: err.Error()}
	}

	started := time.Now()
	summary := r.execute(ctx, log, kind, runID, body)
	log.Info("job finished",
		zap.String("status", summary.Status),
		zap.Int("records", summary.Records),
		zap.Duration("took", time.Since(started)))

	if err := r.ledger.PruneHistory(kind, r.keepRuns); err != nil {
		log.Warn("history prune failed", zap.Error(err))
	}

	// Chain only after a durable complete; a failed predecessor halts the
	// chain silently. The successor shares no state and records its own
	// outcome independently.
	if summary.Status == StatusCompleted {
		if next, ok := Successor(kind); ok {
			log.Info("triggering chain successor", zap.String("next", string(next)))
			r.Run(ctx, next)
		}
	}
	return summary
}

// execute runs the body with panic containment and converts its outcome
// into exactly one terminal ledger write.
func (r *Runner) execute(ctx context.Context, log *zap.Logger, kind Kind, runID uint, body Body) (summary Summary) {
	summary = Summary{Job: kind, RunID: runID}

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			log.Error("job panicked", zap.Any("panic", rec))
			if err := r.ledger.Fail(runID, msg); err != nil {
				log.Error("could not record panic", zap.Error(err))
			}
			summary.Status = StatusFailed
			summary.Error = msg
		}
	}()

	out, err := body(ctx)
	if err != nil {
		log.Error("job body failed", zap.Error(err))
		if ferr := r.ledger.Fail(runID, err.Error()); ferr != nil {
			log.Error("could not record failure", zap.Error(ferr))
		}
		summary.Status = StatusFailed
		summary.Error = err.Error()
		return summary
	}

	if err := r.ledger.Complete(runID, out.Records); err != nil {
		log.Error("could not record completion", zap.Error(err))
		summary.Status = StatusFailed
		summary.Error = err.Error()
		return summary
	}
	summary.Status = StatusCompleted
	summary.Records = out.Records
	return summary
}
