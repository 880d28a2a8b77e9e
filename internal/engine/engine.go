// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/config"
	"github.com/xkilldash9x/scriptforge/internal/store"
)

var (
	// ErrEngineStopped is returned by Submit once Stop has been called.
	ErrEngineStopped = errors.New("execution engine stopped")
	// ErrQueueFull is returned by Submit when the run queue has no free slot.
	ErrQueueFull = errors.New("execution queue is full")
)

const (
	defaultConcurrency = 4
	defaultQueueSize   = 100
	defaultRunTimeout  = 15 * time.Minute
	persistTimeout     = 30 * time.Second
)

// RunJob is one queued script execution.
type RunJob struct {
	RunID       string
	ScriptID    string
	UserID      string
	Code        string
	Language    string
	Browser     string
	Environment string
}

// Runner executes a script. A returned error means the run could not start.
type Runner interface {
	Run(ctx context.Context, job RunJob) (*schemas.RunOutcome, error)
}

// RunStore persists run state transitions.
type RunStore interface {
	MarkRunRunning(ctx context.Context, id string) error
	CompleteRun(ctx context.Context, id string, out schemas.RunOutcome) error
}

// Engine distributes queued runs to a bounded pool of workers.
type Engine struct {
	cfg    config.EngineConfig
	logger *zap.Logger
	store  RunStore
	runner Runner
	jobs   chan RunJob
	wg     sync.WaitGroup

	baseCtx   context.Context
	cancelAll context.CancelFunc

	// mu guards started, stopped and inflight.
	mu       sync.Mutex
	started  bool
	stopped  bool
	inflight map[string]context.CancelFunc
}

// New validates the dependencies and builds an idle engine.
func New(cfg config.Interface, logger *zap.Logger, runStore RunStore, runner Runner) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if runStore == nil {
		return nil, errors.New("run store cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	ec := cfg.Engine()
	size := ec.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       ec,
		logger:    logger.Named("engine"),
		store:     runStore,
		runner:    runner,
		jobs:      make(chan RunJob, size),
		baseCtx:   ctx,
		cancelAll: cancel,
		inflight:  make(map[string]context.CancelFunc),
	}, nil
}

// Start launches the worker pool. Calling it twice is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		e.logger.Warn("Engine.Start called, but engine is already running or stopped.")
		return
	}
	e.started = true

	concurrency := e.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	e.logger.Info("Starting execution engine worker pool", zap.Int("concurrency", concurrency), zap.Int("queue_size", cap(e.jobs)))
	for i := range concurrency {
		e.wg.Add(1)
		go e.runWorker(i + 1)
	}
}

// Submit queues a run without blocking.
func (e *Engine) Submit(job RunJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	select {
	case e.jobs <- job:
		e.logger.Debug("Run queued", zap.String("run_id", job.RunID), zap.Int("queued", len(e.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel aborts an in-flight run. It reports whether the run was executing.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	cancel, ok := e.inflight[runID]
	e.mu.Unlock()
	if ok {
		e.logger.Info("Cancelling run", zap.String("run_id", runID))
		cancel()
	}
	return ok
}

// Stop rejects new submissions, cancels in-flight runs and waits for the workers.
// Runs still queued are recorded as cancelled.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	started := e.started
	close(e.jobs)
	e.mu.Unlock()

	e.logger.Info("Stopping execution engine... waiting for workers to finish.")
	e.cancelAll()
	if !started {
		for job := range e.jobs {
			e.abandon(job)
		}
	}
	e.wg.Wait()
	e.logger.Info("Execution engine stopped gracefully.")
}

func (e *Engine) runWorker(workerID int) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")
	for job := range e.jobs {
		if e.baseCtx.Err() != nil {
			e.abandon(job)
			continue
		}
		e.process(job, logger)
	}
	logger.Debug("Run queue closed and drained, worker shutting down.")
}

func (e *Engine) abandon(job RunJob) {
	e.persist(job.RunID, schemas.RunOutcome{Status: schemas.RunCancelled, ErrorMsg: ErrEngineStopped.Error()}, e.logger)
}

func (e *Engine) process(job RunJob, logger *zap.Logger) {
	logger = logger.With(zap.String("run_id", job.RunID), zap.String("script_id", job.ScriptID))

	timeout := e.cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(e.baseCtx, timeout)
	defer cancel()

	e.mu.Lock()
	e.inflight[job.RunID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, job.RunID)
		e.mu.Unlock()
	}()

	if err := e.store.MarkRunRunning(runCtx, job.RunID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("Run is no longer queued, skipping")
			return
		}
		logger.Error("Failed to mark run as running", zap.Error(err))
		return
	}

	logger.Info("Executing run", zap.String("browser", job.Browser), zap.String("environment", job.Environment))
	start := time.Now()
	outcome, err := e.runner.Run(runCtx, job)
	elapsed := time.Since(start)

	var out schemas.RunOutcome
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out = schemas.RunOutcome{Status: schemas.RunError, ErrorMsg: fmt.Sprintf("Test run timed out after %s", timeout)}
	case runCtx.Err() != nil:
		out = schemas.RunOutcome{Status: schemas.RunCancelled, ErrorMsg: "Test run cancelled"}
	case err != nil:
		out = schemas.RunOutcome{Status: schemas.RunError, ErrorMsg: err.Error()}
	case outcome == nil:
		out = schemas.RunOutcome{Status: schemas.RunError, ErrorMsg: "runner returned no outcome"}
	default:
		out = *outcome
	}
	if outcome != nil && out.Steps == nil {
		out.Steps = outcome.Steps
	}
	if out.Duration <= 0 {
		out.Duration = elapsed
	}
	e.persist(job.RunID, out, logger)
}

// persist writes the final status on a detached context so shutdown does not lose it.
func (e *Engine) persist(runID string, out schemas.RunOutcome, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.baseCtx), persistTimeout)
	defer cancel()

	err := e.store.CompleteRun(ctx, runID, out)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Debug("Run already finished, discarding late result", zap.String("run_id", runID), zap.String("status", string(out.Status)))
	case err != nil:
		logger.Error("Failed to persist run outcome", zap.String("run_id", runID), zap.Error(err))
	default:
		logger.Info("Run finished", zap.String("run_id", runID), zap.String("status", string(out.Status)), zap.Duration("duration", out.Duration))
	}
}
