package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunInProgress is returned when a run for the same key is active.
	ErrRunInProgress = errors.New("a run for this output is already in progress")
	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")
)

// DefaultHistory is how many finished runs the Runner remembers.
const DefaultHistory = 50

// RunSpec describes a run to start.
type RunSpec struct {
	Job Job
	// Key names the resource the run writes, usually the output path.
	// Paths are made absolute; two active runs never share a key.
	Key string
}

// Run is one execution of a Job.
type Run struct {
	id      string
	jobType string
	key     string
	log     *runLog
	cancel  context.CancelFunc
	done    chan struct{}

	mu          sync.RWMutex
	status      Status
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	result      any
	err         error
}

// ID returns the run ID.
func (r *Run) ID() string { return r.id }

// Done is closed once the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the run's error once Done is closed.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Result returns the job's result once Done is closed.
func (r *Run) Result() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Status returns the current status.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Logs streams the run's log lines in order, starting from the first, and
// is closed when the run has finished and every line was delivered. The
// channel must be drained; use Follow to stop early.
func (r *Run) Logs() <-chan string {
	return r.log.follow(context.Background())
}

// Follow is Logs bounded by ctx.
func (r *Run) Follow(ctx context.Context) <-chan string {
	return r.log.follow(ctx)
}

// Cancel asks the run to stop.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Record returns a snapshot of the run including its buffered log.
func (r *Run) Record() Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := Record{
		ID:          r.id,
		JobType:     r.jobType,
		Key:         r.key,
		Status:      r.status,
		CreatedAt:   r.createdAt,
		StartedAt:   r.startedAt,
		CompletedAt: r.completedAt,
		Result:      r.result,
		Log:         r.log.snapshot(),
	}
	if r.err != nil {
		rec.Error = r.err.Error()
	}
	return rec
}

func (r *Run) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.status = s
	switch s {
	case StatusRunning:
		r.startedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		r.completedAt = &now
	}
}

// Runner executes jobs in the background, at most one per key.
type Runner struct {
	logger  *slog.Logger
	history int

	mu     sync.Mutex
	runs   []*Run // oldest first
	active map[string]*Run
	wg     sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:  logger,
		history: DefaultHistory,
		active:  make(map[string]*Run),
	}
}

// Start launches spec.Job in the background. The run outlives ctx's
// cancellation but keeps its values; use Run.Cancel to stop it.
func (rn *Runner) Start(ctx context.Context, spec RunSpec) (*Run, error) {
	if spec.Job == nil {
		return nil, fmt.Errorf("run has no job")
	}
	key := spec.Key
	if key != "" {
		abs, err := filepath.Abs(key)
		if err != nil {
			return nil, fmt.Errorf("invalid run key: %w", err)
		}
		key = abs
	}

	rn.mu.Lock()
	if key != "" {
		if cur, ok := rn.active[key]; ok {
			rn.mu.Unlock()
			return nil, fmt.Errorf("%w: %s (run %s)", ErrRunInProgress, key, cur.id)
		}
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{
		id:        uuid.NewString(),
		jobType:   spec.Job.Type(),
		key:       key,
		log:       newRunLog(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusQueued,
		createdAt: time.Now().UTC(),
	}
	if key != "" {
		rn.active[key] = run
	}
	rn.runs = append(rn.runs, run)
	rn.prune()
	rn.wg.Add(1)
	rn.mu.Unlock()

	rn.logger.Info("run started", "run_id", run.id, "type", run.jobType, "key", key)
	go rn.execute(ContextWithRunID(runCtx, run.id), run, spec.Job)
	return run, nil
}

func (rn *Runner) execute(ctx context.Context, run *Run, job Job) {
	defer rn.wg.Done()
	logger := newRunLogger(run.log, rn.logger, run.id)

	run.setStatus(StatusRunning)
	result, err := rn.safeExecute(ctx, job, logger)

	status := StatusCompleted
	switch {
	case err == nil:
		logger.Info("run completed")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		status = StatusCancelled
		logger.Warn("run cancelled")
	default:
		status = StatusFailed
		logger.Error("run failed", "error", err)
	}

	rn.mu.Lock()
	if run.key != "" && rn.active[run.key] == run {
		delete(rn.active, run.key)
	}
	rn.mu.Unlock()

	run.mu.Lock()
	run.result, run.err = result, err
	run.mu.Unlock()
	run.setStatus(status)
	run.cancel()
	run.log.close()
	close(run.done)
}

// safeExecute runs the job, turning a panic into an error.
func (rn *Runner) safeExecute(ctx context.Context, job Job, logger *slog.Logger) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Execute(ctx, logger)
}

// prune drops the oldest finished runs beyond the history limit. Callers
// hold rn.mu.
func (rn *Runner) prune() {
	excess := len(rn.runs) - rn.history
	if excess <= 0 {
		return
	}
	rn.runs = slices.DeleteFunc(rn.runs, func(r *Run) bool {
		if excess > 0 && r.Status().Terminal() {
			excess--
			return true
		}
		return false
	})
}

// Get returns the run with id.
func (rn *Runner) Get(id string) (*Run, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for _, r := range rn.runs {
		if r.id == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// List returns snapshots of the known runs, newest first, without logs.
func (rn *Runner) List() []Record {
	rn.mu.Lock()
	runs := slices.Clone(rn.runs)
	rn.mu.Unlock()

	out := make([]Record, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		rec := runs[i].Record()
		rec.Log = nil
		out = append(out, rec)
	}
	return out
}

// Active returns the active run for key, if any.
func (rn *Runner) Active(key string) (*Run, bool) {
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	r, ok := rn.active[key]
	return r, ok
}

// Shutdown cancels every active run and waits for them to finish or for
// ctx to end.
func (rn *Runner) Shutdown(ctx context.Context) error {
	rn.mu.Lock()
	for _, r := range rn.runs {
		if !r.Status().Terminal() {
			r.Cancel()
		}
	}
	rn.mu.Unlock()

	done := make(chan struct{})
	go func() {
		rn.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
