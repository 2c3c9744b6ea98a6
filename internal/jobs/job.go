package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Job is one batch of work run by the Runner.
type Job interface {
	// Type returns the job type identifier.
	Type() string

	// Execute runs the job. It should respect context cancellation and
	// report progress through logger, whose records become the run's log.
	// The returned value is kept as the run's result.
	Execute(ctx context.Context, logger *slog.Logger) (any, error)
}

// Status represents the current state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Record is a point-in-time view of a run.
type Record struct {
	ID          string     `json:"id" yaml:"id"`
	JobType     string     `json:"job_type" yaml:"job_type"`
	Key         string     `json:"key" yaml:"key"`
	Status      Status     `json:"status" yaml:"status"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	Result      any        `json:"result,omitempty" yaml:"result,omitempty"`
	Log         []string   `json:"log,omitempty" yaml:"log,omitempty"`
}

// runKey is the context key for the ID of the executing run.
type runKey struct{}

// ContextWithRunID returns a new context carrying the run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey{}, id)
}

// RunIDFromContext returns the ID of the run executing with ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}
