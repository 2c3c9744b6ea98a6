package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// funcJob adapts a function to Job.
type funcJob func(ctx context.Context, logger *slog.Logger) (any, error)

func (f funcJob) Type() string { return "test" }

func (f funcJob) Execute(ctx context.Context, logger *slog.Logger) (any, error) {
	return f(ctx, logger)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", run.ID())
	}
}

func TestRunner_CompletesWithOrderedLogs(t *testing.T) {
	rn := NewRunner(discardLogger())
	var seenID string
	run, err := rn.Start(context.Background(), RunSpec{
		Job: funcJob(func(ctx context.Context, logger *slog.Logger) (any, error) {
			seenID = RunIDFromContext(ctx)
			for i := 1; i <= 3; i++ {
				logger.Info("processing", "n", i, "total", 3)
			}
			logger.Debug("not recorded")
			return "done", nil
		}),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var lines []string
	for line := range run.Logs() {
		lines = append(lines, line)
	}
	waitDone(t, run)

	want := []string{
		"level=INFO msg=processing n=1 total=3",
		"level=INFO msg=processing n=2 total=3",
		"level=INFO msg=processing n=3 total=3",
		"level=INFO msg=\"run completed\"",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("logs =\n%s\nwant\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
	if run.Err() != nil || run.Status() != StatusCompleted || run.Result() != "done" {
		t.Errorf("err=%v status=%s result=%v", run.Err(), run.Status(), run.Result())
	}
	if seenID != run.ID() {
		t.Errorf("run id in context = %q, want %q", seenID, run.ID())
	}

	rec := run.Record()
	if rec.StartedAt == nil || rec.CompletedAt == nil || len(rec.Log) != 4 {
		t.Errorf("record = %+v", rec)
	}

	// A late follower still gets the whole log.
	n := 0
	for range run.Follow(context.Background()) {
		n++
	}
	if n != 4 {
		t.Errorf("replayed %d lines, want 4", n)
	}
}

func TestRunner_OneRunPerKey(t *testing.T) {
	rn := NewRunner(discardLogger())
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")

	release := make(chan struct{})
	blocking := funcJob(func(ctx context.Context, _ *slog.Logger) (any, error) {
		<-release
		return nil, nil
	})
	first, err := rn.Start(context.Background(), RunSpec{Job: blocking, Key: out})
	if err != nil {
		t.Fatal(err)
	}

	// The same file through a relative path is the same key.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(wd, out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rn.Start(context.Background(), RunSpec{Job: blocking, Key: rel}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress", err)
	}
	if active, ok := rn.Active(out); !ok || active != first {
		t.Error("expected first run to be active")
	}

	other, err := rn.Start(context.Background(), RunSpec{Job: blocking, Key: filepath.Join(dir, "other.pdf")})
	if err != nil {
		t.Errorf("different key rejected: %v", err)
	}

	close(release)
	waitDone(t, first)
	waitDone(t, other)

	again, err := rn.Start(context.Background(), RunSpec{Job: blocking, Key: out})
	if err != nil {
		t.Fatalf("key not released: %v", err)
	}
	waitDone(t, again)
}

func TestRunner_Failures(t *testing.T) {
	rn := NewRunner(discardLogger())

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		run, err := rn.Start(context.Background(), RunSpec{Job: funcJob(func(context.Context, *slog.Logger) (any, error) {
			return nil, boom
		})})
		if err != nil {
			t.Fatal(err)
		}
		waitDone(t, run)
		if !errors.Is(run.Err(), boom) || run.Status() != StatusFailed {
			t.Errorf("err=%v status=%s", run.Err(), run.Status())
		}
		if rec := run.Record(); rec.Error != "boom" {
			t.Errorf("record error = %q", rec.Error)
		}
	})

	t.Run("panic", func(t *testing.T) {
		run, err := rn.Start(context.Background(), RunSpec{Job: funcJob(func(context.Context, *slog.Logger) (any, error) {
			panic("nil map")
		})})
		if err != nil {
			t.Fatal(err)
		}
		waitDone(t, run)
		if run.Err() == nil || !strings.Contains(run.Err().Error(), "panic: nil map") || run.Status() != StatusFailed {
			t.Errorf("err=%v status=%s", run.Err(), run.Status())
		}
		log := strings.Join(run.Record().Log, "\n")
		if !strings.Contains(log, "run panicked") || !strings.Contains(log, "stack=") {
			t.Errorf("log = %s", log)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		started := make(chan struct{})
		run, err := rn.Start(context.Background(), RunSpec{Job: funcJob(func(ctx context.Context, _ *slog.Logger) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})})
		if err != nil {
			t.Fatal(err)
		}
		<-started
		run.Cancel()
		waitDone(t, run)
		if run.Status() != StatusCancelled {
			t.Errorf("status = %s", run.Status())
		}
	})
}

func TestRunner_OutlivesStartContext(t *testing.T) {
	rn := NewRunner(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	proceed := make(chan struct{})
	run, err := rn.Start(ctx, RunSpec{Job: funcJob(func(ctx context.Context, _ *slog.Logger) (any, error) {
		<-proceed
		return nil, ctx.Err()
	})})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	close(proceed)
	waitDone(t, run)
	if run.Status() != StatusCompleted {
		t.Errorf("status = %s, err = %v", run.Status(), run.Err())
	}
}

func TestRunner_ListAndGet(t *testing.T) {
	rn := NewRunner(discardLogger())
	rn.history = 2
	noop := funcJob(func(context.Context, *slog.Logger) (any, error) { return nil, nil })

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := rn.Start(context.Background(), RunSpec{Job: noop})
		if err != nil {
			t.Fatal(err)
		}
		waitDone(t, run)
		ids = append(ids, run.ID())
	}

	list := rn.List()
	if len(list) != 2 || list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Errorf("List = %+v", list)
	}
	if _, err := rn.Get(ids[0]); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("pruned run: err = %v", err)
	}
	if r, err := rn.Get(ids[2]); err != nil || r.ID() != ids[2] {
		t.Errorf("Get = %v, %v", r, err)
	}
}

func TestRunner_Shutdown(t *testing.T) {
	rn := NewRunner(discardLogger())
	run, err := rn.Start(context.Background(), RunSpec{Job: funcJob(func(ctx context.Context, _ *slog.Logger) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rn.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if run.Status() != StatusCancelled {
		t.Errorf("status = %s", run.Status())
	}
}
