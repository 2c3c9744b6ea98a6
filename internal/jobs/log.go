package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
)

// runLog is the ordered, append-only log of one run. Followers are woken by
// closing and replacing wake on every append.
type runLog struct {
	mu     sync.Mutex
	lines  []string
	wake   chan struct{}
	closed bool
}

func newRunLog() *runLog {
	return &runLog{wake: make(chan struct{})}
}

func (l *runLog) append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.lines = append(l.lines, line)
	close(l.wake)
	l.wake = make(chan struct{})
}

func (l *runLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.wake)
}

// from returns the lines from index i on, a channel closed on the next
// append, and whether the log is closed.
func (l *runLog) from(i int) ([]string, <-chan struct{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	if i < len(l.lines) {
		out = append(out, l.lines[i:]...)
	}
	return out, l.wake, l.closed
}

func (l *runLog) snapshot() []string {
	lines, _, _ := l.from(0)
	return lines
}

// follow streams every line, old and new, until the log closes or ctx ends.
func (l *runLog) follow(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		next := 0
		for {
			lines, wake, closed := l.from(next)
			for _, line := range lines {
				select {
				case ch <- line:
				case <-ctx.Done():
					return
				}
			}
			next += len(lines)
			if closed && len(lines) == 0 {
				return
			}
			if closed {
				continue
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Write appends one line per newline-terminated record written by a
// slog.TextHandler.
func (l *runLog) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		l.append(string(line))
	}
	return len(p), nil
}

// newRunLogger returns a logger writing to both the run log and base.
func newRunLogger(l *runLog, base *slog.Logger, runID string) *slog.Logger {
	text := slog.NewTextHandler(l, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	tagged := base.Handler().WithAttrs([]slog.Attr{slog.String("run_id", runID)})
	return slog.New(teeHandler{text, tagged})
}

// teeHandler sends records to every handler enabled for them.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
