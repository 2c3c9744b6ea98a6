package workset

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long filesystem events must be quiet before a rescan, so a
// file being copied in is read once it is complete.
const settle = 300 * time.Millisecond

// WatchOptions controls Watch.
type WatchOptions struct {
	// Interval between timer rescans. Zero disables the timer.
	Interval time.Duration
	// Notify also rescans on filesystem events.
	Notify bool
}

// Watch keeps the set in sync with its folder until ctx is done. It follows
// folder switches made with SetFolder.
func (s *Set) Watch(ctx context.Context, opts WatchOptions) error {
	var (
		watcher *fsnotify.Watcher
		events  <-chan fsnotify.Event
		errs    <-chan error
		watched string
	)
	if opts.Notify {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		watcher, events, errs = w, w.Events, w.Errors
	}

	follow := func() {
		if watcher == nil {
			return
		}
		folder := s.Folder()
		if folder == watched {
			return
		}
		if watched != "" {
			_ = watcher.Remove(watched)
			watched = ""
		}
		if folder == "" {
			return
		}
		if err := watcher.Add(folder); err != nil {
			s.logger.Warn("failed to watch folder", "folder", folder, "error", err)
			return
		}
		watched = folder
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(settle)
	debounce.Stop()
	defer debounce.Stop()

	rescan := func() {
		follow()
		if s.Folder() == "" {
			return
		}
		diff, err := s.Rescan(ctx)
		switch {
		case err == nil:
			if !diff.Empty() {
				s.logger.Info("folder changed", "added", len(diff.Added), "removed", len(diff.Removed))
			}
		case errors.Is(err, context.Canceled), errors.Is(err, ErrNoFolder):
		default:
			s.logger.Warn("rescan failed", "error", err)
		}
	}

	follow()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			rescan()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				debounce.Reset(settle)
			}
		case <-debounce.C:
			rescan()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("folder watcher error", "error", err)
		}
	}
}
