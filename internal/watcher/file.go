package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches one file and invokes a callback per debounced batch of
// changes.
type FileWatcher struct {
	path   string
	opts   Options
	logger *slog.Logger
	mode   atomic.Value
}

// NewFileWatcher creates a watcher for path. A nil logger uses
// slog.Default().
func NewFileWatcher(path string, opts Options, logger *slog.Logger) *FileWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{path: path, opts: opts.WithDefaults(), logger: logger}
}

// Mode reports "fsnotify" or "polling" once Run has started.
func (w *FileWatcher) Mode() string {
	m, _ := w.mode.Load().(string)
	return m
}

// Run blocks until ctx is cancelled. onChange runs on the watcher goroutine,
// so a slow callback delays later batches rather than overlapping them.
func (w *FileWatcher) Run(ctx context.Context, onChange ChangeFunc) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.path = abs

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deb := NewDebouncer(w.opts.DebounceWindow, w.logger)
	defer deb.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-deb.Output():
				if !ok {
					return
				}
				w.logger.Info("watched_file_changed",
					slog.String("path", w.path),
					slog.Int("events", len(batch)),
					slog.String("op", batch[len(batch)-1].Operation.String()))
				onChange(ctx, batch)
			}
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(filepath.Dir(w.path))
			if err == nil {
				w.mode.Store("fsnotify")
				w.logger.Info("watcher_started", slog.String("path", w.path), slog.String("mode", "fsnotify"))
				defer fsw.Close()
				return w.runFsnotify(ctx, fsw, deb)
			}
			_ = fsw.Close()
		}
		w.logger.Warn("watcher_fsnotify_unavailable",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
	}

	w.mode.Store("polling")
	w.logger.Info("watcher_started",
		slog.String("path", w.path),
		slog.String("mode", "polling"),
		slog.Duration("interval", w.opts.PollInterval))
	return poll(ctx, w.path, w.opts.PollInterval, deb.Add, func(err error) {
		w.logger.Warn("watcher_stat_failed", slog.String("path", w.path), slog.String("error", err.Error()))
	})
}

func (w *FileWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher, deb *Debouncer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			op, ok := translate(event.Op)
			if !ok {
				continue
			}
			deb.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", slog.String("path", w.path), slog.String("error", err.Error()))
		}
	}
}

// translate maps an fsnotify op. Chmod-only events are ignored.
func translate(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove):
		return OpDelete, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		return 0, false
	}
}
