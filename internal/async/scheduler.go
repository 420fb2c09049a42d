// Package async runs best-effort background work (persisting catalogs,
// writing cache entries, syncing rate counters) without blocking or failing
// the request that scheduled it.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of background work. The context carries the task timeout.
type Task func(ctx context.Context) error

// Config configures a Scheduler.
type Config struct {
	// TaskTimeout bounds each task. Zero means no timeout.
	TaskTimeout time.Duration

	// MaxConcurrent caps in-flight tasks. Tasks scheduled past the cap are
	// dropped. Zero means unlimited.
	MaxConcurrent int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TaskTimeout: 10 * time.Second, MaxConcurrent: 64}
}

// Scheduler runs tasks on their own goroutines, detached from the caller's
// context. Failures and panics are logged and counted, never returned.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
	group  errgroup.Group

	// base outlives every request; Close cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	idle   *sync.Cond
	closed bool
	stats  Stats
}

// New creates a Scheduler. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cfg: cfg, logger: logger, base: base, cancel: cancel}
	s.idle = sync.NewCond(&s.mu)
	if cfg.MaxConcurrent > 0 {
		s.group.SetLimit(cfg.MaxConcurrent)
	}
	return s
}

// Schedule starts task in the background and returns immediately. It
// reports false when the task was not started because the scheduler is
// closed or at capacity.
func (s *Scheduler) Schedule(label string, task Task) bool {
	return s.schedule(label, task, false)
}

// ScheduleReserved is Schedule for tasks that must not be lost to a burst of
// routine work, such as persisting a freshly built catalog. It ignores
// MaxConcurrent and is refused only by a closed scheduler.
func (s *Scheduler) ScheduleReserved(label string, task Task) bool {
	return s.schedule(label, task, true)
}

func (s *Scheduler) schedule(label string, task Task, reserved bool) bool {
	s.mu.Lock()
	if s.closed {
		s.stats.Dropped++
		s.mu.Unlock()
		return false
	}
	s.stats.Scheduled++
	s.stats.Running++
	s.mu.Unlock()

	if reserved {
		go s.run(label, task)
		return true
	}

	started := s.group.TryGo(func() error {
		s.run(label, task)
		return nil
	})
	if !started {
		s.mu.Lock()
		s.stats.Scheduled--
		s.stats.Running--
		s.stats.Dropped++
		s.signalIdleLocked()
		s.mu.Unlock()
		s.logger.Warn("async_task_dropped", slog.String("task", label))
	}
	return started
}

func (s *Scheduler) run(label string, task Task) {
	ctx := s.base
	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.safeRun(ctx, label, task)

	s.mu.Lock()
	s.stats.Running--
	if err != nil {
		s.stats.Failed++
	} else {
		s.stats.Completed++
	}
	s.signalIdleLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("async_task_failed",
			slog.String("task", label),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("async_task_done",
		slog.String("task", label),
		slog.Duration("elapsed", time.Since(start)))
}

func (s *Scheduler) safeRun(ctx context.Context, label string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.stats.Panicked++
			s.mu.Unlock()
			s.logger.Error("async_task_panic",
				slog.String("task", label),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("task %s panicked: %v", label, r)
		}
	}()
	return task(ctx)
}

// Wait blocks until no task is in flight, including tasks scheduled by
// other tasks while waiting.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.stats.Running > 0 {
		s.idle.Wait()
	}
}

func (s *Scheduler) signalIdleLocked() {
	if s.stats.Running == 0 {
		s.idle.Broadcast()
	}
}

// Close stops accepting tasks, waits for in-flight ones up to ctx, then
// cancels whatever is still running.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns a snapshot of task counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
