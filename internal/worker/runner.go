package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when a task is submitted after Shutdown.
var ErrStopped = errors.New("worker: runner stopped")

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Runner executes background and delayed tasks detached from the request
// that submitted them. Tasks run with the runner's context, which is
// cancelled once Shutdown gives up waiting.
type Runner struct {
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	waiting map[*Handle]struct{}
	nextID  uint64
}

// Handle controls a delayed task.
type Handle struct {
	id     uint64
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the task if it has not fired yet and cancels its context otherwise.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the task has run or was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// NewRunner creates a runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		waiting: make(map[*Handle]struct{}),
	}
}

// Go runs task in the background.
func (r *Runner) Go(name string, task Task) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.run(r.ctx, name, task)
	}()
	return nil
}

// After runs task once delay has elapsed unless it is cancelled first.
func (r *Runner) After(name string, delay time.Duration, task Task) (*Handle, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrStopped
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.nextID++
	h := &Handle{id: r.nextID, name: name, cancel: cancel, done: make(chan struct{})}
	r.waiting[h] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(h.done)
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			r.forget(h)
			r.logger.Debug("delayed task cancelled", zap.String("task", name))
			return
		case <-timer.C:
		}
		r.forget(h)
		r.run(ctx, name, task)
	}()
	return h, nil
}

// Pending returns the number of delayed tasks that have not fired.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiting)
}

// Shutdown rejects new tasks, cancels delayed tasks that have not fired and
// waits for running tasks until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	for h := range r.waiting {
		h.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

func (r *Runner) forget(h *Handle) {
	r.mu.Lock()
	delete(r.waiting, h)
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, name string, task Task) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("background task panicked",
				zap.String("task", name),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := task(ctx); err != nil {
		r.logger.Warn("background task failed",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("background task finished",
		zap.String("task", name),
		zap.Duration("elapsed", time.Since(start)),
	)
}
