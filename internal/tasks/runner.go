// Package tasks runs background work on a small fixed pool of workers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrQueueFull = errors.New("tasks: queue full")
	ErrStopped   = errors.New("tasks: runner stopped")
)

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options sizes a Runner. Zero values get defaults.
type Options struct {
	Workers   int
	QueueSize int
	// RatePerSecond limits how fast queued tasks are dispatched. Zero or
	// negative means unlimited.
	RatePerSecond float64
	Logger        *slog.Logger
}

// Runner dispatches submitted tasks to its workers. Tasks may be submitted
// before Start; they wait in the queue.
type Runner struct {
	workers int
	queue   chan Task
	limiter *rate.Limiter
	log     *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	succeeded atomic.Int64
	failed    atomic.Int64
}

func New(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Runner{
		workers: opts.Workers,
		queue:   make(chan Task, opts.QueueSize),
		limiter: rate.NewLimiter(limit, 1),
		log:     opts.Logger,
	}
}

// Start launches the workers. It returns ErrStopped after Stop and is a
// no-op when already started.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.stopped:
		return ErrStopped
	case r.started:
		return nil
	}
	r.started = true

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})

	var g errgroup.Group
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			r.work(ctx, i)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(r.done)
	}()
	r.log.Debug("task runner started", "workers", r.workers)
	return nil
}

func (r *Runner) work(ctx context.Context, id int) {
	for t := range r.queue {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		r.run(ctx, id, t)
	}
}

func (r *Runner) run(ctx context.Context, worker int, t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failed.Add(1)
			r.log.Error("task panicked", "task", t.Name, "worker", worker, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	if t.Run == nil {
		r.failed.Add(1)
		r.log.Warn("task has no body", "task", t.Name)
		return
	}
	if err := t.Run(ctx); err != nil {
		r.failed.Add(1)
		r.log.Warn("task failed", "task", t.Name, "worker", worker, "error", err)
		return
	}
	r.succeeded.Add(1)
}

// Submit enqueues t without blocking.
func (r *Runner) Submit(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	select {
	case r.queue <- t:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, t.Name)
	}
}

// Stop stops accepting tasks and waits for queued and running tasks to
// finish. If ctx ends first, the remaining work is cancelled and Stop
// returns ctx's error. Stop is safe to call more than once and before Start.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.queue)
	started, done, cancel := r.started, r.done, r.cancel
	r.mu.Unlock()

	if !started {
		return nil
	}
	defer cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop task runner: %w", ctx.Err())
	}
}

// Stats returns how many tasks succeeded and failed so far.
func (r *Runner) Stats() (succeeded, failed int64) {
	return r.succeeded.Load(), r.failed.Load()
}
