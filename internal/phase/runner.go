package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jonboulle/clockwork"
)

// ErrPhaseInternalFailure marks errors raised by a phase's own work.
var ErrPhaseInternalFailure = errors.New("phase internal failure")

// InternalError carries the cause of a failed phase.
type InternalError struct {
	Phase string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Cause)
}

func (e *InternalError) Unwrap() []error {
	return []error{ErrPhaseInternalFailure, e.Cause}
}

// Reporter receives progress local to one phase: fraction in [0,1] of that
// phase's own work plus a human-readable message.
type Reporter func(fraction float64, message string)

// Work is the body of a phase. It reports progress through report and
// returns nil on success.
type Work func(ctx context.Context, report Reporter) error

// Runner executes phases. The zero value is not usable; use NewRunner.
type Runner struct {
	clock clockwork.Clock
	log   *slog.Logger
}

func NewRunner(clock clockwork.Clock, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{clock: clock, log: logger}
}

// Run creates a phase named name and executes work for it.
func (r *Runner) Run(ctx context.Context, name string, work Work, report Reporter) *Phase {
	p := New(name)
	r.Execute(ctx, p, work, report)
	return p
}

// Execute runs work for p and resolves p as Completed or Failed. Errors and
// panics are retained on p and never returned. A start update is always
// emitted, even if work reports nothing.
func (r *Runner) Execute(ctx context.Context, p *Phase, work Work, report Reporter) {
	if report == nil {
		report = func(float64, string) {}
	}
	if !p.begin(r.clock.Now()) {
		// already resolved, e.g. timed out before it was scheduled
		return
	}
	report(0, "starting "+p.Name())

	err := r.invoke(ctx, p.Name(), work, report)

	end := r.clock.Now()
	if err != nil {
		ierr := &InternalError{Phase: p.Name(), Cause: err}
		if p.resolve(end, Failed, ierr) {
			r.log.Warn("phase failed", "phase", p.Name(), "elapsed", p.Elapsed(), "error", err)
		} else {
			r.log.Info("abandoned phase failed late", "phase", p.Name(), "error", err)
		}
		return
	}
	if p.resolve(end, Completed, nil) {
		report(1, p.Name()+" ready")
		r.log.Debug("phase completed", "phase", p.Name(), "elapsed", p.Elapsed())
		return
	}
	r.log.Info("abandoned phase completed late", "phase", p.Name(), "status", p.Status())
}

func (r *Runner) invoke(ctx context.Context, name string, work Work, report Reporter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("phase panicked", "phase", name, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if work == nil {
		return errors.New("no work defined")
	}
	return work(ctx, report)
}
