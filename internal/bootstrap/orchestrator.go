// Package bootstrap brings the application's subsystems up concurrently,
// supervises each with its own timeout and classifies the result.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jask/launchpad/internal/phase"
	"github.com/jask/launchpad/internal/progress"
)

const tracerName = "github.com/jask/launchpad/internal/bootstrap"

// ErrAlreadyBootstrapped is returned by every Bootstrap call after the first.
var ErrAlreadyBootstrapped = errors.New("bootstrap already ran")

// Options configures an Orchestrator. Zero values get defaults.
type Options struct {
	Sink        *progress.Sink
	Policy      Criticality
	FastTimeout time.Duration
	SlowTimeout time.Duration
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Metrics     *Metrics
	// OnComplete is invoked exactly once with the outcome, on the goroutine
	// that called Bootstrap. Callers marshal onto their own UI loop.
	OnComplete func(progress.Outcome)
}

// Orchestrator runs one bootstrap attempt per lifetime.
type Orchestrator struct {
	opts    Options
	runner  *phase.Runner
	log     *slog.Logger
	started atomic.Bool

	mu     sync.Mutex
	phases []*phase.Phase
}

func New(opts Options) *Orchestrator {
	if opts.Sink == nil {
		opts.Sink = progress.NewSink(progress.DefaultBuffer)
	}
	if opts.Policy == nil {
		opts.Policy = NewCriticalSet("storage")
	}
	if opts.FastTimeout <= 0 {
		opts.FastTimeout = DefaultFastTimeout
	}
	if opts.SlowTimeout <= 0 {
		opts.SlowTimeout = DefaultSlowTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:   opts,
		runner: phase.NewRunner(opts.Clock, opts.Logger),
		log:    opts.Logger,
	}
}

// Sink returns the progress sink updates are published to.
func (o *Orchestrator) Sink() *progress.Sink { return o.opts.Sink }

// Phases returns snapshots of the phases of the attempt, in spec order.
func (o *Orchestrator) Phases() []phase.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]phase.Snapshot, 0, len(o.phases))
	for _, p := range o.phases {
		out = append(out, p.Snapshot())
	}
	return out
}

// entry is the orchestrator's view of one phase in an attempt.
type entry struct {
	spec     Spec
	phase    *phase.Phase
	timeout  time.Duration
	critical bool
	// resolved is closed once the orchestrator has stopped waiting.
	resolved chan struct{}
}

// attempt holds the aggregation state shared by all supervisors.
type attempt struct {
	id      string
	entries map[string]*entry
	order   []*entry
	log     *slog.Logger

	mu       sync.Mutex
	local    map[string]float64
	finished bool
}

// Bootstrap launches every phase concurrently, waits for each up to its
// timeout and returns the classified outcome. Phase errors never escape as
// the returned error; that is reserved for ErrAlreadyBootstrapped.
func (o *Orchestrator) Bootstrap(ctx context.Context, specs []Spec) (progress.Outcome, error) {
	if !o.started.CompareAndSwap(false, true) {
		return progress.Outcome{}, ErrAlreadyBootstrapped
	}

	run := &attempt{
		id:      uuid.NewString(),
		entries: make(map[string]*entry, len(specs)),
		local:   make(map[string]float64, len(specs)),
	}
	run.log = o.log.With("attempt", run.id)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.bootstrap")
	defer span.End()
	span.SetAttributes(
		attribute.String("bootstrap.attempt", run.id),
		attribute.Int("bootstrap.phases", len(specs)),
	)

	begin := o.opts.Clock.Now()
	run.log.Info("bootstrap started", "phases", len(specs))

	if err := validate(specs); err != nil {
		run.log.Error("bootstrap plan rejected", "error", err)
		return o.finish(run, span, progress.Outcome{Kind: progress.Fatal, Cause: err}, begin), nil
	}

	for _, s := range specs {
		e := &entry{
			spec:     s,
			phase:    phase.New(s.Name),
			timeout:  o.timeoutFor(s),
			critical: o.opts.Policy.IsCritical(s.Name),
			resolved: make(chan struct{}),
		}
		run.entries[s.Name] = e
		run.order = append(run.order, e)
		run.local[s.Name] = 0
	}
	o.mu.Lock()
	for _, e := range run.order {
		o.phases = append(o.phases, e.phase)
	}
	o.mu.Unlock()

	// plain group: one phase's failure must not cancel its siblings
	var g errgroup.Group
	for _, e := range run.order {
		g.Go(func() error {
			o.supervise(ctx, run, e)
			return nil
		})
	}
	_ = g.Wait()

	return o.finish(run, span, o.decide(run), begin), nil
}

func (o *Orchestrator) timeoutFor(s Spec) time.Duration {
	switch {
	case s.Timeout > 0:
		return s.Timeout
	case s.Slow:
		return o.opts.SlowTimeout
	default:
		return o.opts.FastTimeout
	}
}

// supervise waits for the phase's dependencies, starts its work and waits
// for it up to the timeout. Timed-out work is abandoned, not cancelled.
func (o *Orchestrator) supervise(ctx context.Context, run *attempt, e *entry) {
	defer close(e.resolved)

	for _, dep := range e.spec.DependsOn {
		d := run.entries[dep]
		select {
		case <-d.resolved:
		case <-ctx.Done():
			e.phase.MarkFailed(o.opts.Clock.Now(), ctx.Err())
			o.settle(run, e)
			return
		}
		if st := d.phase.Status(); st != phase.Completed {
			e.phase.MarkFailed(o.opts.Clock.Now(), fmt.Errorf("%w: %s is %s", ErrDependencyNotMet, dep, st))
			o.settle(run, e)
			return
		}
	}

	pctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.bootstrap.phase")
	span.SetAttributes(attribute.String("phase", e.spec.Name), attribute.Bool("phase.critical", e.critical))
	defer span.End()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		o.runner.Execute(pctx, e.phase, e.spec.Work, o.reporter(run, e))
	}()

	timer := o.opts.Clock.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case <-finished:
	case <-timer.Chan():
		if e.phase.MarkTimedOut(o.opts.Clock.Now(), &TimeoutError{Phase: e.spec.Name, After: e.timeout}) {
			run.log.Warn("phase timed out, abandoning", "phase", e.spec.Name, "timeout", e.timeout, "critical", e.critical)
		}
	case <-ctx.Done():
		e.phase.MarkFailed(o.opts.Clock.Now(), fmt.Errorf("bootstrap cancelled: %w", ctx.Err()))
	}

	snap := e.phase.Snapshot()
	if snap.Status != phase.Completed {
		span.SetStatus(codes.Error, snap.Status.String())
		if snap.Err != nil {
			span.RecordError(snap.Err)
		}
	}
	o.settle(run, e)
}

// settle counts a resolved phase's share of progress as complete and
// reports the resolution.
func (o *Orchestrator) settle(run *attempt, e *entry) {
	snap := e.phase.Snapshot()
	o.opts.Metrics.observePhase(snap.Name, snap.Status.String(), snap.Elapsed.Seconds())

	if snap.Status != phase.Completed {
		level := slog.LevelWarn
		if e.critical {
			level = slog.LevelError
		}
		run.log.Log(context.Background(), level, "phase did not complete",
			"phase", snap.Name, "status", snap.Status.String(), "critical", e.critical,
			"elapsed", snap.Elapsed, "error", snap.Err)
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.finished {
		return
	}
	run.local[snap.Name] = 1
	o.opts.Sink.Publish(progress.Update{
		Fraction: run.overallLocked(),
		Message:  fmt.Sprintf("%s %s", snap.Name, snap.Status),
	})
}

// reporter scales a phase's local progress into the overall fraction.
// Updates from abandoned phases are dropped.
func (o *Orchestrator) reporter(run *attempt, e *entry) phase.Reporter {
	return func(fraction float64, message string) {
		if e.phase.Status() == phase.TimedOut {
			return
		}
		run.mu.Lock()
		defer run.mu.Unlock()
		if run.finished {
			return
		}
		if fraction > 1 {
			fraction = 1
		}
		if fraction > run.local[e.spec.Name] {
			run.local[e.spec.Name] = fraction
		}
		o.opts.Sink.Publish(progress.Update{
			Fraction: run.overallLocked(),
			Message:  e.spec.Name + ": " + message,
		})
	}
}

func (a *attempt) overallLocked() float64 {
	if len(a.local) == 0 {
		return 0
	}
	var sum float64
	for _, f := range a.local {
		sum += f
	}
	// the final 1.0 is reserved for the outcome
	overall := sum / float64(len(a.local))
	if overall > 0.99 {
		overall = 0.99
	}
	return overall
}

// decide classifies the attempt: any critical phase not Completed is Fatal,
// any other phase not Completed is Degraded.
func (o *Orchestrator) decide(run *attempt) progress.Outcome {
	var (
		fatal    error
		degraded []string
		reports  = make([]progress.PhaseReport, 0, len(run.order))
	)
	for _, e := range run.order {
		snap := e.phase.Snapshot()
		reports = append(reports, progress.PhaseReport{
			Name:     snap.Name,
			Status:   snap.Status.String(),
			Critical: e.critical,
			Elapsed:  snap.Elapsed,
			Err:      snap.Err,
		})
		if snap.Status == phase.Completed {
			continue
		}
		cause := snap.Err
		if cause == nil {
			cause = fmt.Errorf("phase %s ended %s", snap.Name, snap.Status)
		}
		if e.critical {
			if fatal == nil {
				fatal = fmt.Errorf("critical phase %s %s: %w", snap.Name, snap.Status, cause)
			}
			continue
		}
		degraded = append(degraded, fmt.Sprintf("%s %s: %v", snap.Name, snap.Status, cause))
	}

	switch {
	case fatal != nil:
		return progress.Outcome{Kind: progress.Fatal, Cause: fatal, Phases: reports}
	case len(degraded) > 0:
		return progress.Outcome{Kind: progress.Degraded, Reason: strings.Join(degraded, "; "), Phases: reports}
	default:
		return progress.Outcome{Kind: progress.Success, Phases: reports}
	}
}

func (o *Orchestrator) finish(run *attempt, span trace.Span, out progress.Outcome, begin time.Time) progress.Outcome {
	run.mu.Lock()
	run.finished = true
	run.mu.Unlock()

	out.Attempt = run.id
	elapsed := o.opts.Clock.Since(begin)
	var msg string
	switch out.Kind {
	case progress.Success:
		msg = "ready"
		span.SetStatus(codes.Ok, "")
		run.log.Info("bootstrap completed", "outcome", out.Kind.String(), "elapsed", elapsed)
	case progress.Degraded:
		msg = "ready with reduced capability"
		span.SetStatus(codes.Ok, "")
		run.log.Warn("bootstrap degraded", "reason", out.Reason, "elapsed", elapsed)
	default:
		msg = fmt.Sprintf("startup failed: %v", out.Cause)
		span.SetStatus(codes.Error, "bootstrap fatal")
		run.log.Error("bootstrap fatal", "cause", out.Cause, "elapsed", elapsed)
	}
	span.SetAttributes(attribute.String("bootstrap.outcome", out.Kind.String()))
	o.opts.Metrics.observeOutcome(out.Kind.String())

	o.opts.Sink.Finish(progress.Update{Fraction: 1, Message: msg}, out)
	if o.opts.OnComplete != nil {
		o.opts.OnComplete(out)
	}
	return out
}
