// Package shell wires the process-wide collaborators together and drives
// startup and shutdown.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jask/launchpad/internal/bootstrap"
	"github.com/jask/launchpad/internal/cache"
	"github.com/jask/launchpad/internal/config"
	"github.com/jask/launchpad/internal/database"
	"github.com/jask/launchpad/internal/database/repository"
	"github.com/jask/launchpad/internal/lifecycle"
	"github.com/jask/launchpad/internal/phase"
	"github.com/jask/launchpad/internal/progress"
	"github.com/jask/launchpad/internal/tasks"
	"github.com/jask/launchpad/internal/theme"
)

// ErrAlreadyStarted is returned by every Start call after the first.
var ErrAlreadyStarted = errors.New("shell already started")

// Options builds an App. Config is required; everything else has defaults.
type Options struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry prometheus.Registerer
	Clock    clockwork.Clock
}

// App owns the storage pool, cache, task runner and themes for the lifetime
// of the process.
type App struct {
	cfg config.Config
	log *slog.Logger

	pool     *database.Pool
	cache    *cache.Store
	tasks    *tasks.Runner
	themes   *theme.Manager
	sink     *progress.Sink
	orch     *bootstrap.Orchestrator
	shutdown *lifecycle.Manager

	// fills the cache at the end of the cache phase
	loadCache func(map[string]string) error

	started atomic.Bool
	done    chan struct{}

	mu      sync.Mutex
	outcome progress.Outcome
	schema  string
}

func New(opts Options) (*App, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := cache.New(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	a := &App{
		cfg:   cfg,
		log:   logger,
		pool:  database.NewPool(cfg.Database.Path, cfg.Database.OpenRetry, logger.With("component", "storage")),
		cache: store,
		tasks: tasks.New(tasks.Options{
			Workers:       cfg.Tasks.Workers,
			QueueSize:     cfg.Tasks.QueueSize,
			RatePerSecond: cfg.Tasks.RatePerS,
			Logger:        logger.With("component", "tasks"),
		}),
		themes:   theme.NewManager(cfg.Theme.Dir, cfg.Theme.Name, logger.With("component", "theme")),
		sink:     progress.NewSink(cfg.Bootstrap.ProgressBuffer),
		shutdown: lifecycle.New(cfg.Bootstrap.ShutdownGrace, logger.With("component", "lifecycle")),
		done:     make(chan struct{}),
	}
	a.loadCache = a.cache.Load

	var metrics *bootstrap.Metrics
	if opts.Registry != nil {
		metrics = bootstrap.NewMetrics(opts.Registry)
	}
	a.orch = bootstrap.New(bootstrap.Options{
		Sink:        a.sink,
		Policy:      bootstrap.NewCriticalSet(cfg.Bootstrap.Critical...),
		FastTimeout: cfg.Bootstrap.FastTimeout,
		SlowTimeout: cfg.Bootstrap.SlowTimeout,
		Clock:       opts.Clock,
		Logger:      logger.With("component", "bootstrap"),
		Metrics:     metrics,
	})

	// hooks run in reverse: cache, then tasks, then storage
	a.shutdown.Register("storage", a.pool.Close)
	a.shutdown.Register("tasks", a.tasks.Stop)
	a.shutdown.Register("cache", lifecycle.Closer(a.cache))
	return a, nil
}

// Phases returns the startup plan.
func (a *App) Phases() []bootstrap.Spec {
	specs := []bootstrap.Spec{
		{Name: "storage", Work: a.startStorage, Slow: true},
		{Name: "cache", Work: a.preloadCache, DependsOn: []string{"storage"}},
		{Name: "tasks", Work: a.startTasks},
		{Name: "theme", Work: a.preloadTheme},
	}
	for i := range specs {
		specs[i].Timeout = a.cfg.Bootstrap.TimeoutFor(specs[i].Name)
	}
	return specs
}

// Start runs the bootstrap in the background. onComplete, if set, receives
// the outcome exactly once from that background goroutine.
func (a *App) Start(ctx context.Context, onComplete func(progress.Outcome)) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(a.done)
		out, err := a.orch.Bootstrap(ctx, a.Phases())
		if err != nil {
			// only possible if the orchestrator was driven elsewhere
			a.log.Error("bootstrap did not run", "error", err)
			out = progress.Outcome{Kind: progress.Fatal, Cause: err}
		}
		a.mu.Lock()
		a.outcome = out
		a.mu.Unlock()
		a.recordStartup(ctx, out)
		if onComplete != nil {
			onComplete(out)
		}
	}()
	return nil
}

// Wait blocks until the bootstrap started by Start has finished or ctx ends.
func (a *App) Wait(ctx context.Context) (progress.Outcome, error) {
	select {
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.outcome, nil
	case <-ctx.Done():
		return progress.Outcome{}, ctx.Err()
	}
}

// Progress returns the single progress subscription.
func (a *App) Progress(ctx context.Context) (<-chan progress.Event, error) {
	return a.sink.Subscribe(ctx)
}

// Stop shuts the collaborators down in order. It is safe to call more than
// once, before Start and after a Fatal outcome. Failures are logged.
func (a *App) Stop(ctx context.Context) {
	a.shutdown.Shutdown(ctx)
}

// ShutdownErrors reports what failed during Stop.
func (a *App) ShutdownErrors() []*lifecycle.ShutdownError {
	return a.shutdown.Errors()
}

// PhaseSnapshots returns the state of every phase of the bootstrap.
func (a *App) PhaseSnapshots() []phase.Snapshot { return a.orch.Phases() }

func (a *App) Pool() *database.Pool { return a.pool }
func (a *App) Cache() *cache.Store { return a.cache }
func (a *App) Tasks() *tasks.Runner { return a.tasks }
func (a *App) Theme() theme.Theme { return a.themes.Active() }
func (a *App) Config() config.Config { return a.cfg }
func (a *App) Sink() *progress.Sink { return a.sink }
func (a *App) Logger() *slog.Logger { return a.log }

// SchemaSource names the schema resource the storage phase applied.
func (a *App) SchemaSource() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schema
}

func (a *App) recordStartup(ctx context.Context, out progress.Outcome) {
	if !a.pool.IsHealthy(ctx) {
		return
	}
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		a.log.Warn("record startup: acquire", "error", err)
		return
	}
	defer a.pool.Release(conn)

	detail := out.Reason
	if out.Cause != nil {
		detail = out.Cause.Error()
	}
	err = repository.NewStartupRepo(conn).Record(ctx, repository.StartupEntry{
		AttemptID: out.Attempt,
		Outcome:   out.Kind.String(),
		Detail:    detail,
	})
	if err != nil {
		// baseline schema has no history table
		a.log.Debug("record startup", "error", err)
	}
}
