// Package lifecycle tears down process-wide collaborators in reverse order
// of registration.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds Shutdown when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// ShutdownError records one hook that failed during Shutdown.
type ShutdownError struct {
	Name string
	Err  error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown %s: %v", e.Name, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager runs registered hooks last-in first-out, exactly once.
type Manager struct {
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	hooks  []hook
	done   bool
	failed []*ShutdownError
}

func New(timeout time.Duration, logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{timeout: timeout, log: logger}
}

// Register adds a hook. Hooks registered after Shutdown are ignored.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		m.log.Warn("shutdown hook registered too late", "hook", name)
		return
	}
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every hook in reverse registration order. Failures are
// logged and kept for Errors; a failing hook does not stop the others.
// Calls after the first do nothing.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.done = true

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		if err := run(ctx, h); err != nil {
			se := &ShutdownError{Name: h.name, Err: err}
			m.failed = append(m.failed, se)
			m.log.Error("shutdown hook failed", "hook", h.name, "error", err)
			continue
		}
		m.log.Debug("shutdown hook done", "hook", h.name)
	}
	m.log.Info("shutdown complete", "hooks", len(m.hooks), "failed", len(m.failed), "elapsed", time.Since(start))
}

func run(ctx context.Context, h hook) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h.fn(ctx)
}

// Errors returns the hooks that failed during Shutdown.
func (m *Manager) Errors() []*ShutdownError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ShutdownError(nil), m.failed...)
}

// Closer adapts a Close method to a shutdown hook.
func Closer(c interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
