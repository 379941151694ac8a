package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrConnectionUnavailable is returned when the storage engine cannot hand
// out a usable connection.
var ErrConnectionUnavailable = errors.New("storage connection unavailable")

var (
	errPoolClosed  = fmt.Errorf("%w: pool closed", ErrConnectionUnavailable)
	errPoolNotOpen = fmt.Errorf("%w: pool not open", ErrConnectionUnavailable)
)

// Pool is the process-wide storage collaborator. It is constructed closed
// over a path and opened by the storage phase; acquisition is safe for
// concurrent callers and Close drains outstanding leases first.
type Pool struct {
	path  string
	retry time.Duration
	cb    *gobreaker.CircuitBreaker
	log   *slog.Logger

	mu       sync.Mutex
	db       *sql.DB
	closed   bool
	leased   map[*sql.Conn]struct{}
	inflight sync.WaitGroup
}

// NewPool creates a pool for the sqlite file at path. retry bounds how long
// Open keeps pinging a database that is busy or locked.
func NewPool(path string, retry time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if retry <= 0 {
		// zero would mean retry forever
		retry = time.Millisecond
	}
	return &Pool{
		path:  path,
		retry: retry,
		log:   logger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "storage",
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		leased: make(map[*sql.Conn]struct{}),
	}
}

// Open connects to the database, retrying with exponential backoff until the
// retry budget or ctx runs out. Opening an already open pool is a no-op.
func (p *Pool) Open(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return errPoolClosed
	case p.db != nil:
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir db dir: %v", ErrConnectionUnavailable, err)
	}
	db, err := Open(p.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = p.retry
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			p.log.Debug("storage ping failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: ping %s: %v", ErrConnectionUnavailable, p.path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		// shut down while we were connecting
		_ = db.Close()
		return errPoolClosed
	}
	if p.db != nil {
		_ = db.Close()
		return nil
	}
	p.db = db
	return nil
}

// Acquire leases a dedicated connection. Every successful Acquire must be
// paired with Release.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPoolClosed
	}
	if p.db == nil {
		p.mu.Unlock()
		return nil, errPoolNotOpen
	}
	db := p.db
	p.inflight.Add(1)
	p.mu.Unlock()

	v, err := p.cb.Execute(func() (interface{}, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		p.inflight.Done()
		return nil, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}

	conn := v.(*sql.Conn)
	p.mu.Lock()
	p.leased[conn] = struct{}{}
	p.mu.Unlock()
	return conn, nil
}

// Release returns a leased connection. Releasing twice, or releasing a
// connection this pool did not hand out, does nothing.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	_, ok := p.leased[conn]
	delete(p.leased, conn)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		p.log.Warn("release storage connection", "error", err)
	}
	p.inflight.Done()
}

// IsHealthy reports whether the pool is open, the breaker is closed and the
// database answers a ping.
func (p *Pool) IsHealthy(ctx context.Context) bool {
	p.mu.Lock()
	db, closed := p.db, p.closed
	p.mu.Unlock()
	if closed || db == nil {
		return false
	}
	if p.cb.State() == gobreaker.StateOpen {
		return false
	}
	return db.PingContext(ctx) == nil
}

// DB exposes the underlying handle for tooling that needs a *sql.DB, such as
// the migration driver. It is nil until Open succeeds and after Close.
func (p *Pool) DB() *sql.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.db
}

// Leased returns the number of connections currently handed out.
func (p *Pool) Leased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Close stops new acquisitions, waits for outstanding leases to be released
// and then closes the database. It is safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	db := p.db
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	var drainErr error
	select {
	case <-drained:
	case <-ctx.Done():
		drainErr = fmt.Errorf("drain storage connections (%d leased): %w", p.Leased(), ctx.Err())
	}

	if db == nil {
		return drainErr
	}
	if err := db.Close(); err != nil {
		return errors.Join(drainErr, fmt.Errorf("close storage: %w", err))
	}
	return drainErr
}
