package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openPool(t *testing.T) *Pool {
	t.Helper()
	p := NewPool(filepath.Join(t.TempDir(), "nested", "test.db"), time.Second, nil)
	require.NoError(t, p.Open(context.Background()))
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestPoolAcquireRelease(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.Leased())

	_, err = conn.ExecContext(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	p.Release(conn)
	p.Release(conn)
	require.Zero(t, p.Leased())
	require.True(t, p.IsHealthy(ctx))
}

func TestPoolConcurrentAcquire(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.Acquire(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer p.Release(conn)
			_, err = conn.ExecContext(ctx, "SELECT 1")
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Zero(t, p.Leased())
}

func TestPoolNotOpen(t *testing.T) {
	p := NewPool(filepath.Join(t.TempDir(), "test.db"), 0, nil)
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	require.False(t, p.IsHealthy(context.Background()))
	require.Nil(t, p.DB())
}

func TestPoolOpenFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	p := NewPool(filepath.Join(blocker, "test.db"), 10*time.Millisecond, nil)
	require.ErrorIs(t, p.Open(context.Background()), ErrConnectionUnavailable)
}

func TestPoolCloseWaitsForLeases(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- p.Close(ctx) }()

	select {
	case <-closed:
		t.Fatal("close returned while a connection was leased")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, ErrConnectionUnavailable)

	p.Release(conn)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return after release")
	}

	require.NoError(t, p.Close(ctx))
	require.ErrorIs(t, p.Open(ctx), ErrConnectionUnavailable)
	require.Nil(t, p.DB())
}

func TestPoolCloseHonoursDeadline(t *testing.T) {
	p := openPool(t)
	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
}
