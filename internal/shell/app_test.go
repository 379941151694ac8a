package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/launchpad/internal/cache"
	"github.com/jask/launchpad/internal/config"
	"github.com/jask/launchpad/internal/database/repository"
	"github.com/jask/launchpad/internal/progress"
	"github.com/jask/launchpad/internal/schema"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Database: config.DatabaseConfig{
			Path:      filepath.Join(dir, "data", "launchpad.db"),
			OpenRetry: 200 * time.Millisecond,
		},
		Bootstrap: config.BootstrapConfig{
			Critical:       []string{"storage"},
			FastTimeout:    2 * time.Second,
			SlowTimeout:    5 * time.Second,
			SchemaPolicy:   "lenient",
			ProgressBuffer: 64,
			ShutdownGrace:  2 * time.Second,
		},
		Cache: config.CacheConfig{Size: 16},
		Tasks: config.TasksConfig{Workers: 1, QueueSize: 4},
		Theme: config.ThemeConfig{Name: "mocha", Dir: filepath.Join(dir, "themes")},
	}
}

func startAndWait(t *testing.T, a *App) progress.Outcome {
	t.Helper()
	done := make(chan progress.Outcome, 1)
	require.NoError(t, a.Start(context.Background(), func(o progress.Outcome) { done <- o }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := a.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, out.Kind, (<-done).Kind)
	return out
}

func TestAppStartsAllSubsystems(t *testing.T) {
	a, err := New(Options{Config: testConfig(t), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	out := startAndWait(t, a)
	require.Equal(t, progress.Success, out.Kind, out.String())
	require.NotEmpty(t, out.Attempt)
	assert.Equal(t, "embedded:enhanced.sql", a.SchemaSource())

	theme, ok := a.Cache().Get(repository.PrefTheme)
	require.True(t, ok)
	assert.Equal(t, "mocha", theme)
	_, ok = a.Cache().Get(repository.PrefInstallID)
	assert.True(t, ok)
	assert.Equal(t, "mocha", a.Theme().Palette.Name)

	ctx := context.Background()
	conn, err := a.Pool().Acquire(ctx)
	require.NoError(t, err)
	last, ok, err := repository.NewStartupRepo(conn).Last(ctx)
	a.Pool().Release(conn)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out.Attempt, last.AttemptID)
	assert.Equal(t, "success", last.Outcome)

	a.Stop(ctx)
	require.Empty(t, a.ShutdownErrors())
	succeeded, _ := a.Tasks().Stats()
	assert.Equal(t, int64(1), succeeded, "maintenance task runs before storage closes")
	assert.Zero(t, a.Pool().Leased())
	assert.False(t, a.Pool().IsHealthy(ctx))
}

func TestAppStartOnce(t *testing.T) {
	a, err := New(Options{Config: testConfig(t)})
	require.NoError(t, err)
	startAndWait(t, a)
	require.ErrorIs(t, a.Start(context.Background(), nil), ErrAlreadyStarted)
	a.Stop(context.Background())
}

func TestAppStopIsIdempotent(t *testing.T) {
	a, err := New(Options{Config: testConfig(t)})
	require.NoError(t, err)

	a.Stop(context.Background())
	a.Stop(context.Background())
	require.Empty(t, a.ShutdownErrors())
}

func TestAppStorageFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.Database.Path = filepath.Join(blocker, "launchpad.db")

	a, err := New(Options{Config: cfg})
	require.NoError(t, err)

	events, err := a.Progress(context.Background())
	require.NoError(t, err)

	out := startAndWait(t, a)
	require.Equal(t, progress.Fatal, out.Kind)
	require.ErrorIs(t, out.Cause, schema.ErrConnectionUnavailable)

	var last progress.Event
	for e := range events {
		last = e
	}
	require.True(t, last.Terminal())
	require.Equal(t, progress.Fatal, last.Outcome.Kind)

	a.Stop(context.Background())
	a.Stop(context.Background())
	require.Empty(t, a.ShutdownErrors())
}

func TestAppUnknownThemeDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.Theme.Name = "mocah"
	a, err := New(Options{Config: cfg})
	require.NoError(t, err)
	defer a.Stop(context.Background())

	out := startAndWait(t, a)
	require.Equal(t, progress.Degraded, out.Kind)
	assert.Contains(t, out.Reason, "theme")
	assert.Contains(t, out.Reason, `did you mean "mocha"`)
	// the built-in theme stays active
	assert.Equal(t, "mocha", a.Theme().Palette.Name)
}

func TestAppSchemaPolicy(t *testing.T) {
	override := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(override, "enhanced.sql"), []byte(`
CREATE TABLE IF NOT EXISTS preferences (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TEXT);
CREATE TABLE IF NOT EXISTS task_runs (id INTEGER PRIMARY KEY, name TEXT, status TEXT, error TEXT, started_at TEXT, finished_at TEXT);
CREATE TABLEX broken (id INTEGER);
`), 0o600))

	t.Run("lenient accepts partial schema", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.SchemaDir = override
		a, err := New(Options{Config: cfg})
		require.NoError(t, err)
		defer a.Stop(context.Background())

		out := startAndWait(t, a)
		require.Equal(t, progress.Success, out.Kind, out.String())
		assert.Equal(t, override+":enhanced.sql", a.SchemaSource())
	})

	t.Run("strict rejects it", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.SchemaDir = override
		cfg.Bootstrap.SchemaPolicy = "strict"
		a, err := New(Options{Config: cfg})
		require.NoError(t, err)
		defer a.Stop(context.Background())

		out := startAndWait(t, a)
		require.Equal(t, progress.Fatal, out.Kind)
		require.ErrorIs(t, out.Cause, schema.ErrSchemaRejected)
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bootstrap.SchemaPolicy = ""
	_, err := New(Options{Config: cfg})
	require.Error(t, err)
}

func TestAbandonedCachePreloadAfterStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bootstrap.Timeouts = map[string]time.Duration{"cache": 100 * time.Millisecond}
	a, err := New(Options{Config: cfg, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	release := make(chan struct{})
	loaded := make(chan error, 1)
	a.loadCache = func(m map[string]string) error {
		<-release
		err := a.Cache().Load(m)
		loaded <- err
		return err
	}

	out := startAndWait(t, a)
	require.Equal(t, progress.Degraded, out.Kind, out.String())
	assert.Contains(t, out.Reason, "cache")
	assert.GreaterOrEqual(t, a.Pool().Leased(), 1, "abandoned preload still holds its connection")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	a.Stop(ctx)
	close(release)

	select {
	case err := <-loaded:
		require.True(t, errors.Is(err, cache.ErrClosed), "load after stop: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned preload never finished")
	}
	assert.Zero(t, a.Cache().Len())
	require.Eventually(t, func() bool { return a.Pool().Leased() == 0 }, 5*time.Second, 10*time.Millisecond)
}
