package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/launchpad/internal/database/repository"
)

const prefsTable = `CREATE TABLE preferences (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()
	_, err := p.DB().ExecContext(ctx, prefsTable)
	require.NoError(t, err)

	require.NoError(t, SeedDefaults(ctx, p.DB(), "mocha"))
	repo := repository.NewPreferenceRepo(p.DB())
	first, ok, err := repo.Get(ctx, repository.PrefInstallID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, first.Value)

	require.NoError(t, SeedDefaults(ctx, p.DB(), "latte"))
	second, _, err := repo.Get(ctx, repository.PrefInstallID)
	require.NoError(t, err)
	require.Equal(t, first.Value, second.Value)

	theme, _, err := repo.Get(ctx, repository.PrefTheme)
	require.NoError(t, err)
	require.Equal(t, "mocha", theme.Value)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRunMigrations(t *testing.T) {
	p := openPool(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_bookmarks.up.sql"),
		[]byte("CREATE TABLE IF NOT EXISTS bookmarks (id INTEGER PRIMARY KEY, ref TEXT NOT NULL);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_bookmarks.down.sql"),
		[]byte("DROP TABLE IF EXISTS bookmarks;"), 0o600))

	require.NoError(t, RunMigrations(p.DB(), dir))
	require.NoError(t, RunMigrations(p.DB(), dir))
	require.NoError(t, RunMigrations(p.DB(), ""))

	_, err := p.DB().Exec("INSERT INTO bookmarks(ref) VALUES ('x')")
	require.NoError(t, err)
	require.True(t, p.IsHealthy(context.Background()), "migrations must not close the pool")
}

func TestTaskRunAndStartupHistory(t *testing.T) {
	p := openPool(t)
	ctx := context.Background()
	db := p.DB()
	_, err := db.ExecContext(ctx, `CREATE TABLE task_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '', started_at TEXT NOT NULL, finished_at TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE startup_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT, attempt_id TEXT NOT NULL, outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '', recorded_at TEXT NOT NULL DEFAULT (datetime('now')))`)
	require.NoError(t, err)

	runs := repository.NewTaskRunRepo(db)
	now := Now()
	require.NoError(t, runs.Record(ctx, "optimize", now, now.Add(time.Second), nil))
	require.NoError(t, runs.Record(ctx, "optimize", now, now.Add(time.Second), os.ErrPermission))
	recent, err := runs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, repository.TaskFailed, recent[0].Status)
	require.Equal(t, repository.TaskSucceeded, recent[1].Status)

	history := repository.NewStartupRepo(db)
	_, ok, err := history.Last(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, history.Record(ctx, repository.StartupEntry{AttemptID: "a1", Outcome: "degraded", Detail: "theme"}))
	last, ok, err := history.Last(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a1", last.AttemptID)
	require.Equal(t, "degraded", last.Outcome)
}
