package shell

import (
	"context"
	"fmt"
	"time"

	"github.com/jask/launchpad/internal/database"
	"github.com/jask/launchpad/internal/database/repository"
	"github.com/jask/launchpad/internal/phase"
	"github.com/jask/launchpad/internal/schema"
	"github.com/jask/launchpad/internal/tasks"
)

const optimizeTask = "storage.optimize"

func (a *App) startStorage(ctx context.Context, report phase.Reporter) error {
	report(0.1, "opening "+a.cfg.Database.Path)
	if err := a.pool.Open(ctx); err != nil {
		return err
	}

	script, err := schema.Resolve(schema.DefaultSources(a.cfg.Database.SchemaDir)...)
	if err != nil {
		return err
	}
	report(0.3, "applying schema "+script.Source)

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Release(conn)

	res, err := schema.Apply(ctx, conn, script)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.schema = res.Source
	a.mu.Unlock()
	if res.Failed > 0 {
		a.log.Warn("schema applied partially",
			"source", res.Source, "mode", res.Mode.String(),
			"succeeded", res.Succeeded, "failed", res.Failed, "batch_error", res.BatchErr)
		for _, f := range res.Failures {
			a.log.Debug("schema statement failed", "index", f.Index, "error", f.Err)
		}
	}
	if err := schema.Policy(a.cfg.Bootstrap.SchemaPolicy).Check(res); err != nil {
		return err
	}
	report(0.6, fmt.Sprintf("schema %d/%d statements", res.Succeeded, res.Total))

	if dir := a.cfg.Database.MigrationsDir; dir != "" {
		report(0.7, "running migrations")
		if err := database.RunMigrations(a.pool.DB(), dir); err != nil {
			return err
		}
	}

	report(0.85, "seeding defaults")
	if err := database.SeedDefaults(ctx, conn, a.cfg.Theme.Name); err != nil {
		return err
	}

	if err := a.tasks.Submit(tasks.Task{Name: optimizeTask, Run: a.optimizeStorage}); err != nil {
		a.log.Warn("schedule storage maintenance", "error", err)
	}
	return nil
}

// optimizeStorage lets sqlite refresh its planner statistics and records
// the run.
func (a *App) optimizeStorage(ctx context.Context) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Release(conn)

	started := time.Now()
	_, runErr := conn.ExecContext(ctx, "PRAGMA optimize")
	if err := repository.NewTaskRunRepo(conn).Record(ctx, optimizeTask, started, time.Now(), runErr); err != nil {
		a.log.Warn("record task run", "task", optimizeTask, "error", err)
	}
	return runErr
}

func (a *App) preloadCache(ctx context.Context, report phase.Reporter) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Release(conn)

	prefs, err := repository.NewPreferenceRepo(conn).List(ctx)
	if err != nil {
		return fmt.Errorf("list preferences: %w", err)
	}
	report(0.5, fmt.Sprintf("loaded %d preferences", len(prefs)))

	m := make(map[string]string, len(prefs))
	for _, p := range prefs {
		m[p.Key] = p.Value
	}
	return a.loadCache(m)
}

func (a *App) startTasks(ctx context.Context, report phase.Reporter) error {
	if err := a.tasks.Start(ctx); err != nil {
		return err
	}
	report(0.5, fmt.Sprintf("%d workers", a.cfg.Tasks.Workers))
	return nil
}

func (a *App) preloadTheme(ctx context.Context, report phase.Reporter) error {
	report(0.2, "loading palettes")
	if err := a.themes.PreloadCommon(ctx); err != nil {
		return err
	}
	report(0.9, "theme "+a.themes.Active().Palette.Name)
	return nil
}
