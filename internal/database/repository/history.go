package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TaskRunRepo records background task executions.
type TaskRunRepo struct {
	db DBTX
}

func NewTaskRunRepo(db DBTX) *TaskRunRepo {
	return &TaskRunRepo{db: db}
}

// Record stores one finished run. A nil runErr records success.
func (r *TaskRunRepo) Record(ctx context.Context, name string, started, finished time.Time, runErr error) error {
	status, msg := TaskSucceeded, ""
	if runErr != nil {
		status, msg = TaskFailed, runErr.Error()
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO task_runs(name, status, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?);
	`, name, status, msg, started.UTC().Format(time.RFC3339), finished.UTC().Format(time.RFC3339))
	return err
}

// Recent returns the latest runs, newest first.
func (r *TaskRunRepo) Recent(ctx context.Context, limit int) ([]TaskRun, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, status, error, started_at, COALESCE(finished_at, '')
	FROM task_runs ORDER BY id DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRun
	for rows.Next() {
		var tr TaskRun
		if err := rows.Scan(&tr.ID, &tr.Name, &tr.Status, &tr.Error, &tr.StartedAt, &tr.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// StartupRepo keeps a log of bootstrap outcomes. The table only exists in
// the enhanced schema.
type StartupRepo struct {
	db DBTX
}

func NewStartupRepo(db DBTX) *StartupRepo {
	return &StartupRepo{db: db}
}

func (r *StartupRepo) Record(ctx context.Context, e StartupEntry) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO startup_history(attempt_id, outcome, detail)
	VALUES (?, ?, ?);
	`, e.AttemptID, e.Outcome, e.Detail)
	return err
}

// Last returns the most recent entry; ok is false when there is none.
func (r *StartupRepo) Last(ctx context.Context) (StartupEntry, bool, error) {
	var e StartupEntry
	err := r.db.QueryRowContext(ctx, `
	SELECT attempt_id, outcome, detail, recorded_at
	FROM startup_history ORDER BY id DESC LIMIT 1;
	`).Scan(&e.AttemptID, &e.Outcome, &e.Detail, &e.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StartupEntry{}, false, nil
	}
	if err != nil {
		return StartupEntry{}, false, err
	}
	return e, true, nil
}
