package repository

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is the subset of *sql.DB / *sql.Conn / *sql.Tx the repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PreferenceRepo handles key/value preferences.
type PreferenceRepo struct {
	db DBTX
}

func NewPreferenceRepo(db DBTX) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

func (r *PreferenceRepo) Upsert(ctx context.Context, p Preference) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO preferences(key, value, updated_at)
	VALUES (?, ?, datetime('now'))
	ON CONFLICT(key) DO UPDATE SET
	 value=excluded.value,
	 updated_at=excluded.updated_at;
	`, p.Key, p.Value)
	return err
}

// InsertDefault stores p only when the key is not set yet.
func (r *PreferenceRepo) InsertDefault(ctx context.Context, p Preference) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO preferences(key, value, updated_at)
	VALUES (?, ?, datetime('now'))
	ON CONFLICT(key) DO NOTHING;
	`, p.Key, p.Value)
	return err
}

// Get returns the preference for key; ok is false when it is not set.
func (r *PreferenceRepo) Get(ctx context.Context, key string) (Preference, bool, error) {
	var p Preference
	err := r.db.QueryRowContext(ctx, `SELECT key, value FROM preferences WHERE key = ?`, key).Scan(&p.Key, &p.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Preference{}, false, nil
	}
	if err != nil {
		return Preference{}, false, err
	}
	return p, true, nil
}

func (r *PreferenceRepo) List(ctx context.Context) ([]Preference, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM preferences ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
