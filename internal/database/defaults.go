package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jask/launchpad/internal/database/repository"
)

// SeedDefaults ensures baseline preferences exist for new databases and
// stamps the current run. It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db repository.DBTX, theme string) error {
	prefs := repository.NewPreferenceRepo(db)
	defaults := []repository.Preference{
		{Key: repository.PrefInstallID, Value: uuid.NewString()},
		{Key: repository.PrefTheme, Value: theme},
	}
	for _, p := range defaults {
		if err := prefs.InsertDefault(ctx, p); err != nil {
			return fmt.Errorf("seed %s: %w", p.Key, err)
		}
	}
	if err := prefs.Upsert(ctx, repository.Preference{
		Key:   repository.PrefLastRun,
		Value: Now().Format("2006-01-02T15:04:05Z"),
	}); err != nil {
		return fmt.Errorf("stamp last run: %w", err)
	}
	return nil
}
