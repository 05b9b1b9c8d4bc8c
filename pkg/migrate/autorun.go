package migrate

import (
	"context"
	"fmt"

	"github.com/adyeetya/blogs-backend/pkg/config"
	"github.com/adyeetya/blogs-backend/pkg/db"
	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date in dev when the auto-migrate flag
// is set. Postgres runs the goose migrations; sqlite uses GORM's AutoMigrate
// since the SQL files use Postgres-only types.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "dialect": client.Dialect()}
	ctx = logg.WithFields(ctx, meta)

	if client.Dialect() == db.DialectSQLite {
		logg.Info(ctx, "running gorm automigrate (sqlite dev)")
		if err := AutoMigrate(ctx, client); err != nil {
			return err
		}
		logg.Info(ctx, "gorm automigrate completed")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running Goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrate creates the schema from the GORM models.
func AutoMigrate(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(&models.Magazine{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// WarnPending logs the migrations Postgres has not applied yet. It never
// fails startup; the API keeps serving on an older schema.
func WarnPending(ctx context.Context, logg *logger.Logger, client *db.Client, dir string) []int64 {
	if client.Dialect() == db.DialectSQLite {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "cannot check pending migrations")
		return nil
	}
	pending, err := Pending(sqlDB, dir)
	if err != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{"dir": dir, "error": err.Error()}), "cannot check pending migrations")
		return nil
	}
	if len(pending) > 0 {
		logg.Warn(logg.WithFields(ctx, map[string]any{"dir": dir, "pending": pending}), "database schema is behind; run cmd/migrate")
	}
	return pending
}
