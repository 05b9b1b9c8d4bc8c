package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"

	// the SQL files use Postgres types (UUID, JSONB, partial indexes)
	dialect = "postgres"
)

// Run executes a goose command against the magazines schema.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Pending returns the versions in dir that db has not applied yet, oldest
// first.
func Pending(db *sql.DB, dir string) ([]int64, error) {
	if err := prepare(db, dir); err != nil {
		return nil, err
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	migrations, err := goose.CollectMigrations(dir, current, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}
	out := make([]int64, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			out = append(out, m.Version)
		}
	}
	return out, nil
}

// MigrateToVersion moves the schema up or down to targetVersion, which must
// be 0 or the version of a migration file in dir.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := knownVersion(dir, target); err != nil {
		return err
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func knownVersion(dir string, target int64) error {
	if target == 0 {
		return nil
	}
	all, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	for _, m := range all {
		if m.Version == target {
			return nil
		}
	}
	return fmt.Errorf("no migration with version %d in %s", target, dir)
}

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}
