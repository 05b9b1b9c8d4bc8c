package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
	createTableRe  = regexp.MustCompile(`^create_([a-z0-9_]+)$`)
	addColumnRe    = regexp.MustCompile(`^add_([a-z0-9_]+)_to_([a-z0-9_]+)$`)
)

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql. Names shaped
// like create_<table> or add_<column>_to_<table> get a matching skeleton;
// anything else gets an empty statement block.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version, err := nextVersion(dir, now)
	if err != nil {
		return "", err
	}
	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}

	if err := os.WriteFile(fullpath, []byte(skeleton(safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// nextVersion returns now as a version, bumped past the newest migration in
// dir so goose never sees an out of order file.
func nextVersion(dir string, now time.Time) (string, error) {
	latest, err := latestVersion(dir)
	if err != nil {
		return "", err
	}
	candidate := now.UTC()
	if latest != "" {
		prev, err := time.Parse(versionLayout, latest)
		if err != nil {
			return "", fmt.Errorf("parse version %s: %w", latest, err)
		}
		if !candidate.After(prev) {
			candidate = prev.Add(time.Second)
		}
	}
	return candidate.Format(versionLayout), nil
}

func latestVersion(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir %q: %w", dir, err)
	}
	var latest int64
	for _, e := range entries {
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return "", nil
	}
	return strconv.FormatInt(latest, 10), nil
}

func skeleton(name string) string {
	up, down := "-- "+name, "-- rollback "+name
	if m := addColumnRe.FindStringSubmatch(name); m != nil {
		up = fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT;", m[2], m[1])
		down = fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s;", m[2], m[1])
	} else if m := createTableRe.FindStringSubmatch(name); m != nil {
		up = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, m[1])
		down = fmt.Sprintf("DROP TABLE IF EXISTS %s;", m[1])
	}
	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
%s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
%s
-- +goose StatementEnd
`, up, down)
}
