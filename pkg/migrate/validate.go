package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	markerUp     = "-- +goose Up"
	markerDown   = "-- +goose Down"
	markerBegin  = "-- +goose StatementBegin"
	markerEnd    = "-- +goose StatementEnd"
	createTable  = "CREATE TABLE "
	dropTable    = "DROP TABLE "
	ifNotExists  = "CREATE TABLE IF NOT EXISTS "
	ifExistsDrop = "DROP TABLE IF EXISTS "
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every migration in dir and reports all problems at once.
// Besides the filename and goose markers it requires re-runnable table DDL
// and a Down section that actually undoes something.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
			continue
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, validateSQL(name, string(b)))
	}
	return errs
}

func validateSQL(name, txt string) error {
	upAt := strings.Index(txt, markerUp)
	downAt := strings.Index(txt, markerDown)
	switch {
	case upAt < 0:
		return fmt.Errorf("migration %q missing %q", name, markerUp)
	case downAt < 0:
		return fmt.Errorf("migration %q missing %q", name, markerDown)
	case downAt < upAt:
		return fmt.Errorf("migration %q has Down before Up", name)
	}

	var errs error
	if strings.Count(txt, markerBegin) != strings.Count(txt, markerEnd) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has unbalanced StatementBegin/StatementEnd", name))
	}
	up, down := txt[upAt+len(markerUp):downAt], txt[downAt+len(markerDown):]
	if !hasStatement(up) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has an empty Up section", name))
	}
	if !hasStatement(down) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has an empty Down section", name))
	}
	upper := strings.ToUpper(txt)
	if strings.Count(upper, createTable) != strings.Count(upper, ifNotExists) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q must use CREATE TABLE IF NOT EXISTS", name))
	}
	if strings.Count(upper, dropTable) != strings.Count(upper, ifExistsDrop) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q must use DROP TABLE IF EXISTS", name))
	}
	return errs
}

// hasStatement reports whether section holds anything besides comments.
func hasStatement(section string) bool {
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}
