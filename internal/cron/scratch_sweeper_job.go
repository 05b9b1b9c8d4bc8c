package cron

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/adyeetya/blogs-backend/internal/ingestion"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

const (
	defaultScratchMaxAge  = time.Hour
	scratchSweeperJobName = "scratch-sweeper"
)

type ScratchSweeperJobParams struct {
	Logger *logger.Logger
	Dir    string
	MaxAge time.Duration
}

// NewScratchSweeperJob removes run directories and uploads that a crashed
// process left behind in the scratch directory.
func NewScratchSweeperJob(params ScratchSweeperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	dir := params.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultScratchMaxAge
	}
	return &scratchSweeperJob{logg: params.Logger, dir: dir, maxAge: maxAge, now: time.Now}, nil
}

type scratchSweeperJob struct {
	logg   *logger.Logger
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

func (j *scratchSweeperJob) Name() string { return scratchSweeperJobName }

func (j *scratchSweeperJob) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read scratch dir: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	var (
		removed int
		errs    error
	)
	for _, entry := range entries {
		if !isPipelineArtifact(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !os.IsNotExist(err) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(j.dir, entry.Name())); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", entry.Name(), err))
			continue
		}
		removed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"dir":     j.dir,
		"cutoff":  cutoff,
		"removed": removed,
	})
	j.logg.Info(logCtx, "scratch sweep complete")
	return errs
}

func isPipelineArtifact(entry os.DirEntry) bool {
	name := entry.Name()
	if entry.IsDir() {
		return strings.HasPrefix(name, ingestion.ScratchPrefix)
	}
	return strings.HasPrefix(name, ingestion.UploadPrefix) && strings.HasSuffix(name, ".pdf")
}
