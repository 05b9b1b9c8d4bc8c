package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

const (
	defaultStaleAfter      = time.Hour
	defaultStaleBatchSize  = 100
	staleIngestionJobName  = "stale-ingestion-reaper"
	staleIngestionErrorFmt = "ingestion abandoned: still processing after %s"
)

type StaleIngestionJobParams struct {
	Logger     *logger.Logger
	Repo       staleMagazineRepo
	StaleAfter time.Duration
	BatchSize  int
}

type staleMagazineRepo interface {
	FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.Magazine, error)
	MarkStaleFailed(ctx context.Context, id uuid.UUID, cutoff time.Time, lastError string) (bool, error)
}

// NewStaleIngestionJob fails magazines left in processing by a crashed run.
// StaleAfter must exceed the ingestion run timeout.
func NewStaleIngestionJob(params StaleIngestionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("magazine repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatchSize
	}
	return &staleIngestionJob{
		logg:       params.Logger,
		repo:       params.Repo,
		staleAfter: staleAfter,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

type staleIngestionJob struct {
	logg       *logger.Logger
	repo       staleMagazineRepo
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *staleIngestionJob) Name() string { return staleIngestionJobName }

func (j *staleIngestionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	rows, err := j.repo.FindStaleProcessing(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale magazines: %w", err)
	}

	reason := fmt.Sprintf(staleIngestionErrorFmt, j.staleAfter)
	var (
		reaped int
		errs   error
	)
	for _, mag := range rows {
		changed, err := j.repo.MarkStaleFailed(ctx, mag.ID, cutoff, reason)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reap %s: %w", mag.Slug, err))
			continue
		}
		if changed {
			reaped++
			j.logg.Warn(j.logg.WithMagazine(ctx, mag.Slug), "stale ingestion marked failed")
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(rows),
		"reaped":     reaped,
	})
	j.logg.Info(logCtx, "stale ingestion sweep complete")
	return errs
}
