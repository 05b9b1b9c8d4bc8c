package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	relCtx   error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.held = false
	f.releases++
	f.relCtx = ctx.Err()
	return nil
}

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func newTestService(t *testing.T, lock Lock, jobs ...Job) (*Service, *prometheus.Registry) {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service, reg
}

func TestRunOnceReapsAndSweepsEvenWhenReaperFails(t *testing.T) {
	stuck := models.Magazine{ID: uuid.New(), Slug: "stuck-issue"}
	broken := models.Magazine{ID: uuid.New(), Slug: "broken-issue"}
	repo := &fakeStaleRepo{
		rows:    []models.Magazine{stuck, broken},
		markErr: map[uuid.UUID]error{broken.ID: errors.New("db gone")},
	}
	scratch := t.TempDir()
	leftover := filepath.Join(scratch, "magazine-stuck-issue-123")
	touch(t, leftover, time.Now().Add(-3*time.Hour), true)

	reaper, sweeper := maintenanceJobs(t, repo, scratch)
	lock := &fakeLock{}
	service, reg := newTestService(t, lock, reaper, sweeper)

	failed, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected only the reaper to fail, got %d failures", failed)
	}
	if len(repo.marked) != 1 || repo.marked[0] != stuck.ID {
		t.Fatalf("expected stuck magazine reaped, got %v", repo.marked)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("sweeper should still run after the reaper failed")
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock should be released once, held=%v releases=%d", lock.held, lock.releases)
	}

	if got := counterValue(t, reg, "magazine_cron_job_failure_total", "stale-ingestion-reaper"); got != 1 {
		t.Fatalf("expected reaper failure counted, got %v", got)
	}
	if got := counterValue(t, reg, "magazine_cron_job_success_total", "scratch-sweeper"); got != 1 {
		t.Fatalf("expected sweeper success counted, got %v", got)
	}
}

func TestRunOnceSkipsWhenAnotherWorkerHoldsLock(t *testing.T) {
	repo := &fakeStaleRepo{rows: []models.Magazine{{ID: uuid.New(), Slug: "issue"}}}
	reaper, _ := maintenanceJobs(t, repo, t.TempDir())
	lock := &fakeLock{held: true}
	service, _ := newTestService(t, lock, reaper)

	failed, err := service.RunOnce(context.Background())
	if err != nil || failed != 0 {
		t.Fatalf("expected quiet skip, got failed=%d err=%v", failed, err)
	}
	if len(repo.marked) != 0 || lock.releases != 0 {
		t.Fatalf("no job should run and the foreign lock must not be released")
	}
}

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	repo := &fakeStaleRepo{rows: []models.Magazine{{ID: uuid.New(), Slug: "issue"}}}
	reaper, _ := maintenanceJobs(t, repo, t.TempDir())
	boom := funcJob{name: "exploding", run: func(context.Context) error { panic("nil map") }}
	lock := &fakeLock{}
	service, _ := newTestService(t, lock, boom, reaper)

	failed, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if failed != 1 || len(repo.marked) != 1 {
		t.Fatalf("panic should count as one failure and not stop the reaper, failed=%d marked=%d", failed, len(repo.marked))
	}
	if lock.held {
		t.Fatalf("lock should be released after a panic")
	}
}

func TestRunOnceBoundsJobsAndReleasesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var deadlineSet bool
	slow := funcJob{name: "slow", run: func(jobCtx context.Context) error {
		_, deadlineSet = jobCtx.Deadline()
		cancel()
		<-jobCtx.Done()
		return jobCtx.Err()
	}}
	never := funcJob{name: "after-shutdown", run: func(context.Context) error {
		t.Fatalf("jobs after cancellation should not start")
		return nil
	}}
	lock := &fakeLock{}
	service, _ := newTestService(t, lock, slow, never)
	service.jobTimeout = time.Second

	if _, err := service.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !deadlineSet {
		t.Fatalf("jobs should run under a deadline")
	}
	if lock.releases != 1 || lock.relCtx != nil {
		t.Fatalf("lock release must use a live context, releases=%d ctxErr=%v", lock.releases, lock.relCtx)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatalf("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatalf("expected lock error")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "job" && l.GetValue() == job {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{job=%q} not found", name, job)
	return 0
}
