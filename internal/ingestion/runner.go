package ingestion

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/adyeetya/blogs-backend/pkg/db/models"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

const (
	DefaultRunTimeout  = 30 * time.Minute
	releaseLockTimeout = 5 * time.Second
)

// ErrShuttingDown is returned for triggers that arrive after Shutdown.
var ErrShuttingDown = pkgerrors.New(pkgerrors.CodeDependency, "ingestion runner is shutting down")

// Runner launches ingestion runs in the background, one per magazine at a
// time, detached from the triggering request.
type Runner struct {
	orch    *Orchestrator
	locker  Locker
	logg    *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(orch *Orchestrator, locker Locker, logg *logger.Logger, timeout time.Duration) (*Runner, error) {
	if orch == nil {
		return nil, errors.New("orchestrator required")
	}
	if locker == nil {
		return nil, errors.New("locker required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Runner{orch: orch, locker: locker, logg: logg, timeout: timeout}, nil
}

// Start takes ownership of the uploaded file at pdfPath. It acquires the
// magazine's run lock, persists the processing status and returns while the
// run continues in the background. A second Start for a magazine with a run
// in flight fails with a CONFLICT error.
func (r *Runner) Start(ctx context.Context, mag *models.Magazine, pdfPath string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.discard(ctx, pdfPath)
		return ErrShuttingDown
	}
	r.wg.Add(1)
	r.mu.Unlock()

	lease, err := r.locker.Acquire(ctx, mag.Slug)
	if err != nil {
		r.wg.Done()
		r.discard(ctx, pdfPath)
		return err
	}

	if err := r.orch.Begin(ctx, mag); err != nil {
		r.release(ctx, lease)
		r.wg.Done()
		r.discard(ctx, pdfPath)
		return err
	}

	run := *mag
	go func() {
		defer r.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		defer r.release(runCtx, lease)

		_ = r.orch.Process(runCtx, &run, pdfPath)
	}()
	return nil
}

// Shutdown stops accepting runs and waits for in-flight runs or ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release(ctx context.Context, lease Lease) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseLockTimeout)
	defer cancel()
	if err := lease.Release(relCtx); err != nil {
		r.logg.Error(ctx, "failed to release ingestion lock", err)
	}
}

func (r *Runner) discard(ctx context.Context, pdfPath string) {
	if pdfPath == "" {
		return
	}
	if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
		r.logg.Warn(r.logg.WithField(ctx, "path", pdfPath), "failed to remove uploaded pdf")
	}
}
