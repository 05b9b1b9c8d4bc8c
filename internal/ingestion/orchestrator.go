// Package ingestion drives a magazine PDF through rendering, transcoding and
// upload, and moves the magazine through its processing lifecycle.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/adyeetya/blogs-backend/internal/ingestion/transcode"
	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/enums"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/metrics"
	"github.com/adyeetya/blogs-backend/pkg/storage"
)

const (
	StageStart        = "start"
	StageUploadSource = "upload_source"
	StageRender       = "render"
	StageTranscode    = "transcode"
	StageUploadPage   = "upload_page"
	StagePersist      = "persist"

	// ScratchPrefix names per-run scratch directories.
	ScratchPrefix = "magazine-"
	// UploadPrefix names uploaded PDFs waiting in the scratch directory.
	UploadPrefix = "upload-"

	defaultPageConcurrency = 4
	maxPageConcurrency     = 16
	finalWriteTimeout      = 15 * time.Second
)

// RecordStore persists lifecycle transitions for a magazine.
type RecordStore interface {
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SaveSourceDocument(ctx context.Context, id uuid.UUID, doc models.SourceDocument) error
	MarkReady(ctx context.Context, id uuid.UUID, pages models.Pages, coverURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// PageRenderer rasterizes a PDF into ordered page files.
type PageRenderer interface {
	Render(ctx context.Context, pdfPath, scratchDir string) ([]string, error)
}

// PageTranscoder converts one raw raster into a web image.
type PageTranscoder interface {
	Transcode(ctx context.Context, rawPath, outPath string) (transcode.Result, error)
	Format() enums.PageFormat
}

// Options tunes the orchestrator.
type Options struct {
	ScratchDir      string
	PageConcurrency int
}

// Deps groups the orchestrator collaborators.
type Deps struct {
	Records    RecordStore
	Store      storage.Store
	Renderer   PageRenderer
	Transcoder PageTranscoder
	Events     Publisher
	Metrics    *metrics.IngestionMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type Orchestrator struct {
	records    RecordStore
	store      storage.Store
	renderer   PageRenderer
	transcoder PageTranscoder
	events     Publisher
	metrics    *metrics.IngestionMetrics
	logg       *logger.Logger
	now        func() time.Time
	opts       Options
}

func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Records == nil:
		return nil, errors.New("record store required")
	case deps.Store == nil:
		return nil, errors.New("object store required")
	case deps.Renderer == nil:
		return nil, errors.New("renderer required")
	case deps.Transcoder == nil:
		return nil, errors.New("transcoder required")
	}
	if deps.Events == nil {
		deps.Events = NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	opts.PageConcurrency = clampConcurrency(opts.PageConcurrency)
	return &Orchestrator{
		records:    deps.Records,
		store:      deps.Store,
		renderer:   deps.Renderer,
		transcoder: deps.Transcoder,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logg:       deps.Logger,
		now:        deps.Now,
		opts:       opts,
	}, nil
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return defaultPageConcurrency
	}
	if n > maxPageConcurrency {
		return maxPageConcurrency
	}
	return n
}

// StageError tags a failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// StageName lets error dumps report the stage without importing this package.
func (e *StageError) StageName() string { return e.Stage }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded on err, or "" when untagged.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Begin persists the processing status. It runs before any external call so
// a crash leaves the record visibly mid-flight.
func (o *Orchestrator) Begin(ctx context.Context, mag *models.Magazine) error {
	if !mag.Status.CanTransitionTo(enums.MagazineStatusProcessing) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot ingest magazine in status %q", mag.Status))
	}
	startedAt := o.now().UTC()
	if err := o.records.MarkProcessing(ctx, mag.ID, startedAt); err != nil {
		return err
	}
	mag.Status = enums.MagazineStatusProcessing
	mag.ProcessingStartedAt = &startedAt
	mag.LastError = nil
	o.publish(ctx, mag, EventIngestionStarted, "", nil)
	return nil
}

// Ingest runs Begin then Process synchronously.
func (o *Orchestrator) Ingest(ctx context.Context, mag *models.Magazine, pdfPath string) error {
	if err := o.Begin(ctx, mag); err != nil {
		if rmErr := os.Remove(pdfPath); rmErr != nil && !os.IsNotExist(rmErr) {
			o.logg.Warn(o.logg.WithField(ctx, "path", pdfPath), "failed to remove uploaded pdf")
		}
		return err
	}
	return o.Process(ctx, mag, pdfPath)
}

// Process takes a magazine already in processing through upload, render,
// transcode and publish. The uploaded PDF and the scratch directory are
// removed on every path. On failure the magazine is marked failed and its
// previous pages are left untouched.
func (o *Orchestrator) Process(ctx context.Context, mag *models.Magazine, pdfPath string) (err error) {
	ctx = o.logg.WithMagazine(ctx, mag.Slug)
	start := o.now()
	o.metrics.RunStarted()

	var scratch string
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("ingestion panicked: %v", rec))
		}
		o.cleanup(ctx, scratch, pdfPath)
		o.metrics.RunFinished()
		if err != nil {
			o.fail(ctx, mag, err)
			o.metrics.ObserveRun(string(enums.MagazineStatusFailed), o.now().Sub(start))
			return
		}
		o.metrics.ObserveRun(string(enums.MagazineStatusReady), o.now().Sub(start))
	}()

	scratch, err = os.MkdirTemp(o.opts.ScratchDir, ScratchPrefix+sanitize(mag.Slug)+"-")
	if err != nil {
		scratch = ""
		return stageErr(StageStart, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create scratch dir"))
	}

	source, err := o.store.Put(o.logg.WithStage(ctx, StageUploadSource), pdfPath, storage.SourceKey(mag.StoragePrefix))
	if err != nil {
		return stageErr(StageUploadSource, err)
	}
	doc := models.SourceDocument{Key: source.Key, URL: source.URL, SizeBytes: source.SizeBytes}
	if err := o.records.SaveSourceDocument(ctx, mag.ID, doc); err != nil {
		return stageErr(StagePersist, err)
	}
	mag.SourceDocument = &doc

	raws, err := o.renderer.Render(o.logg.WithStage(ctx, StageRender), pdfPath, scratch)
	if err != nil {
		return stageErr(StageRender, err)
	}
	o.logg.Info(o.logg.WithField(ctx, "raw_pages", len(raws)), "pdf rendered")

	pages, err := o.publishPages(ctx, mag, raws, scratch)
	if err != nil {
		return err
	}

	if mag.SourceDocument == nil {
		return stageErr(StagePersist, pkgerrors.New(pkgerrors.CodeInternal, "source document missing"))
	}
	if err := pages.Validate(); err != nil {
		return stageErr(StagePersist, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "page sequence invalid"))
	}
	if len(pages) == 0 {
		return stageErr(StageRender, pkgerrors.New(pkgerrors.CodeRenderFailed, "no pages produced"))
	}
	cover := pages[0].URL
	if err := o.records.MarkReady(ctx, mag.ID, pages, cover); err != nil {
		return stageErr(StagePersist, err)
	}

	mag.Status = enums.MagazineStatusReady
	mag.Pages = pages
	mag.PageCount = len(pages)
	mag.CoverImageURL = &cover
	mag.LastError = nil
	o.metrics.AddPages(len(pages))
	o.logg.Info(o.logg.WithField(ctx, "page_count", len(pages)), "magazine ready")
	o.publish(ctx, mag, EventIngestionReady, "", nil)
	return nil
}

// publishPages transcodes and uploads every raw page with bounded
// parallelism. The returned pages are sorted by index whatever order the
// workers finish in. The first failure cancels the remaining pages.
func (o *Orchestrator) publishPages(ctx context.Context, mag *models.Magazine, raws []string, scratch string) (models.Pages, error) {
	outDir := filepath.Join(scratch, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return nil, stageErr(StageTranscode, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create output dir"))
	}

	format := o.transcoder.Format()
	results := make(chan models.Page, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.PageConcurrency)
	for i, raw := range raws {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = stageErr(StageTranscode, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("page %d panicked: %v", i, rec)))
				}
			}()
			if err := gctx.Err(); err != nil {
				return stageErr(StageTranscode, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("page %d not started", i)))
			}
			page, err := o.publishPage(gctx, mag, i, raw, outDir, format)
			if err != nil {
				return err
			}
			results <- page
			return nil
		})
	}
	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}

	pages := make(models.Pages, 0, len(raws))
	for p := range results {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(a, b int) bool { return pages[a].Index < pages[b].Index })
	return pages, nil
}

func (o *Orchestrator) publishPage(ctx context.Context, mag *models.Magazine, index int, raw, outDir string, format enums.PageFormat) (models.Page, error) {
	ctx = o.logg.WithPage(ctx, index)
	out := filepath.Join(outDir, fmt.Sprintf("page-%03d.%s", index+1, format.Extension()))

	res, err := o.transcoder.Transcode(o.logg.WithStage(ctx, StageTranscode), raw, out)
	if err != nil {
		return models.Page{}, stageErr(StageTranscode, fmt.Errorf("page %d: %w", index, err))
	}

	obj, err := o.store.Put(o.logg.WithStage(ctx, StageUploadPage), res.Path, storage.PageKey(mag.StoragePrefix, index, format.Extension()))
	if err != nil {
		return models.Page{}, stageErr(StageUploadPage, fmt.Errorf("page %d: %w", index, err))
	}

	return models.Page{
		Index:     index,
		Key:       obj.Key,
		URL:       obj.URL,
		Width:     res.Width,
		Height:    res.Height,
		SizeBytes: obj.SizeBytes,
		Format:    res.Format,
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, mag *models.Magazine, runErr error) {
	stage := StageOf(runErr)
	failCtx := o.logg.WithError(ctx, runErr)
	o.logg.Error(failCtx, "magazine ingestion failed", runErr)
	o.metrics.IncFailure(stage)

	writeCtx, cancel := finalCtx(ctx)
	defer cancel()

	msg := runErr.Error()
	if err := o.records.MarkFailed(writeCtx, mag.ID, msg); err != nil {
		o.logg.Error(failCtx, "failed to persist failed status", err)
	}
	mag.Status = enums.MagazineStatusFailed
	mag.LastError = &msg
	o.publish(ctx, mag, EventIngestionFailed, stage, runErr)
}

// finalCtx keeps terminal writes alive when the run context has expired.
func finalCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
}

func (o *Orchestrator) cleanup(ctx context.Context, scratch, pdfPath string) {
	var errs error
	if scratch != "" {
		errs = multierr.Append(errs, os.RemoveAll(scratch))
	}
	if pdfPath != "" {
		if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		o.logg.Warn(o.logg.WithField(ctx, "cleanup_errors", errs.Error()), "scratch cleanup incomplete")
	}
}

func (o *Orchestrator) publish(ctx context.Context, mag *models.Magazine, typ EventType, stage string, runErr error) {
	event := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		MagazineID: mag.ID,
		Slug:       mag.Slug,
		Status:     mag.Status,
		PageCount:  mag.PageCount,
		Stage:      stage,
		OccurredAt: o.now().UTC(),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	pubCtx, cancel := finalCtx(ctx)
	defer cancel()
	if err := o.events.Publish(pubCtx, event); err != nil {
		o.logg.Warn(o.logg.WithFields(ctx, map[string]any{"event_type": string(typ), "error": err.Error()}), "failed to publish lifecycle event")
	}
}

func sanitize(slug string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, slug)
}
