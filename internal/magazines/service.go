package magazines

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/enums"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/logger"
	"github.com/adyeetya/blogs-backend/pkg/pagination"
	"github.com/adyeetya/blogs-backend/pkg/storage"
)

type magazineRepository interface {
	Create(ctx context.Context, mag *models.Magazine) error
	FindBySlug(ctx context.Context, slug string) (*models.Magazine, error)
	List(ctx context.Context, p pagination.Params) ([]models.Magazine, int64, error)
	Latest(ctx context.Context, n int) ([]models.Magazine, error)
}

// ingestionStarter launches a background ingestion run and takes ownership of
// the uploaded file.
type ingestionStarter interface {
	Start(ctx context.Context, mag *models.Magazine, pdfPath string) error
}

// Service exposes magazine operations.
type Service interface {
	Create(ctx context.Context, input CreateMagazineInput) (*MagazineDTO, error)
	List(ctx context.Context, p pagination.Params) (pagination.Page[MagazineDTO], error)
	Latest(ctx context.Context) ([]MagazineDTO, error)
	GetBySlug(ctx context.Context, slug string) (*MagazineDTO, error)
	TriggerIngestion(ctx context.Context, slug, pdfPath string) (*MagazineDTO, error)
}

type service struct {
	repo   magazineRepository
	runner ingestionStarter
	logg   *logger.Logger
}

// NewService builds a magazine service.
func NewService(repo magazineRepository, runner ingestionStarter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("magazine repository required")
	}
	if runner == nil {
		return nil, errors.New("ingestion runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, runner: runner, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateMagazineInput) (*MagazineDTO, error) {
	title := strings.TrimSpace(input.Title)
	slug := strings.TrimSpace(input.Slug)

	details := map[string]string{}
	if title == "" {
		details["title"] = "is required"
	}
	if slug == "" {
		details["slug"] = "is required"
	} else if !ValidSlug(slug) {
		details["slug"] = "must be lowercase letters, digits and single hyphens"
	}
	if input.DateOfPublish.IsZero() {
		details["dateOfPublish"] = "is required"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	mag := &models.Magazine{
		Title:         title,
		Slug:          slug,
		DateOfPublish: input.DateOfPublish.UTC(),
		Author:        trimOptional(input.Author),
		Publisher:     trimOptional(input.Publisher),
		CoverSummary:  trimOptional(input.CoverSummary),
		Keywords:      normalizeKeywords(input.Keywords),
		StoragePrefix: storage.PrefixForSlug(slug),
		Status:        enums.MagazineStatusDraft,
		Pages:         models.Pages{},
	}
	if err := s.repo.Create(ctx, mag); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithMagazine(ctx, slug), "magazine created")
	return FromModel(mag), nil
}

func (s *service) List(ctx context.Context, p pagination.Params) (pagination.Page[MagazineDTO], error) {
	p = pagination.Normalize(p)
	rows, total, err := s.repo.List(ctx, p)
	if err != nil {
		return pagination.Page[MagazineDTO]{}, err
	}
	return pagination.NewPage(fromModels(rows), p, total), nil
}

func (s *service) Latest(ctx context.Context) ([]MagazineDTO, error) {
	rows, err := s.repo.Latest(ctx, LatestCount)
	if err != nil {
		return nil, err
	}
	return fromModels(rows), nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*MagazineDTO, error) {
	mag, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return nil, err
	}
	return FromModel(mag), nil
}

// TriggerIngestion hands the uploaded PDF to the runner. The file is removed
// on every error path; on success the runner owns it. The returned magazine
// is in processing.
func (s *service) TriggerIngestion(ctx context.Context, slug, pdfPath string) (*MagazineDTO, error) {
	mag, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		s.discard(ctx, pdfPath)
		return nil, err
	}
	if err := s.runner.Start(ctx, mag, pdfPath); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithMagazine(ctx, mag.Slug), "ingestion started")
	return FromModel(mag), nil
}

func (s *service) discard(ctx context.Context, pdfPath string) {
	if pdfPath == "" {
		return
	}
	if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
		s.logg.Warn(s.logg.WithField(ctx, "path", pdfPath), "failed to remove uploaded pdf")
	}
}
