package magazines

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adyeetya/blogs-backend/pkg/db"
	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/enums"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/pagination"
)

const (
	slugConstraint       = "magazines_slug_key"
	sqliteSlugConstraint = "magazines.slug"
)

// Repository handles magazine persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to magazine operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new magazine row.
func (r *Repository) Create(ctx context.Context, mag *models.Magazine) error {
	if mag == nil {
		return errors.New("magazine is required")
	}
	if err := r.db.WithContext(ctx).Create(mag).Error; err != nil {
		if db.IsUniqueViolation(err, slugConstraint) || db.IsUniqueViolation(err, sqliteSlugConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "slug already taken")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create magazine")
	}
	return nil
}

// FindBySlug loads a magazine by its slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Magazine, error) {
	var mag models.Magazine
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&mag).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "magazine not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load magazine")
	}
	return &mag, nil
}

// FindByID loads a magazine by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Magazine, error) {
	var mag models.Magazine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&mag).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "magazine not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load magazine")
	}
	return &mag, nil
}

// List returns one page of magazines, newest first, with the total row count.
func (r *Repository) List(ctx context.Context, p pagination.Params) ([]models.Magazine, int64, error) {
	p = pagination.Normalize(p)
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Magazine{}).Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count magazines")
	}
	var rows []models.Magazine
	if err := r.newest(ctx).Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list magazines")
	}
	return rows, total, nil
}

// Latest returns the n most recently created magazines.
func (r *Repository) Latest(ctx context.Context, n int) ([]models.Magazine, error) {
	var rows []models.Magazine
	if err := r.newest(ctx).Limit(n).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list latest magazines")
	}
	return rows, nil
}

func (r *Repository) newest(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
}

// MarkProcessing moves the magazine into processing and clears the last error.
// Pages from an earlier run are kept until a new run succeeds.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Magazine{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                enums.MagazineStatusProcessing,
			"processing_started_at": startedAt,
			"last_error":            nil,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark magazine processing")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "magazine not found")
	}
	return nil
}

// SaveSourceDocument records the uploaded PDF while the run is in flight.
func (r *Repository) SaveSourceDocument(ctx context.Context, id uuid.UUID, doc models.SourceDocument) error {
	res := r.db.WithContext(ctx).
		Model(&models.Magazine{}).
		Where("id = ? AND status = ?", id, enums.MagazineStatusProcessing).
		Update("source_document", doc)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "save source document")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "magazine is not processing")
	}
	return nil
}

// MarkReady replaces the page set and completes the run in one statement.
// It refuses to complete a magazine that has no source document.
func (r *Repository) MarkReady(ctx context.Context, id uuid.UUID, pages models.Pages, coverURL string) error {
	if len(pages) == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "ready requires at least one page")
	}
	if err := pages.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid page set")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Magazine{}).
		Where("id = ? AND status = ? AND source_document IS NOT NULL", id, enums.MagazineStatusProcessing).
		Updates(map[string]any{
			"status":          enums.MagazineStatusReady,
			"pages":           pages,
			"page_count":      len(pages),
			"cover_image_url": coverURL,
			"last_error":      nil,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark magazine ready")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "magazine is not processing or has no source document")
	}
	return nil
}

// MarkFailed ends the run as failed. Pages and page count stay as they were.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Magazine{}).
		Where("id = ? AND status = ?", id, enums.MagazineStatusProcessing).
		Updates(map[string]any{
			"status":     enums.MagazineStatusFailed,
			"last_error": lastError,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark magazine failed")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "magazine is not processing")
	}
	return nil
}

// FindStaleProcessing returns magazines that entered processing before cutoff.
func (r *Repository) FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.Magazine, error) {
	var rows []models.Magazine
	if err := r.db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ?", enums.MagazineStatusProcessing, cutoff).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale magazines")
	}
	return rows, nil
}

// MarkStaleFailed fails a magazine only if it is still processing from before
// cutoff. It reports whether the row changed.
func (r *Repository) MarkStaleFailed(ctx context.Context, id uuid.UUID, cutoff time.Time, lastError string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Magazine{}).
		Where("id = ? AND status = ? AND processing_started_at < ?", id, enums.MagazineStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     enums.MagazineStatusFailed,
			"last_error": lastError,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark stale magazine failed")
	}
	return res.RowsAffected > 0, nil
}
