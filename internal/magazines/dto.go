package magazines

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adyeetya/blogs-backend/pkg/db/models"
	"github.com/adyeetya/blogs-backend/pkg/enums"
)

const (
	// LatestCount is how many magazines the latest listing returns.
	LatestCount = 3
	dateLayout  = "2006-01-02"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether slug is lowercase, url safe and hyphen separated.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// PublishDate accepts either a calendar date or an RFC 3339 timestamp.
type PublishDate struct {
	time.Time
}

func (d *PublishDate) UnmarshalJSON(raw []byte) error {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return err
	}
	d.Time = t.UTC()
	return nil
}

// CreateMagazineRequest is the body of POST /api/v1/magazines.
type CreateMagazineRequest struct {
	Title         string      `json:"title" validate:"required,max=300"`
	Slug          string      `json:"slug" validate:"required,max=120,slug"`
	DateOfPublish PublishDate `json:"dateOfPublish" validate:"required"`
	Author        *string     `json:"author,omitempty" validate:"omitempty,max=200"`
	Publisher     *string     `json:"publisher,omitempty" validate:"omitempty,max=200"`
	CoverSummary  *string     `json:"coverSummary,omitempty" validate:"omitempty,max=2000"`
	Keywords      []string    `json:"keywords,omitempty" validate:"omitempty,max=50,dive,required,max=64"`
}

// ToInput maps the request body into service input.
func (r CreateMagazineRequest) ToInput() CreateMagazineInput {
	return CreateMagazineInput{
		Title:         r.Title,
		Slug:          r.Slug,
		DateOfPublish: r.DateOfPublish.Time,
		Author:        r.Author,
		Publisher:     r.Publisher,
		CoverSummary:  r.CoverSummary,
		Keywords:      r.Keywords,
	}
}

// CreateMagazineInput holds creation-time data for a magazine.
type CreateMagazineInput struct {
	Title         string
	Slug          string
	DateOfPublish time.Time
	Author        *string
	Publisher     *string
	CoverSummary  *string
	Keywords      []string
}

// MagazineDTO exposes a magazine in API responses.
type MagazineDTO struct {
	ID             uuid.UUID              `json:"id"`
	Title          string                 `json:"title"`
	Slug           string                 `json:"slug"`
	DateOfPublish  time.Time              `json:"dateOfPublish"`
	Author         *string                `json:"author,omitempty"`
	Publisher      *string                `json:"publisher,omitempty"`
	CoverSummary   *string                `json:"coverSummary,omitempty"`
	Keywords       []string               `json:"keywords"`
	Status         enums.MagazineStatus   `json:"status"`
	SourceDocument *models.SourceDocument `json:"sourceDocument,omitempty"`
	Pages          []models.Page          `json:"pages"`
	PageCount      int                    `json:"pageCount"`
	CoverImageURL  *string                `json:"coverImageUrl,omitempty"`
	LastError      *string                `json:"lastError,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// FromModel maps the persisted magazine into a DTO.
func FromModel(m *models.Magazine) *MagazineDTO {
	if m == nil {
		return nil
	}
	dto := &MagazineDTO{
		ID:            m.ID,
		Title:         m.Title,
		Slug:          m.Slug,
		DateOfPublish: m.DateOfPublish,
		Author:        m.Author,
		Publisher:     m.Publisher,
		CoverSummary:  m.CoverSummary,
		Keywords:      append([]string{}, m.Keywords...),
		Status:        m.Status,
		Pages:         append([]models.Page{}, m.Pages...),
		PageCount:     m.PageCount,
		CoverImageURL: m.CoverImageURL,
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.SourceDocument != nil {
		cpy := *m.SourceDocument
		dto.SourceDocument = &cpy
	}
	return dto
}

func fromModels(rows []models.Magazine) []MagazineDTO {
	out := make([]MagazineDTO, len(rows))
	for i := range rows {
		out[i] = *FromModel(&rows[i])
	}
	return out
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
