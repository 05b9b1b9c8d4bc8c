package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/adyeetya/blogs-backend/pkg/db/types"
	"github.com/adyeetya/blogs-backend/pkg/enums"
)

// Magazine is one uploaded issue and its ingestion lifecycle.
type Magazine struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title               string               `gorm:"column:title;not null" json:"title"`
	Slug                string               `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	DateOfPublish       time.Time            `gorm:"column:date_of_publish;not null" json:"dateOfPublish"`
	Author              *string              `gorm:"column:author" json:"author,omitempty"`
	Publisher           *string              `gorm:"column:publisher" json:"publisher,omitempty"`
	CoverSummary        *string              `gorm:"column:cover_summary" json:"coverSummary,omitempty"`
	Keywords            Keywords             `gorm:"column:keywords" json:"keywords"`
	StoragePrefix       string               `gorm:"column:storage_prefix;not null" json:"storagePrefix"`
	Status              enums.MagazineStatus `gorm:"column:status;not null;default:draft;index" json:"status"`
	SourceDocument      *SourceDocument      `gorm:"column:source_document" json:"sourceDocument,omitempty"`
	Pages               Pages                `gorm:"column:pages" json:"pages"`
	PageCount           int                  `gorm:"column:page_count;not null;default:0" json:"pageCount"`
	CoverImageURL       *string              `gorm:"column:cover_image_url" json:"coverImageUrl,omitempty"`
	LastError           *string              `gorm:"column:last_error" json:"lastError,omitempty"`
	ProcessingStartedAt *time.Time           `gorm:"column:processing_started_at" json:"processingStartedAt,omitempty"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime;index" json:"createdAt"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Magazine) TableName() string { return "magazines" }

// BeforeCreate assigns the id client-side so sqlite and postgres behave the same.
func (m *Magazine) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Pages == nil {
		m.Pages = Pages{}
	}
	if m.Keywords == nil {
		m.Keywords = Keywords{}
	}
	return nil
}

// Page is one transcoded page image. It has no identity outside its magazine.
type Page struct {
	Index     int              `json:"index"`
	Key       string           `json:"key"`
	URL       string           `json:"url"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	SizeBytes int64            `json:"sizeBytes"`
	Format    enums.PageFormat `json:"format"`
}

// Pages is stored as a JSON array column.
type Pages []Page

func (Pages) GormDataType() string { return "json" }

func (p *Pages) Scan(src any) error {
	var out Pages
	if err := dbtypes.ScanJSON(src, &out); err != nil {
		return fmt.Errorf("pages: %w", err)
	}
	if out == nil {
		out = Pages{}
	}
	*p = out
	return nil
}

func (p Pages) Value() (driver.Value, error) {
	if p == nil {
		return dbtypes.ValueJSON([]Page{})
	}
	return dbtypes.ValueJSON([]Page(p))
}

// Validate checks the ordering invariant: indexes run 0..len-1 with no gaps or repeats.
func (p Pages) Validate() error {
	for i, page := range p {
		if page.Index != i {
			return fmt.Errorf("page at position %d has index %d", i, page.Index)
		}
		if page.URL == "" || page.Key == "" {
			return fmt.Errorf("page %d is missing its storage location", i)
		}
	}
	return nil
}

// SourceDocument locates the raw uploaded PDF.
type SourceDocument struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"sizeBytes"`
}

func (SourceDocument) GormDataType() string { return "json" }

func (s *SourceDocument) Scan(src any) error {
	if err := dbtypes.ScanJSON(src, s); err != nil {
		return fmt.Errorf("source document: %w", err)
	}
	return nil
}

func (s SourceDocument) Value() (driver.Value, error) {
	return dbtypes.ValueJSON(s)
}

// Keywords is stored as a JSON array column.
type Keywords []string

func (Keywords) GormDataType() string { return "json" }

func (k *Keywords) Scan(src any) error {
	var out Keywords
	if err := dbtypes.ScanJSON(src, &out); err != nil {
		return fmt.Errorf("keywords: %w", err)
	}
	if out == nil {
		out = Keywords{}
	}
	*k = out
	return nil
}

func (k Keywords) Value() (driver.Value, error) {
	if k == nil {
		return dbtypes.ValueJSON([]string{})
	}
	return dbtypes.ValueJSON([]string(k))
}
