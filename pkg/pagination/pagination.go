package pagination

import (
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultPage is used when the page parameter is missing or invalid.
	DefaultPage = 1
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 10
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
	// MaxPage keeps (Page-1)*Limit inside a 32-bit offset.
	MaxPage = math.MaxInt32 / MaxLimit
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Page describes one page of results together with its position in the set.
type Page[T any] struct {
	Items       []T   `json:"items"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// ParseParams reads raw query values. Anything that is not a positive
// integer falls back to the default; limits above MaxLimit fall back too.
func ParseParams(rawPage, rawLimit string) Params {
	return Normalize(Params{
		Page:  atoiOr(rawPage, DefaultPage),
		Limit: atoiOr(rawLimit, DefaultLimit),
	})
}

// Normalize enforces defaults and bounds.
func Normalize(p Params) Params {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		p.Limit = DefaultLimit
	}
	return p
}

// Offset returns the row offset for the page.
func (p Params) Offset() int {
	p = Normalize(p)
	return (p.Page - 1) * p.Limit
}

// NewPage assembles the page envelope for the given slice and total row count.
func NewPage[T any](items []T, p Params, total int64) Page[T] {
	p = Normalize(p)
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Page[T]{
		Items:       items,
		Page:        p.Page,
		Limit:       p.Limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: p.Page < totalPages,
		HasPrevPage: p.Page > 1,
	}
}

func atoiOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
