package validators

import (
	"net/http"
	"strings"

	"github.com/adyeetya/blogs-backend/pkg/pagination"
)

// ParsePagination reads page and limit query parameters. Invalid values fall
// back to the defaults instead of failing the request.
func ParsePagination(r *http.Request) pagination.Params {
	q := r.URL.Query()
	return pagination.ParseParams(strings.TrimSpace(q.Get("page")), strings.TrimSpace(q.Get("limit")))
}
