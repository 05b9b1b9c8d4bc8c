package middleware

import (
	"fmt"
	"net/http"

	"github.com/adyeetya/blogs-backend/api/responses"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. If the handler had
// already started the response only the log entry is written.
// http.ErrAbortHandler is re-raised so the server aborts the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err := fmt.Errorf("panic: %v", v)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"panic":            fmt.Sprint(v),
						"method":           r.Method,
						"path":             r.URL.Path,
						"response_started": rec.status != 0,
					})
					logg.Error(ctx, "panic.recovered", err)
				}
				if rec.status != 0 {
					return
				}
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
