package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"drivestore/internal/domain"
	"drivestore/internal/httputil"
)

// Recovery turns a handler panic into a 500 problem response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("handler panicked",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				httputil.RespondErrorWithExtras(w, http.StatusInternalServerError, "internal server error", map[string]interface{}{
					"kind": domain.KindInternal,
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
