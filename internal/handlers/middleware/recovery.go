package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/nkiryanov/courseauth/internal/handlers/render"
)

// RecoveryMiddleware catches handler panic, logs the stack and answers 500
func RecoveryMiddleware(l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Let net/http abort the response as it does by itself
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				l.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)

				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
