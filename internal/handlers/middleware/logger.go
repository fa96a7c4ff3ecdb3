package middleware

import (
	"net/http"
	"time"
)

type requestLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type logWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	size, err := w.ResponseWriter.Write(p)
	w.size += size
	return size, err
}

// Only the first status counts, as for the underlying writer
func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	if !w.wroteHeader {
		w.status = statusCode
		w.wroteHeader = true
	}
}

// Used by http.ResponseController
func (w *logWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// LoggerMiddleware logs every request once it is served.
// Client errors go to warn, server errors to error level; the query string is never logged
func LoggerMiddleware(l requestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &logWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(lw, r)

			log := l.Info
			switch {
			case lw.status >= http.StatusInternalServerError:
				log = l.Error
			case lw.status >= http.StatusBadRequest:
				log = l.Warn
			}

			log(
				"http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"duration", time.Since(start),
				"status", lw.status,
				"size", lw.size,
			)
		})
	}
}
