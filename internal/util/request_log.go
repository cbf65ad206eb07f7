package util

import (
	"net/http"
	"time"
)

// loggingWriter remembers the status code and body size written downstream.
type loggingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *loggingWriter) statusOr200() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// WithRequestLog writes one structured access line per request, carrying the
// correlation id so lines join up with application logs.
func WithRequestLog(service string, next http.Handler) http.Handler {
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lw := &loggingWriter{ResponseWriter: w}
		start := time.Now()
		defer func() {
			LoggerFromContext(r.Context()).Info("http_request",
				"service", service,
				"method", r.Method,
				"path", r.URL.Path,
				"status", lw.statusOr200(),
				"bytes", lw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFromRequest(r),
			)
		}()
		next.ServeHTTP(lw, r)
	})
}
