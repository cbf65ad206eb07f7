package util

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderRequestID is the correlation header echoed on every response.
const HeaderRequestID = "X-Request-Id"

type ctxKeyRequestID struct{}

// WithRequestID assigns each request a correlation id. An incoming
// X-Request-Id is reused so callers can stitch traces together; otherwise a
// fresh id is generated. The id lands on the response header, in the request
// context, and on a request-scoped logger reachable via LoggerFromContext.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = NewID()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, id)
		ctx = ContextWithLogger(ctx, slog.Default().With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the correlation id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// RequestIDFromRequest returns the correlation id attached to the request.
func RequestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return RequestIDFromContext(r.Context())
}
