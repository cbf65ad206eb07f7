package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"shelfshare/internal/app"
	"shelfshare/internal/ratelimit"
	"shelfshare/internal/util"
	"shelfshare/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	limiter        *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("shelfshare", util.WithSecurityHeaders(util.WithCORS(s.withRateLimit(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth + profile
	s.mux.HandleFunc("/signup", s.handleSignup)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.Handle("/profile/view", s.withUser(s.handleProfileView))
	s.mux.Handle("/profile/edit", s.withUser(s.handleProfileEdit))
	s.mux.Handle("/profile/password", s.withUser(s.handleProfilePassword))

	// catalog
	s.mux.HandleFunc("/book", s.handleBooks)
	s.mux.HandleFunc("/book/", s.handleBookByID)
	s.mux.Handle("/my-books", s.withUser(s.handleMyBooks))
	s.mux.Handle("/my-rented-books", s.withUser(s.handleMyRentedBooks))
	s.mux.Handle("/my-exchanged-books", s.withUser(s.handleMyExchangedBooks))

	// request ledger
	s.mux.Handle("/request", s.withUser(s.handleCreateRequest))
	s.mux.Handle("/request/", s.withUser(s.handleRequestSubpath))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser authenticates the caller and passes the resolved identity to the
// handler explicitly.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := util.ClientIP(r, s.trustedProxies)
		if !s.limiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// writeAppError maps app sentinel errors onto HTTP statuses; anything else
// is an infrastructure failure and surfaces as a 500 without leaking
// internals.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrBookNotFound),
		errors.Is(err, app.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNotBookOwner),
		errors.Is(err, app.ErrNotReturnable),
		errors.Is(err, app.ErrNotRequestOwner),
		errors.Is(err, app.ErrNotRequester),
		errors.Is(err, app.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrRequestNotPending),
		errors.Is(err, app.ErrBookNotRented),
		errors.Is(err, app.ErrOwnBookRequest),
		errors.Is(err, app.ErrDuplicateRequest),
		errors.Is(err, app.ErrInvalidRequestTyp),
		errors.Is(err, app.ErrBookFieldsMissing),
		errors.Is(err, app.ErrSignupFields),
		errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrWrongPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == app.ErrInvalidCredentials.Error():
		return "AUTH_INVALID_CREDENTIALS"
	case message == app.ErrEmailAlreadyExists.Error():
		return "AUTH_EMAIL_EXISTS"
	case message == app.ErrBookNotFound.Error():
		return "BOOK_NOT_FOUND"
	case message == app.ErrNotBookOwner.Error():
		return "BOOK_FORBIDDEN"
	case message == app.ErrBookNotRented.Error():
		return "BOOK_NOT_RENTED"
	case message == app.ErrNotReturnable.Error():
		return "BOOK_RETURN_FORBIDDEN"
	case message == app.ErrRequestNotFound.Error():
		return "REQUEST_NOT_FOUND"
	case message == app.ErrOwnBookRequest.Error():
		return "REQUEST_OWN_BOOK"
	case message == app.ErrDuplicateRequest.Error():
		return "REQUEST_DUPLICATE_PENDING"
	case message == app.ErrRequestNotPending.Error():
		return "REQUEST_NOT_PENDING"
	case message == app.ErrNotRequestOwner.Error(),
		message == app.ErrNotRequester.Error(),
		message == app.ErrNotParticipant.Error():
		return "REQUEST_FORBIDDEN"
	case message == "too many requests":
		return "SYSTEM_RATE_LIMITED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "invalid json body":
		return "SYSTEM_INVALID_REQUEST"
	}

	switch status {
	case http.StatusBadRequest:
		return "SYSTEM_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "SYSTEM_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}
