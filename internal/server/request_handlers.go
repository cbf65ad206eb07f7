package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"shelfshare/pkg/domain"
)

type createRequestRequest struct {
	BookID string `json:"bookId"`
	Type   string `json:"type"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	request, err := s.app.CreateRequest(user, req.BookID, req.Type)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

// handleRequestSubpath routes /request/sent, /request/received,
// /request/{id} and /request/{id}/{accept|reject|cancel}.
func (s *Server) handleRequestSubpath(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/request/"), "/")
	if rest == "" {
		notFound(w, "request not found")
		return
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] == "sent":
		s.listSentRequests(w, r, user)
	case len(parts) == 1 && parts[0] == "received":
		s.listReceivedRequests(w, r, user)
	case len(parts) == 1:
		s.getRequest(w, r, user, parts[0])
	case len(parts) == 2:
		s.transitionRequest(w, r, user, parts[0], parts[1])
	default:
		notFound(w, "request not found")
	}
}

func (s *Server) listSentRequests(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	requests, err := s.app.ListSentRequests(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *Server) listReceivedRequests(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	requests, err := s.app.ListReceivedRequests(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request, user domain.User, requestID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	view, err := s.app.GetRequest(user, requestID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) transitionRequest(w http.ResponseWriter, r *http.Request, user domain.User, requestID, action string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var request domain.BookRequest
	var err error
	switch action {
	case "accept":
		request, err = s.app.AcceptRequest(user, requestID)
	case "reject":
		request, err = s.app.RejectRequest(user, requestID)
	case "cancel":
		request, err = s.app.CancelRequest(user, requestID)
	default:
		notFound(w, "request not found")
		return
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}
