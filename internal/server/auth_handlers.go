package server

import (
	"encoding/json"
	"net/http"

	"shelfshare/internal/app"
	"shelfshare/pkg/domain"
)

type signupRequest struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	PhotoURL    string `json:"photoUrl"`
}

type sessionResponse struct {
	Token string          `json:"token"`
	User  app.UserSummary `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, token, err := s.app.SignUp(app.SignUpInput{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Role:        req.Role,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		// Signup failures are validation problems; the message is safe to
		// return as-is.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: userProfile(user)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: userProfile(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type profileResponse struct {
	ID          string          `json:"id"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	PhotoURL    string          `json:"photoUrl,omitempty"`
	Role        domain.UserRole `json:"role"`
}

func (s *Server) handleProfileView(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, profileView(user))
}

type profileEditRequest struct {
	FullName    *string `json:"fullName"`
	PhoneNumber *string `json:"phoneNumber"`
	PhotoURL    *string `json:"photoUrl"`
}

func (s *Server) handleProfileEdit(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req profileEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	updated, err := s.app.UpdateProfile(user, app.ProfileUpdate{
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profileView(updated))
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleProfilePassword(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req passwordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.app.ChangePassword(user, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func profileView(user domain.User) profileResponse {
	return profileResponse{
		ID:          user.ID,
		FullName:    user.FullName,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		PhotoURL:    user.PhotoURL,
		Role:        user.Role,
	}
}

func userProfile(user domain.User) app.UserSummary {
	return app.UserSummary{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
		PhotoURL: user.PhotoURL,
	}
}
