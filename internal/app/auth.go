package app

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"shelfshare/internal/util"
	"shelfshare/pkg/auth"
	"shelfshare/pkg/domain"
)

// SignUpInput carries the signup form fields.
type SignUpInput struct {
	FullName    string
	Email       string
	PhoneNumber string
	Password    string
	Role        string
	PhotoURL    string
}

// SignUp registers a new user and issues a session token.
func (a *App) SignUp(input SignUpInput) (domain.User, string, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" || email == "" || input.Password == "" {
		return domain.User{}, "", ErrSignupFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, "", fmt.Errorf("invalid email address")
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return domain.User{}, "", err
	}
	role, ok := parseRole(input.Role)
	if !ok {
		return domain.User{}, "", ErrInvalidRole
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return domain.User{}, "", err
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		FullName:     fullName,
		Email:        email,
		PhoneNumber:  strings.TrimSpace(input.PhoneNumber),
		PhotoURL:     strings.TrimSpace(input.PhotoURL),
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token. The error message
// is the same for unknown email and wrong password so accounts cannot be
// enumerated.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves the acting identity for a bearer token. This is the
// access gate: every protected operation receives the resolved user
// explicitly, never through ambient state.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

// ProfileUpdate carries optional profile edits; nil fields are unchanged.
type ProfileUpdate struct {
	FullName    *string
	PhoneNumber *string
	PhotoURL    *string
}

// UpdateProfile applies allowed field edits to the acting user.
func (a *App) UpdateProfile(user domain.User, update ProfileUpdate) (domain.User, error) {
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return domain.User{}, fmt.Errorf("full name cannot be empty")
		}
		user.FullName = name
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*update.PhoneNumber)
	}
	if update.PhotoURL != nil {
		user.PhotoURL = strings.TrimSpace(*update.PhotoURL)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (a *App) ChangePassword(user domain.User, current, next string) error {
	if !auth.CheckPassword(current, user.PasswordHash) {
		return ErrWrongPassword
	}
	if err := auth.ValidatePassword(next); err != nil {
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func parseRole(role string) (domain.UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", string(domain.RoleSeeker):
		return domain.RoleSeeker, true
	case string(domain.RoleOwner):
		return domain.RoleOwner, true
	default:
		return "", false
	}
}

func summarize(user domain.User) UserSummary {
	return UserSummary{
		ID:       user.ID,
		FullName: user.FullName,
		Email:    user.Email,
		PhotoURL: user.PhotoURL,
	}
}
