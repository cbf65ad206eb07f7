package app

import (
	"errors"
	"testing"

	"shelfshare/pkg/domain"
)

func validSignup(name string) SignUpInput {
	return SignUpInput{
		FullName: name,
		Email:    name + "@example.com",
		Password: "sturdy-pass1",
	}
}

func TestSignUpIssuesWorkingSession(t *testing.T) {
	app, _, _ := newTestApp(t)

	user, token, err := app.SignUp(validSignup("alice"))
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.Role != domain.RoleSeeker {
		t.Fatalf("expected default seeker role, got %s", user.Role)
	}
	resolved, ok := app.UserFromToken(token)
	if !ok || resolved.ID != user.ID {
		t.Fatalf("expected token to resolve the new user, ok=%v", ok)
	}
}

func TestSignUpValidation(t *testing.T) {
	app, _, _ := newTestApp(t)

	missing := validSignup("bob")
	missing.FullName = ""
	if _, _, err := app.SignUp(missing); !errors.Is(err, ErrSignupFields) {
		t.Fatalf("expected missing fields error, got %v", err)
	}

	badEmail := validSignup("bob")
	badEmail.Email = "not-an-email"
	if _, _, err := app.SignUp(badEmail); err == nil {
		t.Fatalf("expected invalid email to fail")
	}

	weak := validSignup("bob")
	weak.Password = "short1"
	if _, _, err := app.SignUp(weak); err == nil {
		t.Fatalf("expected weak password to fail")
	}

	badRole := validSignup("bob")
	badRole.Role = "librarian"
	if _, _, err := app.SignUp(badRole); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role error, got %v", err)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	app, _, _ := newTestApp(t)

	if _, _, err := app.SignUp(validSignup("carol")); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	again := validSignup("carol")
	again.Email = "Carol@Example.com" // emails are case-insensitive
	if _, _, err := app.SignUp(again); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	app, _, _ := newTestApp(t)

	if _, _, err := app.SignUp(validSignup("dave")); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	_, _, unknownErr := app.Login("nobody@example.com", "sturdy-pass1")
	_, _, wrongErr := app.Login("dave@example.com", "wrong-pass1")
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected identical credential errors, got %v and %v", unknownErr, wrongErr)
	}

	if _, _, err := app.Login("DAVE@example.com", "sturdy-pass1"); err != nil {
		t.Fatalf("expected case-insensitive email login, got %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	app, _, _ := newTestApp(t)

	_, token, err := app.SignUp(validSignup("erin"))
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := app.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := app.UserFromToken(token); ok {
		t.Fatalf("expected revoked token to be rejected")
	}
}

func TestChangePassword(t *testing.T) {
	app, _, _ := newTestApp(t)

	user, _, err := app.SignUp(validSignup("frank"))
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	if err := app.ChangePassword(user, "wrong-pass1", "next-pass-22"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected wrong password error, got %v", err)
	}
	if err := app.ChangePassword(user, "sturdy-pass1", "weak"); err == nil {
		t.Fatalf("expected weak new password to fail")
	}
	if err := app.ChangePassword(user, "sturdy-pass1", "next-pass-22"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, _, err := app.Login(user.Email, "sturdy-pass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, _, err := app.Login(user.Email, "next-pass-22"); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	app, _, _ := newTestApp(t)

	user, _, err := app.SignUp(validSignup("grace"))
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	name := "Grace Hopper"
	phone := "+351 900 000 000"
	updated, err := app.UpdateProfile(user, ProfileUpdate{FullName: &name, PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.FullName != name || updated.PhoneNumber != phone {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	empty := "   "
	if _, err := app.UpdateProfile(updated, ProfileUpdate{FullName: &empty}); err == nil {
		t.Fatalf("expected empty name to fail")
	}
}
