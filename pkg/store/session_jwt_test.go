package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newHSStore(t *testing.T, secret string, revoker TokenRevoker, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore(secret, time.Hour, revoker, opts)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s := newHSStore(t, "roundtrip-secret", NewMemoryTokenRevoker(), JWTOptions{})

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("expected user-1, got id=%q ok=%v err=%v", userID, ok, err)
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	signer := newHSStore(t, "secret-a", nil, JWTOptions{})
	verifier := newHSStore(t, "secret-b", nil, JWTOptions{})

	token, err := signer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatalf("expected foreign token to be rejected")
	}
	if _, ok, _ := signer.GetUserIDByToken("not-a-jwt"); ok {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestJWTSessionEnforcesAudience(t *testing.T) {
	signer := newHSStore(t, "same-secret", nil, JWTOptions{Audience: "aud-a"})
	verifier := newHSStore(t, "same-secret", nil, JWTOptions{Audience: "aud-b"})

	token, err := signer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionDeleteRevokesJTI(t *testing.T) {
	s := newHSStore(t, "revoke-secret", NewMemoryTokenRevoker(), JWTOptions{})

	first, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	second, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := s.DeleteSession(first); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(first); ok {
		t.Fatalf("expected revoked token to fail")
	}
	// Revocation is per token, not per user.
	if _, ok, _ := s.GetUserIDByToken(second); !ok {
		t.Fatalf("expected sibling session to survive")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	srv := miniredis.RunT(t)
	revoker := NewRedisTokenRevoker(srv.Addr(), "")

	revoked, err := revoker.IsRevoked("jti-1")
	if err != nil || revoked {
		t.Fatalf("expected fresh jti, revoked=%v err=%v", revoked, err)
	}
	if err := revoker.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err = revoker.IsRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked jti, revoked=%v err=%v", revoked, err)
	}

	// The entry expires with the token it shadows.
	srv.FastForward(2 * time.Minute)
	revoked, err = revoker.IsRevoked("jti-1")
	if err != nil || revoked {
		t.Fatalf("expected expiry to clear revocation, revoked=%v err=%v", revoked, err)
	}
}
