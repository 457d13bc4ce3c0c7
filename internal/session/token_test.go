package session

import (
	"errors"
	"testing"
	"time"
)

func tokenManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(newMemPrincipals(), newMemSessions(), "unit-test-secret", WithClock(clock.now))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := newFakeClock()
	m := tokenManager(t, clock)
	s := &Session{ID: "sess-1", PrincipalID: "prin-1"}

	token, exp, err := m.signAccessToken(s, "retailer", clock.now())
	if err != nil {
		t.Fatalf("signAccessToken: %v", err)
	}
	if !exp.Equal(clock.now().Add(m.accessTTL)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	claims, err := m.parseAccessToken(token)
	if err != nil {
		t.Fatalf("parseAccessToken: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.Subject != "prin-1" || claims.Role != "retailer" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	clock := newFakeClock()
	m := tokenManager(t, clock)
	s := &Session{ID: "sess-1", PrincipalID: "prin-1"}

	token, _, err := m.signAccessToken(s, "retailer", clock.now())
	if err != nil {
		t.Fatalf("signAccessToken: %v", err)
	}
	clock.advance(m.accessTTL + time.Minute)
	if _, err := m.parseAccessToken(token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	clock := newFakeClock()
	m := tokenManager(t, clock)
	other, err := NewManager(newMemPrincipals(), newMemSessions(), "different-secret", WithClock(clock.now))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	s := &Session{ID: "sess-1", PrincipalID: "prin-1"}

	token, _, err := m.signAccessToken(s, "retailer", clock.now())
	if err != nil {
		t.Fatalf("signAccessToken: %v", err)
	}
	if _, err := other.parseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseAccessTokenGarbage(t *testing.T) {
	clock := newFakeClock()
	m := tokenManager(t, clock)

	for _, token := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, err := m.parseAccessToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestRefreshCredential(t *testing.T) {
	token, hash, err := newRefreshCredential("sess-1")
	if err != nil {
		t.Fatalf("newRefreshCredential: %v", err)
	}
	id, secret, err := splitRefreshToken(token)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}
	if id != "sess-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if hashRefreshSecret(secret) != hash {
		t.Fatal("hash must match the embedded secret")
	}
	if token == "sess-1."+hash {
		t.Fatal("the raw secret must not equal its hash")
	}
}

func TestSplitRefreshTokenRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "nodot", ".secret", "id.", "a.b.c"} {
		if _, _, err := splitRefreshToken(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}
