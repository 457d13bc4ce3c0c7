package session

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// totpCodeForTest derives the current code the way an authenticator app would.
func totpCodeForTest(secret string, now time.Time) string {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		panic(err)
	}
	return hotp(key, uint64(now.Unix()/int64(totpStep/time.Second)))
}

func TestNewMFASecretShape(t *testing.T) {
	secret, err := NewMFASecret()
	if err != nil {
		t.Fatalf("NewMFASecret: %v", err)
	}
	if strings.Contains(secret, "=") {
		t.Fatal("secret must not carry base32 padding")
	}
	if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret); err != nil {
		t.Fatalf("secret must decode as base32: %v", err)
	}
}

func TestVerifyTOTP(t *testing.T) {
	secret, err := NewMFASecret()
	if err != nil {
		t.Fatalf("NewMFASecret: %v", err)
	}
	now := time.Date(2025, 6, 2, 10, 0, 15, 0, time.UTC)

	if !verifyTOTP(secret, totpCodeForTest(secret, now), now) {
		t.Fatal("current code must verify")
	}
	if !verifyTOTP(secret, totpCodeForTest(secret, now.Add(-totpStep)), now) {
		t.Fatal("previous step must verify inside skew")
	}
	if !verifyTOTP(secret, totpCodeForTest(secret, now.Add(totpStep)), now) {
		t.Fatal("next step must verify inside skew")
	}
	if verifyTOTP(secret, totpCodeForTest(secret, now.Add(-2*totpStep)), now) {
		t.Fatal("code two steps back must be rejected")
	}
	if verifyTOTP(secret, "123", now) {
		t.Fatal("short code must be rejected")
	}
	if verifyTOTP("not base32!!", "123456", now) {
		t.Fatal("undecodable secret must be rejected")
	}
}

func TestHOTPKnownVectors(t *testing.T) {
	// RFC 4226 appendix D, secret "12345678901234567890".
	key := []byte("12345678901234567890")
	want := map[uint64]string{
		0: "755224",
		1: "287082",
		5: "254676",
		9: "520489",
	}
	for counter, code := range want {
		if got := hotp(key, counter); got != code {
			t.Fatalf("counter %d: want %s, got %s", counter, code, got)
		}
	}
}
