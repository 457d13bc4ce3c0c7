package session

import "time"

// Session is one active login. The refresh credential is stored only as a
// hash; the raw token exists client-side.
type Session struct {
	ID              string
	PrincipalID     string
	RefreshHash     string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastActivityAt  time.Time
	Origin          string
	ClientSignature string
	DeviceID        string
	MFAVerified     bool

	// Revocation record. All three are set together; a session with a
	// non-nil RevokedAt is terminal and never authenticates again.
	RevokedAt    *time.Time
	RevokedBy    string
	RevokeReason string
}

// Revoked reports whether the session reached its terminal state.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether now is past the absolute expiry ceiling.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// TimedOut reports whether the session idled past the inactivity threshold.
// Unlike the absolute ceiling this is extendable by activity.
func (s *Session) TimedOut(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return now.Sub(s.LastActivityAt) > threshold
}

// Handle is what a successful authentication or refresh hands back to the
// transport layer.
type Handle struct {
	SessionID       string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
	MFAPending      bool
}

// LoginInput carries submitted credentials plus client metadata captured at
// the edge.
type LoginInput struct {
	Email           string
	Password        string
	Origin          string
	ClientSignature string
	DeviceID        string
}
