package session

import "errors"

// Authentication failures are recovered at the boundary and surfaced as one
// of these typed results, never as an unhandled fault. Unknown-account and
// wrong-password deliberately collapse into ErrInvalidCredentials.
var (
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrAccountSuspended   = errors.New("session: account suspended")
	ErrMFARequired        = errors.New("session: mfa verification required")
	ErrSessionExpired     = errors.New("session: expired")
	ErrSessionRevoked     = errors.New("session: revoked")
	ErrRateLimited        = errors.New("session: rate limited")
	ErrNotFound           = errors.New("session: not found")
)
