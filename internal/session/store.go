package session

import (
	"context"
	"time"
)

// Store describes session persistence. Implementations return ErrNotFound
// for unknown ids and must treat the revocation record as write-once.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Touch advances last_activity. It never moves the absolute expiry.
	Touch(ctx context.Context, id string, at time.Time) error
	// Rotate atomically swaps the refresh hash and sets the new expiry and
	// activity timestamps. It is the all-or-nothing step of a refresh.
	Rotate(ctx context.Context, id, refreshHash string, expiresAt, at time.Time) error
	MarkMFAVerified(ctx context.Context, id string) error
	// Revoke sets the revocation record. Revoking an already revoked
	// session must leave the original record untouched.
	Revoke(ctx context.Context, id, actor, reason string, at time.Time) error
	RevokeAllForPrincipal(ctx context.Context, principalID, actor, reason string, at time.Time) error
	// SweepExpired revokes sessions past their ceiling or inactivity
	// threshold. Housekeeping only; inline checks stay authoritative.
	SweepExpired(ctx context.Context, now time.Time, inactivity time.Duration) (int, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
}
