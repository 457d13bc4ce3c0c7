package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. Guards on revoked_at in every
// UPDATE keep the revocation record write-once even if callers misbehave.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const sessionColumns = `id, principal_id, refresh_hash, created_at, expires_at,
	last_activity_at, origin, client_signature, device_id, mfa_verified,
	revoked_at, revoked_by, revoke_reason`

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions(id, principal_id, refresh_hash, created_at, expires_at,
			last_activity_at, origin, client_signature, device_id, mfa_verified)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sess.ID, sess.PrincipalID, sess.RefreshHash, sess.CreatedAt, sess.ExpiresAt,
		sess.LastActivityAt, sess.Origin, sess.ClientSignature, sess.DeviceID, sess.MFAVerified,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id)
	var (
		sess      Session
		revokedAt sql.NullTime
		revokedBy sql.NullString
		reason    sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.PrincipalID, &sess.RefreshHash, &sess.CreatedAt,
		&sess.ExpiresAt, &sess.LastActivityAt, &sess.Origin, &sess.ClientSignature,
		&sess.DeviceID, &sess.MFAVerified, &revokedAt, &revokedBy, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
		sess.RevokedBy = revokedBy.String
		sess.RevokeReason = reason.String
	}
	return &sess, nil
}

func (s *PGStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set last_activity_at=$2 where id=$1 and revoked_at is null`,
		id, at)
	return err
}

func (s *PGStore) Rotate(ctx context.Context, id, refreshHash string, expiresAt, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions set refresh_hash=$2, expires_at=$3, last_activity_at=$4
		where id=$1 and revoked_at is null`,
		id, refreshHash, expiresAt, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkMFAVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set mfa_verified=true where id=$1 and revoked_at is null`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Revoke(ctx context.Context, id, actor, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked_at=$2, revoked_by=$3, revoke_reason=$4
		where id=$1 and revoked_at is null`,
		id, at, actor, reason)
	return err
}

func (s *PGStore) RevokeAllForPrincipal(ctx context.Context, principalID, actor, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked_at=$2, revoked_by=$3, revoke_reason=$4
		where principal_id=$1 and revoked_at is null`,
		principalID, at, actor, reason)
	return err
}

func (s *PGStore) SweepExpired(ctx context.Context, now time.Time, inactivity time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set revoked_at=$1, revoked_by='sweeper', revoke_reason='expired'
		where revoked_at is null and (expires_at < $1 or last_activity_at < $2)`,
		now, now.Add(-inactivity))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PGStore) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from sessions where revoked_at is null and expires_at > $1`, now).Scan(&n)
	return n, err
}
