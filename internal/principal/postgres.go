package principal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gatehouse.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const principalColumns = `id, email, role, retailer_id, location_id, status,
	password_hash, password_changed_at, mfa_enrolled, mfa_secret, metadata,
	created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, p *Principal) error {
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.Status == "" {
		p.Status = StatusActive
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	meta, _ := json.Marshal(p.Metadata)
	_, err := s.db.ExecContext(ctx, `
		insert into principals(id, email, role, retailer_id, location_id, status,
			password_hash, password_changed_at, mfa_enrolled, mfa_secret, metadata)
		values($1,$2,$3,nullif($4,''),nullif($5,''),$6,$7,now(),$8,$9,$10)`,
		p.ID, p.Email, string(p.Role), p.Scope.RetailerID, p.Scope.LocationID,
		p.Status, p.PasswordHash, p.MFAEnrolled, p.MFASecret, meta,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id=$1`, id)
	return scanPrincipal(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email=$1`, email)
	return scanPrincipal(row)
}

func (s *PGStore) ListByRetailer(ctx context.Context, retailerID string) ([]*Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+principalColumns+` from principals where retailer_id=$1 order by created_at asc`,
		retailerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, id string, upd Update) (*Principal, error) {
	current, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	if upd.Email != nil {
		next.Email = strings.TrimSpace(strings.ToLower(*upd.Email))
	}
	if upd.Role != nil {
		next.Role = *upd.Role
	}
	if upd.Scope != nil {
		next.Scope = *upd.Scope
	}
	if upd.Status != nil {
		next.Status = strings.TrimSpace(strings.ToLower(*upd.Status))
	}
	if upd.PasswordHash != nil {
		next.PasswordHash = *upd.PasswordHash
	}
	if upd.MFAEnrolled != nil {
		next.MFAEnrolled = *upd.MFAEnrolled
	}
	if upd.MFASecret != nil {
		next.MFASecret = *upd.MFASecret
	}
	if upd.Metadata != nil {
		next.Metadata = upd.Metadata
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	meta, _ := json.Marshal(next.Metadata)
	passwordChanged := upd.PasswordHash != nil && *upd.PasswordHash != current.PasswordHash
	res, err := s.db.ExecContext(ctx, `
		update principals set email=$2, role=$3, retailer_id=nullif($4,''),
			location_id=nullif($5,''), status=$6, password_hash=$7,
			password_changed_at=case when $8 then now() else password_changed_at end,
			mfa_enrolled=$9, mfa_secret=$10, metadata=$11, updated_at=now()
		where id=$1`,
		id, next.Email, string(next.Role), next.Scope.RetailerID, next.Scope.LocationID,
		next.Status, next.PasswordHash, passwordChanged, next.MFAEnrolled, next.MFASecret, meta,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *PGStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set status=$2, updated_at=now() where id=$1`,
		id, StatusInactive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var (
		p          Principal
		retailerID sql.NullString
		locationID sql.NullString
		metadata   []byte
	)
	err := row.Scan(&p.ID, &p.Email, &p.Role, &retailerID, &locationID, &p.Status,
		&p.PasswordHash, &p.PasswordChangedAt, &p.MFAEnrolled, &p.MFASecret, &metadata,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("principal: scan: %w", err)
	}
	p.Scope = Scope{RetailerID: retailerID.String, LocationID: locationID.String}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &p.Metadata)
	}
	return &p, nil
}
