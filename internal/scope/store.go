package scope

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gatehouse.org/internal/ids"
	"gatehouse.org/internal/principal"
)

// Row is the scope-relevant projection of a partitioned entity. Business
// attributes ride along as an opaque document; this layer cares only about
// the partition columns.
type Row struct {
	ID         string
	RetailerID string
	LocationID string
	Attrs      map[string]any
}

// Store is the single data access path for partitioned entities. Every read
// conjoins the caller's predicate into the query, and every write verifies
// the target row and the written values against the predicate in one
// statement, so no entry point can bypass the boundary and no partial
// mutation is observable on rejection.
type Store struct {
	db     *sql.DB
	tables map[EntityClass]string
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db: db,
		tables: map[EntityClass]string{
			EntityCustomer: "customers",
			EntityOrder:    "orders",
			EntityClaim:    "claims",
			EntityShipment: "shipments",
		},
	}
}

func (s *Store) table(entity EntityClass) (string, error) {
	t, ok := s.tables[entity]
	if !ok {
		return "", fmt.Errorf("scope: unknown entity class %q", entity)
	}
	return t, nil
}

// Get returns the row only when it lies inside the caller's boundary. A row
// that exists outside the boundary surfaces as ErrForbidden with no data.
func (s *Store) Get(ctx context.Context, p *principal.Principal, entity EntityClass, id string) (*Row, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	pred, err := ForPrincipal(p, entity)
	if err != nil {
		return nil, err
	}
	clause, args := pred.SQL(2)
	query := fmt.Sprintf(
		`select id, retailer_id, location_id, attrs from %s where id=$1 and %s`, table, clause)
	row := s.db.QueryRowContext(ctx, query, append([]any{id}, args...)...)
	out, err := scanRow(row)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	// Distinguish absent from out-of-scope so callers can return Forbidden
	// without leaking the row itself.
	var n int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select count(*) from %s where id=$1`, table), id).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrForbidden
	}
	return nil, ErrNotFound
}

// List returns every row inside the caller's boundary.
func (s *Store) List(ctx context.Context, p *principal.Principal, entity EntityClass) ([]*Row, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	pred, err := ForPrincipal(p, entity)
	if err != nil {
		return nil, err
	}
	clause, args := pred.SQL(1)
	query := fmt.Sprintf(
		`select id, retailer_id, location_id, attrs from %s where %s order by id asc`, table, clause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Insert creates a row after checking the written scope against the caller's
// predicate. Location-scoped writers may only create rows at their own
// location; out-of-boundary values are rejected before any statement runs.
func (s *Store) Insert(ctx context.Context, p *principal.Principal, entity EntityClass, r *Row) error {
	table, err := s.table(entity)
	if err != nil {
		return err
	}
	pred, err := ForPrincipal(p, entity)
	if err != nil {
		return err
	}
	if !pred.Matches(r.RetailerID, r.LocationID) {
		return ErrForbidden
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	attrs, _ := json.Marshal(r.Attrs)
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`insert into %s(id, retailer_id, location_id, attrs) values($1,$2,$3,$4)`, table),
		r.ID, r.RetailerID, r.LocationID, attrs)
	return err
}

// Update rewrites a row in one statement whose WHERE conjoins the caller's
// predicate, so the current row must be in scope, and the written values are
// checked against the same predicate, so the row cannot be moved out of
// boundary (or into somebody else's). Rejection happens before mutation.
func (s *Store) Update(ctx context.Context, p *principal.Principal, entity EntityClass, r *Row) error {
	table, err := s.table(entity)
	if err != nil {
		return err
	}
	pred, err := ForPrincipal(p, entity)
	if err != nil {
		return err
	}
	if !pred.Matches(r.RetailerID, r.LocationID) {
		return ErrForbidden
	}
	attrs, _ := json.Marshal(r.Attrs)
	clause, args := pred.SQL(5)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`update %s set retailer_id=$2, location_id=$3, attrs=$4 where id=$1 and %s`, table, clause),
		append([]any{r.ID, r.RetailerID, r.LocationID, attrs}, args...)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrForbidden
	}
	return nil
}

// Delete removes a row inside the caller's boundary.
func (s *Store) Delete(ctx context.Context, p *principal.Principal, entity EntityClass, id string) error {
	table, err := s.table(entity)
	if err != nil {
		return err
	}
	pred, err := ForPrincipal(p, entity)
	if err != nil {
		return err
	}
	clause, args := pred.SQL(2)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`delete from %s where id=$1 and %s`, table, clause),
		append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrForbidden
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (*Row, error) {
	var (
		r     Row
		attrs []byte
	)
	if err := sc.Scan(&r.ID, &r.RetailerID, &r.LocationID, &attrs); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		_ = json.Unmarshal(attrs, &r.Attrs)
	}
	return &r, nil
}
