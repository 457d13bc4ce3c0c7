package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"gatehouse.org/internal/principal"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "retailer_id", "location_id", "attrs"})
}

// Scenario: a retailer principal requesting a row owned by another retailer
// is denied with Forbidden and no data.
func TestGetOutOfScopeIsForbidden(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleRetailer, "R1", "")

	mock.ExpectQuery("select id, retailer_id, location_id, attrs from orders where id=.* and retailer_id =").
		WithArgs("o1", "R1").
		WillReturnRows(orderRows())
	mock.ExpectQuery("select count").WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	row, err := store.Get(context.Background(), p, EntityOrder, "o1")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if row != nil {
		t.Fatal("no data may be returned on denial")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAbsentRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleRetailer, "R1", "")

	mock.ExpectQuery("select id, retailer_id, location_id, attrs from orders").
		WithArgs("ghost", "R1").
		WillReturnRows(orderRows())
	mock.ExpectQuery("select count").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := store.Get(context.Background(), p, EntityOrder, "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetInScope(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleLocationUser, "R1", "L1")

	mock.ExpectQuery("select id, retailer_id, location_id, attrs from claims where id=.* and retailer_id = .* and location_id =").
		WithArgs("c1", "R1", "L1").
		WillReturnRows(orderRows().AddRow("c1", "R1", "L1", []byte(`{"status":"open"}`)))

	row, err := store.Get(context.Background(), p, EntityClaim, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Attrs["status"] != "open" {
		t.Fatalf("attrs not decoded: %v", row.Attrs)
	}
}

func TestListConjoinsPredicate(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleRetailer, "R1", "")

	mock.ExpectQuery("select id, retailer_id, location_id, attrs from customers where retailer_id = ").
		WithArgs("R1").
		WillReturnRows(orderRows().
			AddRow("c1", "R1", "L1", []byte(`{}`)).
			AddRow("c2", "R1", "L2", []byte(`{}`)))

	rows, err := store.List(context.Background(), p, EntityCustomer)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestListFullVisibilityForBackoffice(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleBackoffice, "", "")

	mock.ExpectQuery("select id, retailer_id, location_id, attrs from shipments where true").
		WillReturnRows(orderRows().AddRow("s1", "R9", "L9", []byte(`{}`)))

	rows, err := store.List(context.Background(), p, EntityShipment)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

// A location_user reassigning a customer to a different retailer is rejected
// before any statement runs — no partial writes.
func TestUpdateCannotMoveRowOutOfScope(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleLocationUser, "R1", "L1")

	err := store.Update(context.Background(), p, EntityCustomer,
		&Row{ID: "c1", RetailerID: "R2", LocationID: "L5"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL may be issued on rejection: %v", err)
	}
}

// Changing only the retailer while keeping the caller's own location id is
// still a cross-partition move and must be rejected.
func TestUpdateCannotChangeRetailerKeepingLocation(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleLocationUser, "R1", "L1")

	err := store.Update(context.Background(), p, EntityCustomer,
		&Row{ID: "c1", RetailerID: "R2", LocationID: "L1"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL may be issued on rejection: %v", err)
	}
}

func TestInsertCannotTargetAnotherRetailerAtOwnLocation(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleLocationUser, "R1", "L1")

	err := store.Insert(context.Background(), p, EntityCustomer,
		&Row{RetailerID: "R2", LocationID: "L1"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL may be issued on rejection: %v", err)
	}
}

func TestUpdateInScope(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleLocationUser, "R1", "L1")

	mock.ExpectExec("update customers set retailer_id=.* where id=.* and retailer_id = .* and location_id =").
		WithArgs("c1", "R1", "L1", sqlmock.AnyArg(), "R1", "L1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Update(context.Background(), p, EntityCustomer,
		&Row{ID: "c1", RetailerID: "R1", LocationID: "L1", Attrs: map[string]any{"name": "n"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestInsertOutOfScopeRejected(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleRetailer, "R1", "")

	err := store.Insert(context.Background(), p, EntityOrder,
		&Row{RetailerID: "R2", LocationID: "L1"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL may be issued on rejection: %v", err)
	}
}

func TestDeleteOutOfScopeRejected(t *testing.T) {
	store, mock := newMockStore(t)
	p := makePrincipal(principal.RoleLocationUser, "R1", "L1")

	mock.ExpectExec("delete from orders where id=.* and retailer_id = .* and location_id =").
		WithArgs("o9", "R1", "L1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), p, EntityOrder, "o9"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
