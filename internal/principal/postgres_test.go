package principal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreCreateValidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	p := &Principal{Email: "staff@example.com", Role: RoleLocationUser, Scope: Scope{RetailerID: "r1"}}
	if err := store.Create(context.Background(), p); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput before any SQL, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected SQL issued: %v", err)
	}
}

func TestPGStoreCreateInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into principals").
		WithArgs(sqlmock.AnyArg(), "manager@example.com", "retailer", "r1", "",
			"active", "hash", false, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPGStore(db)
	p := &Principal{
		Email:        "Manager@Example.com",
		Role:         RoleRetailer,
		Scope:        Scope{RetailerID: "r1"},
		PasswordHash: "hash",
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from principals where id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	store := NewPGStore(db)
	if _, err := store.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreDeactivate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update principals set status=").
		WithArgs("p1", StatusInactive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.Deactivate(context.Background(), "p1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func principalRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "role", "retailer_id", "location_id", "status",
		"password_hash", "password_changed_at", "mfa_enrolled", "mfa_secret",
		"metadata", "created_at", "updated_at",
	}).AddRow("p1", "manager@example.com", "retailer", "r1", nil, "active",
		"hash", now, false, "", []byte(`{"team":"north"}`), now, now)
}

func TestPGStoreFindScansScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select .* from principals where id=").
		WithArgs("p1").
		WillReturnRows(principalRows())

	store := NewPGStore(db)
	p, err := store.Find(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if p.Role != RoleRetailer || p.Scope.RetailerID != "r1" || p.Scope.LocationID != "" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.Metadata["team"] != "north" {
		t.Fatalf("metadata not decoded: %v", p.Metadata)
	}
}
