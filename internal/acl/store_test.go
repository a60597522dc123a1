// internal/acl/store_test.go
//
// Unit-tests for the role-permission query and the evaluator, using
// sqlmock for the SQL half.
//
// Run: go test ./internal/acl -v

package acl

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

const rolePermQuery = `SELECT permission_key FROM role_permission WHERE role_id = ? AND tenant_id = ?`

func TestRolePermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(rolePermQuery)).
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).
			AddRow(PermManageUsers).
			AddRow(PermViewAuditLogs))

	got, err := RolePermissions(context.Background(), sqlx.NewDb(db, "sqlmock"), 3, 7)
	if err != nil {
		t.Fatalf("RolePermissions error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("granted set size = %d, want 2", len(got))
	}
	for _, k := range []string{PermManageUsers, PermViewAuditLogs} {
		if _, ok := got[k]; !ok {
			t.Fatalf("missing expected key %q", k)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRolePermissions_DropsUnknownKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(rolePermQuery)).
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}).
			AddRow(PermCreateObservation).
			AddRow("launch_missiles"). // not in the vocabulary
			AddRow(""))

	got, err := RolePermissions(context.Background(), sqlx.NewDb(db, "sqlmock"), 3, 7)
	if err != nil {
		t.Fatalf("RolePermissions error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("granted set size = %d, want 1 (unknown keys dropped)", len(got))
	}
	if _, ok := got[PermCreateObservation]; !ok {
		t.Fatal("known key should survive the unknown-key filter")
	}
}

func TestEvaluator(t *testing.T) {
	e := NewEvaluator(map[string]struct{}{
		PermManageUsers:   {},
		PermViewAuditLogs: {},
	})

	if !e.Has(PermManageUsers) {
		t.Fatal("granted key should evaluate true")
	}
	if e.Has(PermCreateObservation) {
		t.Fatal("ungranted key should evaluate false")
	}
	if e.Has("launch_missiles") {
		t.Fatal("unknown key should evaluate false, never panic")
	}
	if err := e.Require(PermViewAuditLogs); err != nil {
		t.Fatalf("Require(granted) = %v, want nil", err)
	}
	if err := e.Require(PermManageInvoices); err != ErrForbidden {
		t.Fatalf("Require(ungranted) = %v, want ErrForbidden", err)
	}

	var zero Evaluator
	if zero.Has(PermManageUsers) {
		t.Fatal("zero evaluator must grant nothing")
	}
}

func TestVocabulary(t *testing.T) {
	if !Known(PermViewAuditLogs) {
		t.Fatal("vocabulary constant should be known")
	}
	if Known("definitely_not_a_permission") {
		t.Fatal("arbitrary string should not be known")
	}

	// Every module key must be unique across modules.
	seen := map[string]bool{}
	for _, mod := range Modules {
		for _, k := range mod.Keys {
			if seen[k] {
				t.Fatalf("key %q appears in more than one module", k)
			}
			seen[k] = true
		}
	}
}
