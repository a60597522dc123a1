// internal/audit/recorder_test.go
//
// Tests for the append-only recorder: swallow-on-failure, the
// sensitivity table, bulk atomicity with the shared batch marker, and
// NULL attribution for system entries.
//
// Run: go test ./internal/audit -v

package audit

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/EcodiaTate/wattleos-sub008/internal/auth"
	"github.com/EcodiaTate/wattleos-sub008/internal/identity"
	"github.com/EcodiaTate/wattleos-sub008/internal/tenant"
)

func newRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRecorder(sqlx.NewDb(db, "sqlmock")), mock
}

func testContext() *auth.Context {
	return &auth.Context{
		Tenant: &tenant.Record{ID: 7, Slug: "northside", Name: "Northside Primary"},
		User:   &identity.User{ID: 42, Email: "teacher@northside.example"},
		Role:   identity.Role{ID: 20, TenantID: 7, Name: "teacher"},
	}
}

// metaCapture matches the metadata column and keeps the decoded map for
// later assertions.
type metaCapture struct {
	got []map[string]any
}

func (m *metaCapture) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return false
	}
	m.got = append(m.got, decoded)
	return true
}

func TestRecord_WritesClassifiedEntry(t *testing.T) {
	r, mock := newRecorder(t)

	meta := &metaCapture{}
	entityID := int64(301)
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), int64(7), int64(42),
			ActionMedicalNotesUpdated, "student", &entityID,
			meta, SensitivityCritical, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r.Record(context.Background(), testContext(), ActionMedicalNotesUpdated,
		"student", &entityID, map[string]any{"fields": "medical_notes"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
	if len(meta.got) != 1 || meta.got[0]["fields"] != "medical_notes" {
		t.Fatalf("metadata = %+v, want caller's fields preserved", meta.got)
	}
}

// TestRecord_StorageOutageDoesNotFailCaller is the core failure-semantic
// guarantee: the primary action proceeds even when the trail is down.
func TestRecord_StorageOutageDoesNotFailCaller(t *testing.T) {
	r, mock := newRecorder(t)

	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnError(context.DeadlineExceeded)

	// Must return normally; any panic or error would fail the test.
	r.Record(context.Background(), testContext(), ActionRoleAssigned,
		"user", nil, nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestRecord_NilContextDropsEntry(t *testing.T) {
	r, mock := newRecorder(t)

	// No expectations: nothing may reach storage.
	r.Record(context.Background(), nil, ActionStudentViewed, "student", nil, nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("nil context must not produce a write: %v", err)
	}
}

func TestRecordSystem_NullUser(t *testing.T) {
	r, mock := newRecorder(t)

	entityID := int64(88)
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), int64(7), nil,
			ActionPaymentSettled, "payment", &entityID,
			sqlmock.AnyArg(), SensitivityLow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r.RecordSystem(context.Background(), 7, ActionPaymentSettled,
		"payment", &entityID, map[string]any{"provider_ref": "evt_123"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

// TestRecordAs_AttributesActingPrincipal guards tenant selection's audit
// attribution: the pick happens before a tenant context exists, but the
// acting user is known, so the entry must carry their id rather than
// the NULL a system entry would.
func TestRecordAs_AttributesActingPrincipal(t *testing.T) {
	r, mock := newRecorder(t)

	tenantID := int64(7)
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), int64(7), int64(42),
			ActionTenantSelected, "tenant", &tenantID,
			sqlmock.AnyArg(), SensitivityLow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r.RecordAs(context.Background(), 7, 42, ActionTenantSelected,
		"tenant", &tenantID, nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestRecordBulk_SingleTransactionSharedBatch(t *testing.T) {
	r, mock := newRecorder(t)

	meta := &metaCapture{}
	mock.ExpectBegin()
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO audit_log").
			WithArgs(sqlmock.AnyArg(), int64(7), int64(42),
				ActionStudentBulkImported, "student", sqlmock.AnyArg(),
				meta, SensitivityMedium, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	ids := []int64{1, 2, 3}
	entries := make([]BulkEntry, 0, len(ids))
	for i := range ids {
		entries = append(entries, BulkEntry{
			Action:     ActionStudentBulkImported,
			EntityType: "student",
			EntityID:   &ids[i],
		})
	}
	r.RecordBulk(context.Background(), testContext(), entries)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
	if len(meta.got) != 3 {
		t.Fatalf("captured %d metadata payloads, want 3", len(meta.got))
	}
	batch, ok := meta.got[0][MetaBatchID].(string)
	if !ok || batch == "" {
		t.Fatalf("first entry metadata %+v carries no batch marker", meta.got[0])
	}
	for i, m := range meta.got {
		if m[MetaBatchID] != batch {
			t.Fatalf("entry %d batch marker %v differs from %q", i, m[MetaBatchID], batch)
		}
	}
}

func TestRecordBulk_InsertFailureRollsBackAndSwallows(t *testing.T) {
	r, mock := newRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	id := int64(1)
	r.RecordBulk(context.Background(), testContext(), []BulkEntry{
		{Action: ActionStudentBulkImported, EntityType: "student", EntityID: &id},
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestSensitivityFor(t *testing.T) {
	cases := map[string]Sensitivity{
		ActionMedicalNotesUpdated: SensitivityCritical,
		ActionCustodyNotesUpdated: SensitivityCritical,
		ActionRoleAssigned:        SensitivityHigh,
		ActionUserSuspended:       SensitivityHigh,
		ActionSettingsUpdated:     SensitivityMedium,
		ActionLogout:              SensitivityLow,
		"never.classified":        SensitivityLow,
	}
	for action, want := range cases {
		if got := SensitivityFor(action); got != want {
			t.Errorf("SensitivityFor(%q) = %q, want %q", action, got, want)
		}
	}
}
