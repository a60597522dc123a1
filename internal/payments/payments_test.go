// internal/payments/payments_test.go
//
// Tests for webhook reconciliation: fresh transitions, idempotent
// replays, and contradiction refusal.
//
// Run: go test ./internal/payments -v

package payments

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/EcodiaTate/wattleos-sub008/internal/audit"
)

type harness struct {
	rec       *Reconciler
	mock      sqlmock.Sqlmock // application pool
	auditMock sqlmock.Sqlmock // elevated audit pool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	appDB, appMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { appDB.Close() })

	auditDB, auditMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { auditDB.Close() })

	return &harness{
		rec:       NewReconciler(sqlx.NewDb(appDB, "sqlmock"), audit.NewRecorder(sqlx.NewDb(auditDB, "sqlmock"))),
		mock:      appMock,
		auditMock: auditMock,
	}
}

func (h *harness) expectInvoice(ref string, status Status) {
	h.mock.ExpectQuery("SELECT id, status FROM invoice").
		WithArgs(int64(7), ref).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(int64(55), string(status)))
}

func (h *harness) verify(t *testing.T) {
	t.Helper()
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet application-pool expectations: %v", err)
	}
	if err := h.auditMock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet audit-pool expectations: %v", err)
	}
}

func settledEvent() Event {
	return Event{
		ProviderRef: "evt_001",
		Reference:   "INV-2026-014",
		Kind:        KindSettled,
		AmountCents: 45000,
	}
}

func TestApply_SettlesPendingInvoice(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()

	h.expectInvoice(ev.Reference, StatusPending)
	h.mock.ExpectExec("UPDATE invoice SET status").
		WithArgs(StatusSettled, ev.ProviderRef, int64(55), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	h.auditMock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), int64(7), nil,
			audit.ActionPaymentSettled, "invoice", sqlmock.AnyArg(),
			sqlmock.AnyArg(), audit.SensitivityLow, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := h.rec.Apply(t.Context(), 7, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != Applied {
		t.Fatalf("outcome = %v, want Applied", got)
	}
	h.verify(t)
}

func TestApply_FailureEventAuditsAsFailed(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()
	ev.Kind = KindFailed

	h.expectInvoice(ev.Reference, StatusPending)
	h.mock.ExpectExec("UPDATE invoice SET status").
		WithArgs(StatusFailed, ev.ProviderRef, int64(55), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	h.auditMock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), int64(7), nil,
			audit.ActionPaymentFailed, "invoice", sqlmock.AnyArg(),
			sqlmock.AnyArg(), audit.SensitivityMedium, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if got, err := h.rec.Apply(t.Context(), 7, ev); err != nil || got != Applied {
		t.Fatalf("Apply = (%v, %v), want (Applied, nil)", got, err)
	}
	h.verify(t)
}

// TestApply_ReplayIsIdempotent is the duplicated-delivery case: the
// second arrival of an already-applied event changes nothing and writes
// no second audit entry.
func TestApply_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()

	h.expectInvoice(ev.Reference, StatusSettled)

	got, err := h.rec.Apply(t.Context(), 7, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != Replayed {
		t.Fatalf("outcome = %v, want Replayed", got)
	}
	h.verify(t) // no UPDATE, no audit INSERT were expected
}

func TestApply_ContradictionIsRefused(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()
	ev.Kind = KindFailed

	h.expectInvoice(ev.Reference, StatusSettled)

	if _, err := h.rec.Apply(t.Context(), 7, ev); !errors.Is(err, ErrConflict) {
		t.Fatalf("settled→failed = %v, want ErrConflict", err)
	}
	h.verify(t)
}

func TestApply_UnknownInvoice(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()

	h.mock.ExpectQuery("SELECT id, status FROM invoice").
		WithArgs(int64(7), ev.Reference).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))

	if _, err := h.rec.Apply(t.Context(), 7, ev); !errors.Is(err, ErrUnknownInvoice) {
		t.Fatalf("missing invoice = %v, want ErrUnknownInvoice", err)
	}
}

func TestApply_UnsupportedKind(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()
	ev.Kind = "payment.refunded"

	if _, err := h.rec.Apply(t.Context(), 7, ev); err == nil {
		t.Fatal("unsupported kind must be rejected before any query")
	}
	h.verify(t)
}

func TestApply_LostRaceCountsAsReplay(t *testing.T) {
	h := newHarness(t)
	ev := settledEvent()

	h.expectInvoice(ev.Reference, StatusPending)
	h.mock.ExpectExec("UPDATE invoice SET status").
		WithArgs(StatusSettled, ev.ProviderRef, int64(55), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0)) // concurrent delivery won

	got, err := h.rec.Apply(t.Context(), 7, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != Replayed {
		t.Fatalf("outcome = %v, want Replayed after losing the race", got)
	}
	h.verify(t)
}
