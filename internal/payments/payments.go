// internal/payments/payments.go
//
// Payment webhook reconciliation.
//
/*
Context
--------
Payment providers deliver settlement results by webhook, and webhooks
arrive late, duplicated, and out of order.  Reconciler absorbs that:
each event moves an invoice along the pending → settled | failed
machine, a replay of an already-applied event is a silent no-op, and a
genuinely contradictory event (failed after settled) is refused loudly
so a human looks at it.

Every applied transition is audited through the system path—there is no
acting user behind a webhook, so the entries carry a null user and the
provider's event reference in metadata.

The webhook endpoint itself is unauthenticated and therefore rides the
public_write rate-limit tier; signature verification belongs to the
HTTP handler, not here.
*/
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/EcodiaTate/wattleos-sub008/internal/audit"
)

// Status is an invoice's settlement position.  Settled and failed are
// terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
)

// Event kinds, matching the provider's webhook vocabulary.
const (
	KindSettled = "payment.settled"
	KindFailed  = "payment.failed"
)

var (
	// ErrUnknownInvoice means the event references an invoice this
	// tenant does not have.
	ErrUnknownInvoice = errors.New("payments: unknown invoice reference")
	// ErrConflict means the event contradicts a terminal state already
	// reached, which is never a replay and needs human review.
	ErrConflict = errors.New("payments: event conflicts with settled state")
)

// Event is one provider notification, in the shape the webhook decodes.
type Event struct {
	// ProviderRef is the provider's unique event identifier.
	ProviderRef string `json:"provider_ref"`
	// Reference is the invoice reference the event settles.
	Reference string `json:"reference"`
	// Kind is KindSettled or KindFailed.
	Kind string `json:"kind"`
	// AmountCents is the settled amount as reported by the provider.
	AmountCents int64 `json:"amount_cents"`
}

// Outcome distinguishes a fresh transition from an absorbed replay.
type Outcome int

const (
	// Applied means the invoice moved to a new terminal state.
	Applied Outcome = iota
	// Replayed means the event had already been applied; nothing
	// changed and nothing was re-audited.
	Replayed
)

// Reconciler applies provider events to invoices.
type Reconciler struct {
	db    *sqlx.DB
	audit *audit.Recorder
}

// NewReconciler wires the application pool and the audit recorder.
func NewReconciler(db *sqlx.DB, rec *audit.Recorder) *Reconciler {
	return &Reconciler{db: db, audit: rec}
}

// Apply reconciles one event against the tenant's invoice.  Idempotent:
// replaying an applied event returns Replayed with no side effects.
func (r *Reconciler) Apply(ctx context.Context, tenantID int64, ev Event) (Outcome, error) {
	var target Status
	switch ev.Kind {
	case KindSettled:
		target = StatusSettled
	case KindFailed:
		target = StatusFailed
	default:
		return 0, fmt.Errorf("payments: unsupported event kind %q", ev.Kind)
	}

	var inv struct {
		ID     int64  `db:"id"`
		Status Status `db:"status"`
	}
	err := r.db.GetContext(ctx, &inv,
		`SELECT id, status FROM invoice WHERE tenant_id = ? AND reference = ?`,
		tenantID, ev.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownInvoice
	}
	if err != nil {
		return 0, fmt.Errorf("payments: load invoice: %w", err)
	}

	switch inv.Status {
	case target:
		return Replayed, nil
	case StatusPending:
		// fall through to the transition
	default:
		return 0, ErrConflict
	}

	// The status guard in the WHERE clause makes concurrent deliveries
	// of the same event race safely: exactly one wins the transition.
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoice SET status = ?, provider_ref = ?, updated_at = NOW() WHERE id = ? AND status = ?`,
		target, ev.ProviderRef, inv.ID, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("payments: transition invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Replayed, nil
	}

	action := audit.ActionPaymentSettled
	if target == StatusFailed {
		action = audit.ActionPaymentFailed
	}
	r.audit.RecordSystem(ctx, tenantID, action, "invoice", &inv.ID, map[string]any{
		"reference":    ev.Reference,
		"provider_ref": ev.ProviderRef,
		"amount_cents": ev.AmountCents,
	})
	return Applied, nil
}
