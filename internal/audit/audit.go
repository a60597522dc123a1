// internal/audit/audit.go
//
// Audit entry model, action names, and the sensitivity table.
//
// Context
// -------
// Every sensitive action writes one append-only entry.  The domain model
// has no update or delete path for entries—compliance requires the trail
// to be immutable, and the schema backs that up by omitting updated_at
// and deleted_at columns entirely.  Enforcement lives one layer lower
// still: only the elevated audit credential holds INSERT on audit_log,
// and it holds nothing else, so neither the acting user's pool nor the
// audit pool itself can forge or erase a trail.
package audit

import (
	"time"
)

// Sensitivity classifies how much an action matters to reviewers.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityCritical Sensitivity = "critical"
)

// Action names.  Dotted entity.verb, past tense.
const (
	ActionLogin          = "auth.login"
	ActionLogout         = "auth.logout"
	ActionTenantSelected = "auth.tenant_selected"

	ActionUserCreated   = "user.created"
	ActionUserSuspended = "user.suspended"
	ActionRoleAssigned  = "user.role_assigned"
	ActionRoleRevoked   = "user.role_revoked"

	ActionStudentViewed        = "student.viewed"
	ActionMedicalNotesUpdated  = "student.medical_notes_updated"
	ActionCustodyNotesUpdated  = "student.custody_notes_updated"
	ActionObservationCreated   = "student.observation_created"
	ActionStudentBulkImported  = "student.bulk_imported"

	ActionSettingsUpdated = "tenant.settings_updated"
	ActionAuditViewed     = "audit.viewed"

	ActionInvitationAccepted = "invitation.accepted"

	ActionPaymentSettled = "payment.settled"
	ActionPaymentFailed  = "payment.failed"
)

// sensitivityOf is the static action→sensitivity table.  Unlisted
// actions default to low; adding an action without classifying it is
// safe, just quiet.
var sensitivityOf = map[string]Sensitivity{
	ActionLogout:         SensitivityLow,
	ActionTenantSelected: SensitivityLow,

	ActionUserCreated:   SensitivityMedium,
	ActionUserSuspended: SensitivityHigh,
	ActionRoleAssigned:  SensitivityHigh,
	ActionRoleRevoked:   SensitivityHigh,

	ActionMedicalNotesUpdated: SensitivityCritical,
	ActionCustodyNotesUpdated: SensitivityCritical,
	ActionStudentBulkImported: SensitivityMedium,

	ActionSettingsUpdated: SensitivityMedium,
	ActionAuditViewed:     SensitivityMedium,

	ActionPaymentFailed: SensitivityMedium,
}

// SensitivityFor classifies an action.
func SensitivityFor(action string) Sensitivity {
	if s, ok := sensitivityOf[action]; ok {
		return s
	}
	return SensitivityLow
}

// Entry is one appended record.  UserID is nil for system actions
// (webhook-originated, scheduled); EntityID is nil when the action has
// no single subject row.
type Entry struct {
	ID          string         `db:"id"`
	TenantID    int64          `db:"tenant_id"`
	UserID      *int64         `db:"user_id"`
	Action      string         `db:"action"`
	EntityType  string         `db:"entity_type"`
	EntityID    *int64         `db:"entity_id"`
	Metadata    map[string]any `db:"-"`
	Sensitivity Sensitivity    `db:"sensitivity"`
	CreatedAt   time.Time      `db:"created_at"`
}

// Metadata keys stamped by the recorder itself.
const (
	MetaIP        = "ip"
	MetaUserAgent = "user_agent"
	MetaCountry   = "country"
	MetaBatchID   = "batch_id"
)
