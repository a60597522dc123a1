// internal/acl/keys.go
//
// The closed permission vocabulary.
//
// Context
// -------
// Permission keys are atomic capability strings, fixed at build time.
// The `role_permission` table may only grant keys from this set; anything
// else in the table (stale rows from a removed feature, a typo in a
// seed script) is ignored defensively during the scan rather than
// crashing resolution—absence of a permission is the fail-safe default.
//
// Keys are grouped into modules for administrative display ONLY.  The
// grouping has no bearing on evaluation, which is a flat set-membership
// test.
package acl

// Permission keys.
const (
	// people
	PermManageUsers  = "manage_users"
	PermViewStudents = "view_students"
	PermEditStudents = "edit_students"
	PermEditMedical  = "edit_medical_notes"

	// learning
	PermCreateObservation = "create_observation"
	PermPublishReports    = "publish_reports"

	// billing
	PermManageInvoices = "manage_invoices"
	PermViewBilling    = "view_billing"

	// admin
	PermManageRoles    = "manage_roles"
	PermManageSettings = "manage_settings"
	PermViewAuditLogs  = "view_audit_logs"
)

// Modules groups keys for admin screens.  Display order matters to the
// UI, hence a slice of structs rather than a map.
var Modules = []struct {
	Name string
	Keys []string
}{
	{"people", []string{PermManageUsers, PermViewStudents, PermEditStudents, PermEditMedical}},
	{"learning", []string{PermCreateObservation, PermPublishReports}},
	{"billing", []string{PermManageInvoices, PermViewBilling}},
	{"admin", []string{PermManageRoles, PermManageSettings, PermViewAuditLogs}},
}

// known is the flat set evaluation actually consults.
var known = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, mod := range Modules {
		for _, k := range mod.Keys {
			m[k] = struct{}{}
		}
	}
	return m
}()

// Known reports whether key belongs to the vocabulary.
func Known(key string) bool {
	_, ok := known[key]
	return ok
}
