// internal/auth/errors.go
//
// The hard-failure taxonomy of tenant-context resolution.
//
// All four are terminal for the request: there is no partial or "guest"
// context.  The middleware maps them to re-authentication or
// tenant-selection redirects; they are never rendered raw to the caller.
package auth

import "errors"

var (
	// ErrUnauthenticated: no valid credential, unknown or deleted
	// principal, or a credential from a dead session (stale epoch).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoTenantSelected: a valid credential with no tenant claim.
	ErrNoTenantSelected = errors.New("no tenant selected")

	// ErrTenantNotFound: the claimed tenant is missing or deactivated.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrMembershipNotFound: no active, non-deleted membership joins the
	// principal to the claimed tenant.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrNoMemberships: the principal belongs to no school at all; the
	// selection flow terminates in the "no school" state.
	ErrNoMemberships = errors.New("no memberships")
)
