// internal/identity/identity.go
//
// Users, roles, and tenant memberships.
//
// Context
// -------
// A user is platform-global; what scopes them to a school is a
// *membership*: exactly one role per (user, tenant) pair, plus a status.
// Memberships are soft-deleted (`deleted_at`), and the one invariant this
// package owns is that a soft-deleted or suspended membership is never
// returned by any lookup here—the filter lives in the SQL, not in
// callers, so no call site can forget it.
//
// The `token_epoch` column on users backs cross-session logout: every
// credential is minted with the epoch current at that moment, and logout
// bumps the column, so every other outstanding credential for the same
// principal dies on its next resolution.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Membership status values.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// ErrUserNotFound is returned when the principal row is missing or
// soft-deleted.
var ErrUserNotFound = errors.New("user not found")

// ErrMembershipNotFound is returned when no active, non-deleted
// membership joins the user to the tenant.
var ErrMembershipNotFound = errors.New("membership not found")

// User mirrors one row of `user`.
type User struct {
	ID          int64        `db:"id"`
	Email       string       `db:"email"`
	DisplayName string       `db:"display_name"`
	TokenEpoch  int64        `db:"token_epoch"`
	CreatedAt   time.Time    `db:"created_at"`
	DeletedAt   sql.NullTime `db:"deleted_at"`
}

// Role mirrors one row of `role`.  Roles are tenant-scoped.
type Role struct {
	ID       int64  `db:"id"`
	TenantID int64  `db:"tenant_id"`
	Name     string `db:"name"`
}

// Membership joins a user to a tenant with exactly one role.
type Membership struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	TenantID  int64        `db:"tenant_id"`
	RoleID    int64        `db:"role_id"`
	RoleName  string       `db:"role_name"`
	Status    string       `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
	DeletedAt sql.NullTime `db:"deleted_at"`
}

// MembershipSummary is the selection-screen projection: which schools can
// this principal act in, and as what.
type MembershipSummary struct {
	TenantID   int64  `db:"tenant_id"   json:"tenant_id"`
	TenantSlug string `db:"tenant_slug" json:"tenant_slug"`
	TenantName string `db:"tenant_name" json:"tenant_name"`
	RoleName   string `db:"role_name"   json:"role_name"`
}

// UserByID fetches a live user row.
func UserByID(ctx context.Context, db *sqlx.DB, id int64) (*User, error) {
	const q = `SELECT id, email, display_name, token_epoch, created_at, deleted_at
                 FROM user
                WHERE id = ? AND deleted_at IS NULL
                LIMIT 1`

	var u User
	if err := db.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// MembershipFor fetches the active, non-deleted membership joining user
// and tenant, including its role name.  Suspended rows, soft-deleted
// rows, and memberships in deactivated tenants all read as absent—the
// tenant join matters because the selection flow trusts this lookup to
// refuse a school that can never resolve.
func MembershipFor(ctx context.Context, db *sqlx.DB, userID, tenantID int64) (*Membership, error) {
	const q = `SELECT m.id, m.user_id, m.tenant_id, m.role_id, r.name AS role_name,
                      m.status, m.created_at, m.deleted_at
                 FROM membership m
                 JOIN role r   ON r.id = m.role_id
                 JOIN tenant t ON t.id = m.tenant_id
                WHERE m.user_id = ?
                  AND m.tenant_id = ?
                  AND m.status = 'active'
                  AND m.deleted_at IS NULL
                  AND t.is_active = TRUE
                LIMIT 1`

	var m Membership
	if err := db.GetContext(ctx, &m, q, userID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MembershipsForUser lists every school the principal can act in, for the
// tenant-selection flow.  Inactive tenants are filtered here too: a
// deactivated school must not appear as a choice.
func MembershipsForUser(ctx context.Context, db *sqlx.DB, userID int64) ([]MembershipSummary, error) {
	const q = `SELECT m.tenant_id, t.slug AS tenant_slug, t.name AS tenant_name,
                      r.name AS role_name
                 FROM membership m
                 JOIN tenant t ON t.id = m.tenant_id
                 JOIN role r   ON r.id = m.role_id
                WHERE m.user_id = ?
                  AND m.status = 'active'
                  AND m.deleted_at IS NULL
                  AND t.is_active = TRUE
                ORDER BY t.name`

	var out []MembershipSummary
	if err := db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, err
	}
	return out, nil
}

// BumpTokenEpoch invalidates every outstanding credential for the
// principal.  Returns the new epoch so the caller can mint a fresh
// credential for the session that initiated the logout, if any.
func BumpTokenEpoch(ctx context.Context, db *sqlx.DB, userID int64) (int64, error) {
	const upd = `UPDATE user SET token_epoch = token_epoch + 1
                  WHERE id = ? AND deleted_at IS NULL`

	res, err := db.ExecContext(ctx, upd, userID)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, ErrUserNotFound
	}

	var epoch int64
	const sel = `SELECT token_epoch FROM user WHERE id = ?`
	if err := db.GetContext(ctx, &epoch, sel, userID); err != nil {
		return 0, err
	}
	return epoch, nil
}
