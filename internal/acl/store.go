// internal/acl/store.go
//
// Query helper for role permission grants.
//
// Context
// -------
// The RBAC model lives in the shared database:
//
//	role            (id PK, tenant_id, name)
//	role_permission (role_id, tenant_id, permission_key)
//
// The resolver needs one answer: which permission keys does role R grant
// within tenant T?  The helper accepts a *sqlx.DB scoped to the
// unprivileged application credential and performs one parameterised
// query.  It is thin; the resolver wraps the result in the per-request
// context, never in a cross-request cache.
package acl

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// RolePermissions returns the permission keys granted to roleID within
// tenantID.  Keys outside the build-time vocabulary are dropped, with a
// WARN so seed-data drift is visible without breaking resolution.
func RolePermissions(ctx context.Context, db *sqlx.DB, roleID, tenantID int64) (map[string]struct{}, error) {
	const q = `SELECT permission_key
                 FROM role_permission
                WHERE role_id = ? AND tenant_id = ?`

	rows, err := db.QueryContext(ctx, q, roleID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	granted := make(map[string]struct{}, 8)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if !Known(key) {
			zap.S().Warnw("unknown permission key in role_permission, ignoring",
				"key", key, "role", roleID, "tenant", tenantID)
			continue
		}
		granted[key] = struct{}{}
	}
	return granted, rows.Err()
}
