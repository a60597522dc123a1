// internal/tenant/store.go
//
// Query helpers for tenant rows and settings.
//
// These helpers accept a *sqlx.DB bound to the unprivileged application
// credential and perform simple parameterised queries.  They are thin;
// the resolver composes them and applies the hard-failure rules.
package tenant

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no matching active tenant exists.  Callers
// must not distinguish "never existed" from "deactivated"; both read the
// same from outside.
var ErrNotFound = errors.New("tenant not found")

// ByID fetches a single tenant row by primary key.  Deactivated tenants
// are NOT filtered here—the resolver checks IsActive itself so the
// failure can be logged with the row in hand.
func ByID(ctx context.Context, db *sqlx.DB, id int64) (*Record, error) {
	const q = `SELECT id, slug, name, is_active, created_at, updated_at, suspended_reason
                 FROM tenant
                WHERE id = ?
                LIMIT 1`

	var rec Record
	if err := db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// BySlug fetches an ACTIVE tenant by its public slug.  This is the
// lower-trust unauthenticated path, so inactive tenants are invisible.
func BySlug(ctx context.Context, db *sqlx.DB, slug string) (*Record, error) {
	const q = `SELECT id, slug, name, is_active, created_at, updated_at, suspended_reason
                 FROM tenant
                WHERE slug = ? AND is_active = TRUE
                LIMIT 1`

	var rec Record
	if err := db.GetContext(ctx, &rec, q, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// SettingsByTenant returns the tenant's key-value settings overlay.
func SettingsByTenant(ctx context.Context, db *sqlx.DB, tenantID int64) (map[string]string, error) {
	const q = `SELECT setting_key, setting_value
                 FROM tenant_setting
                WHERE tenant_id = ?`

	rows, err := db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
