// internal/tenant/record.go
//
// Tenant rows and settings.
//
// Context
// -------
// A tenant is one school.  Tenants are never deleted, only deactivated
// (`is_active = FALSE`), because their audit trail must outlive them.
// Settings are an opaque key-value overlay loaded from tenant_setting;
// the access core treats them as strings and never interprets them.
package tenant

import (
	"database/sql"
	"time"
)

// Record mirrors one row of the `tenant` table.
type Record struct {
	ID        int64          `db:"id"`
	Slug      string         `db:"slug"`
	Name      string         `db:"name"`
	IsActive  bool           `db:"is_active"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt sql.NullTime   `db:"updated_at"`
	Suspended sql.NullString `db:"suspended_reason"`
}

// Public is the reduced projection served on the unauthenticated slug
// path.  It exists so the public lookup can never leak settings or
// internal state by accident.
type Public struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Public returns the unauthenticated projection.
func (r *Record) Public() Public {
	return Public{Slug: r.Slug, Name: r.Name}
}
