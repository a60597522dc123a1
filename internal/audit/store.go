// internal/audit/store.go
//
// Read path for the audit trail.
//
// Reads go through the same elevated pool as writes because the
// unprivileged application credential holds no grant at all on
// audit_log.  Authorization is the caller's job: every route serving
// this data sits behind the view_audit_logs permission.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// ListByTenant returns the most recent entries for a tenant, newest
// first, capped at limit.
func (r *Recorder) ListByTenant(ctx context.Context, tenantID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const q = `SELECT id, tenant_id, user_id, action, entity_type, entity_id,
                      metadata, sensitivity, created_at
                 FROM audit_log
                WHERE tenant_id = ?
                ORDER BY created_at DESC
                LIMIT ?`

	rows, err := r.db.QueryxContext(ctx, q, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			meta string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action,
			&e.EntityType, &e.EntityID, &meta, &e.Sensitivity, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// View is the JSON projection served to the audit screen.
type View struct {
	ID          string         `json:"id"`
	UserID      *int64         `json:"user_id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    *int64         `json:"entity_id"`
	Metadata    map[string]any `json:"metadata"`
	Sensitivity Sensitivity    `json:"sensitivity"`
	CreatedAt   time.Time      `json:"created_at"`
}

// View converts an Entry for serving.  TenantID is dropped: the caller
// is already scoped to exactly one tenant.
func (e Entry) View() View {
	return View{
		ID:          e.ID,
		UserID:      e.UserID,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Metadata:    e.Metadata,
		Sensitivity: e.Sensitivity,
		CreatedAt:   e.CreatedAt,
	}
}
