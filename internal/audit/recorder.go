// internal/audit/recorder.go
//
// The append-only recorder.
//
/*
Context
--------
Recorder writes entries through the elevated audit pool—a credential the
acting user's request pool never sees, which is what makes the trail
append-only in practice and not just by convention.

Failure semantics are deliberately asymmetric: a failed audit write must
NEVER abort or roll back the primary action it describes.  Record and its
siblings therefore return nothing.  Every failure path is caught, logged
at ERROR with structured fields, counted on audit_write_errors_total, and
swallowed.  The design assumes failures are rare and monitored—gaps
undermine the compliance purpose, so the counter page is not optional.

Every entry is enriched once per request with provenance captured by the
requestinfo middleware (client address, user-agent fingerprint, optional
country), carried inside the metadata map so the storage schema stays
exactly the compliance-reviewed column set.
*/
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/EcodiaTate/wattleos-sub008/internal/auth"
	"github.com/EcodiaTate/wattleos-sub008/internal/metrics"
	"github.com/EcodiaTate/wattleos-sub008/internal/requestinfo"
)

const insertEntry = `INSERT INTO audit_log
        (id, tenant_id, user_id, action, entity_type, entity_id, metadata, sensitivity, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Recorder appends audit entries.  Safe for concurrent use; it holds no
// per-request state.
type Recorder struct {
	db *sqlx.DB // elevated credential, INSERT-only on audit_log
}

// NewRecorder wraps the elevated pool.
func NewRecorder(db *sqlx.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one user-attributed entry.  ctx carries the request's
// provenance capture; tc attributes the action.  No error return: see
// the package comment.
func (r *Recorder) Record(ctx context.Context, tc *auth.Context, action, entityType string, entityID *int64, meta map[string]any) {
	if tc == nil {
		zap.S().Errorw("audit record without tenant context, dropping", "action", action)
		metrics.AuditWriteErrorsTotal.Inc()
		return
	}
	uid := tc.User.ID
	r.append(ctx, r.build(ctx, tc.Tenant.ID, &uid, action, entityType, entityID, meta))
}

// RecordAs appends one entry attributed to a known principal when no
// resolved tenant context exists yet.  Tenant selection is the canonical
// caller: the acting user is authenticated, but the context that would
// normally attribute the entry only becomes constructible after the
// stamp.  Using RecordSystem there would record a NULL user for an
// action a person performed.
func (r *Recorder) RecordAs(ctx context.Context, tenantID, userID int64, action, entityType string, entityID *int64, meta map[string]any) {
	r.append(ctx, r.build(ctx, tenantID, &userID, action, entityType, entityID, meta))
}

// RecordSystem appends one entry with no acting user, for actions that
// originate from webhooks or schedules rather than a person.
func (r *Recorder) RecordSystem(ctx context.Context, tenantID int64, action, entityType string, entityID *int64, meta map[string]any) {
	r.append(ctx, r.build(ctx, tenantID, nil, action, entityType, entityID, meta))
}

// BulkEntry is one item of a batch operation.
type BulkEntry struct {
	Action     string
	EntityType string
	EntityID   *int64
	Metadata   map[string]any
}

// RecordBulk appends a batch as a single storage transaction, every
// entry tagged with a shared batch marker.  Same swallow-on-failure
// semantics as Record: the batch either fully lands or is fully lost,
// and either way the primary bulk operation proceeds.
func (r *Recorder) RecordBulk(ctx context.Context, tc *auth.Context, entries []BulkEntry) {
	if tc == nil || len(entries) == 0 {
		return
	}

	batchID := uuid.NewString()
	uid := tc.User.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.swallow("audit bulk begin failed", err, len(entries))
		return
	}

	for _, be := range entries {
		meta := make(map[string]any, len(be.Metadata)+1)
		for k, v := range be.Metadata {
			meta[k] = v
		}
		meta[MetaBatchID] = batchID

		e := r.build(ctx, tc.Tenant.ID, &uid, be.Action, be.EntityType, be.EntityID, meta)
		if _, err := tx.ExecContext(ctx, insertEntry, e.ID, e.TenantID, e.UserID,
			e.Action, e.EntityType, e.EntityID, encodeMeta(e.Metadata), e.Sensitivity, e.CreatedAt); err != nil {
			tx.Rollback()
			r.swallow("audit bulk insert failed", err, len(entries))
			return
		}
	}

	if err := tx.Commit(); err != nil {
		r.swallow("audit bulk commit failed", err, len(entries))
		return
	}
	metrics.AuditWriteTotal.Add(float64(len(entries)))
}

// build assembles a fully enriched entry.
func (r *Recorder) build(ctx context.Context, tenantID int64, userID *int64, action, entityType string, entityID *int64, meta map[string]any) Entry {
	enriched := make(map[string]any, len(meta)+3)
	for k, v := range meta {
		enriched[k] = v
	}
	if info := requestinfo.FromContext(ctx); info != nil {
		if ip := info.ClientIP(); ip != "" {
			enriched[MetaIP] = ip
		}
		if info.UA.Raw != "" {
			enriched[MetaUserAgent] = info.UA.Raw
		}
		if info.Geo.CountryISO != "" {
			enriched[MetaCountry] = info.Geo.CountryISO
		}
	}

	return Entry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    enriched,
		Sensitivity: SensitivityFor(action),
		CreatedAt:   time.Now().UTC(),
	}
}

// append performs the best-effort synchronous insert.
func (r *Recorder) append(ctx context.Context, e Entry) {
	_, err := r.db.ExecContext(ctx, insertEntry, e.ID, e.TenantID, e.UserID,
		e.Action, e.EntityType, e.EntityID, encodeMeta(e.Metadata), e.Sensitivity, e.CreatedAt)
	if err != nil {
		r.swallow("audit write failed", err, 1)
		return
	}
	metrics.AuditWriteTotal.Inc()
}

func (r *Recorder) swallow(msg string, err error, n int) {
	metrics.AuditWriteErrorsTotal.Inc()
	zap.S().Errorw(msg, "err", err, "entries", n)
}

// encodeMeta serializes metadata for the JSON column.  A map that cannot
// encode (should not happen with plain values) degrades to "{}" rather
// than failing the write.
func encodeMeta(meta map[string]any) string {
	if len(meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(meta)
	if err != nil {
		zap.S().Errorw("audit metadata encode failed", "err", err)
		return "{}"
	}
	return string(b)
}
