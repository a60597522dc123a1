// cmd/web/handlers.go
//
// HTTP handlers for the access core's serving surface.
//
// Three route families share the app struct:
//
//   • Public    – tenant lookup by slug, payment webhook, invitation
//     accept.  No credential, rate-limit tiers apply.
//   • Threshold – tenant selection and logout.  A credential is
//     required but a stamped tenant is not (selection is how one gets
//     stamped), so these sit outside auth.Middleware and validate the
//     token themselves.
//   • Scoped    – everything behind auth.Middleware, reading the
//     memoized tenant context.
//
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/EcodiaTate/wattleos-sub008/internal/audit"
	"github.com/EcodiaTate/wattleos-sub008/internal/auth"
	"github.com/EcodiaTate/wattleos-sub008/internal/config"
	"github.com/EcodiaTate/wattleos-sub008/internal/fieldcrypt"
	"github.com/EcodiaTate/wattleos-sub008/internal/idle"
	"github.com/EcodiaTate/wattleos-sub008/internal/payments"
	"github.com/EcodiaTate/wattleos-sub008/internal/ratelimit"
	"github.com/EcodiaTate/wattleos-sub008/internal/tenant"
	"github.com/EcodiaTate/wattleos-sub008/internal/token"
)

// app bundles the wired dependencies handlers draw on.
type app struct {
	cfg        *config.Config
	db         *sqlx.DB
	resolver   *auth.Resolver
	tokens     *token.Service
	limiter    *ratelimit.Limiter
	recorder   *audit.Recorder
	reconciler *payments.Reconciler
	cipher     *fieldcrypt.Cipher
	public     *tenant.Cache
	broadcast  idle.Broadcast
	log        *zap.SugaredLogger
}

func (a *app) secureCookies() bool { return a.cfg.HTTP.ForceHTTPS }

/*──────────────────────────── public ───────────────────────────────*/

// schoolBySlug serves the unauthenticated tenant lookup.  Only the
// Public projection ever leaves this handler.
func (a *app) schoolBySlug(w http.ResponseWriter, r *http.Request) {
	rec, err := a.public.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		a.log.Errorw("public tenant lookup failed", "err", err)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rec.Public())
}

// paymentWebhook applies one provider event.  Unauthenticated by
// nature, so it rides the public_write tier; provider signature
// verification would slot in here before Apply.
func (a *app) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		http.Error(w, "bad tenant id", http.StatusBadRequest)
		return
	}

	var ev payments.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&ev); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	outcome, err := a.reconciler.Apply(r.Context(), tenantID, ev)
	switch {
	case errors.Is(err, payments.ErrUnknownInvoice):
		http.NotFound(w, r)
	case errors.Is(err, payments.ErrConflict):
		http.Error(w, "event conflicts with settled state", http.StatusConflict)
	case err != nil:
		a.log.Errorw("webhook reconcile failed", "tenant", tenantID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	case outcome == payments.Replayed:
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "replayed"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "applied"})
	}
}

// acceptInvitation redeems an invitation token.  The limiter is keyed
// on the token itself, not the caller address: an attacker rotating
// addresses gets no extra guesses against one invitation.
func (a *app) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&body); err != nil || body.Token == "" {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if res := a.limiter.Check(r.Context(), ratelimit.TierAuthAction, "invite:"+body.Token); !res.Allowed {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	var inv struct {
		ID       int64 `db:"id"`
		TenantID int64 `db:"tenant_id"`
		UserID   int64 `db:"user_id"`
	}
	err := a.db.GetContext(r.Context(), &inv,
		`SELECT id, tenant_id, user_id FROM invitation
          WHERE token = ? AND accepted_at IS NULL AND expires_at > NOW()`,
		body.Token)
	if err != nil {
		// Unknown, already used, and expired all read the same.
		http.NotFound(w, r)
		return
	}

	if _, err := a.db.ExecContext(r.Context(),
		`UPDATE invitation SET accepted_at = NOW() WHERE id = ? AND accepted_at IS NULL`,
		inv.ID); err != nil {
		a.log.Errorw("invitation accept failed", "invitation", inv.ID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	a.recorder.RecordSystem(r.Context(), inv.TenantID, audit.ActionInvitationAccepted,
		"invitation", &inv.ID, map[string]any{"user_id": inv.UserID})
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────── threshold ─────────────────────────────*/

// principal validates the credential without requiring a stamped
// tenant.  Shared by the selection and logout handlers.
func (a *app) principal(r *http.Request) (int64, bool) {
	claims, err := a.tokens.FromRequest(r)
	if err != nil {
		return 0, false
	}
	uid, err := claims.UserID()
	if err != nil {
		return 0, false
	}
	return uid, true
}

// listTenantChoices runs the zero/one/many branch.  A single membership
// comes back already stamped; many come back as choices for the picker.
func (a *app) listTenantChoices(w http.ResponseWriter, r *http.Request) {
	uid, ok := a.principal(r)
	if !ok {
		http.Redirect(w, r, auth.LoginPath, http.StatusFound)
		return
	}

	stamp := token.NewStamp()
	sel, err := a.resolver.AutoSelect(r.Context(), uid, stamp, a.secureCookies())
	if errors.Is(err, auth.ErrNoMemberships) {
		http.Error(w, "no school memberships", http.StatusForbidden)
		return
	}
	if err != nil {
		a.log.Errorw("auto-select failed", "user", uid, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	stamp.Apply(w)
	writeJSON(w, http.StatusOK, sel)
}

// selectTenant stamps an explicit pick.
func (a *app) selectTenant(w http.ResponseWriter, r *http.Request) {
	uid, ok := a.principal(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var body struct {
		TenantID int64 `json:"tenant_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&body); err != nil || body.TenantID <= 0 {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	stamp := token.NewStamp()
	switch err := a.resolver.SelectTenant(r.Context(), uid, body.TenantID, stamp, a.secureCookies()); {
	case errors.Is(err, auth.ErrMembershipNotFound):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	case errors.Is(err, auth.ErrUnauthenticated):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	case err != nil:
		a.log.Errorw("tenant select failed", "user", uid, "tenant", body.TenantID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	stamp.Apply(w)
	a.recorder.RecordAs(r.Context(), body.TenantID, uid, audit.ActionTenantSelected,
		"tenant", &body.TenantID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// logout bumps the token epoch (killing every outstanding credential),
// clears the cookie, and broadcasts termination to the principal's
// other live sessions.
func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	uid, ok := a.principal(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	stamp := token.NewStamp()
	if err := a.resolver.Logout(r.Context(), uid, stamp); err != nil {
		a.log.Errorw("logout failed", "user", uid, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := a.broadcast.Publish(r.Context(), principalKey(uid)); err != nil {
		// Server-side invalidation already happened via the epoch bump;
		// the broadcast only accelerates co-located clients.
		a.log.Warnw("logout broadcast failed", "user", uid, "err", err)
	}

	stamp.Apply(w)
	w.WriteHeader(http.StatusNoContent)
}

// principalKey is the broadcast channel key for a user.
func principalKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

/*──────────────────────────── scoped ───────────────────────────────*/

// me echoes the resolved context: who, where, as what, with what.
func (a *app) me(w http.ResponseWriter, r *http.Request) {
	tc := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        tc.User.Email,
		"tenant":      tc.Tenant.Slug,
		"role":        tc.Role.Name,
		"permissions": tc.Permissions.Keys(),
	})
}

// idleConfig hands the client-side monitor its timing knobs.
func (a *app) idleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"threshold_minutes": a.cfg.Idle.ThresholdMinutes,
		"warning_seconds":   a.cfg.Idle.WarningSeconds,
		"poll_seconds":      a.cfg.Idle.PollSeconds,
	})
}

// listAuditLog serves the tenant's recent trail.  Reading the trail is
// itself a sensitive action, so it writes an entry of its own.
func (a *app) listAuditLog(w http.ResponseWriter, r *http.Request) {
	tc := auth.FromContext(r.Context())

	entries, err := a.recorder.ListByTenant(r.Context(), tc.Tenant.ID, 50)
	if err != nil {
		a.log.Errorw("audit list failed", "tenant", tc.Tenant.ID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	views := make([]audit.View, 0, len(entries))
	for _, e := range entries {
		views = append(views, e.View())
	}

	a.recorder.Record(r.Context(), tc, audit.ActionAuditViewed, "audit_log", nil, nil)
	writeJSON(w, http.StatusOK, views)
}

// tenantSettings serves the tenant's opaque settings overlay.  The core
// never interprets these values; it only scopes them.
func (a *app) tenantSettings(w http.ResponseWriter, r *http.Request) {
	tc := auth.FromContext(r.Context())

	settings, err := tenant.SettingsByTenant(r.Context(), a.db, tc.Tenant.ID)
	if err != nil {
		a.log.Errorw("settings load failed", "tenant", tc.Tenant.ID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// updateMedicalNotes is the canonical encrypted-field write: the value
// is sealed before it reaches the row, and the change lands in the
// trail at critical sensitivity.
func (a *app) updateMedicalNotes(w http.ResponseWriter, r *http.Request) {
	tc := auth.FromContext(r.Context())

	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil {
		http.Error(w, "bad student id", http.StatusBadRequest)
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	stored := body.Notes
	if fieldcrypt.ShouldEncrypt("student", "medical_notes") {
		stored = a.cipher.Encrypt(stored)
	}

	res, err := a.db.ExecContext(r.Context(),
		`UPDATE student SET medical_notes = ?, updated_at = NOW()
          WHERE id = ? AND tenant_id = ?`,
		stored, studentID, tc.Tenant.ID)
	if err != nil {
		a.log.Errorw("medical notes update failed", "student", studentID, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either no such student or one belonging to another tenant;
		// both are a 404 here.
		http.NotFound(w, r)
		return
	}

	a.recorder.Record(r.Context(), tc, audit.ActionMedicalNotesUpdated,
		"student", &studentID, map[string]any{"fields": "medical_notes"})
	w.WriteHeader(http.StatusNoContent)
}

/*──────────────────────────── helpers ──────────────────────────────*/

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("response encode failed", "err", err)
	}
}
