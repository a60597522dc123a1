// internal/auth/select.go
//
// Tenant selection and credential stamping.
//
/*
Context
--------
After login a principal holds a tenant-less credential.  Selection stamps
a tenant into it by minting a REFRESHED token with the wos_tid claim and
queueing the Set-Cookie onto a token.Stamp, which the handler replays
onto the exact response object it returns.

Three membership counts, three branches:

  zero – terminal "no school" state (ErrNoMemberships).
  one  – stamp that tenant automatically.  This MUST run through the same
         refresh path as explicit selection: a previous revision special-
         cased the single-tenant user and skipped the refresh, so the
         browser kept a credential without the tenant claim and bounced
         in an infinite redirect loop between resolver and selector.
  many – return the choices; stamping follows the explicit pick.
*/
package auth

import (
	"context"

	"github.com/EcodiaTate/wattleos-sub008/internal/identity"
	"github.com/EcodiaTate/wattleos-sub008/internal/token"
)

// Selection is the outcome of AutoSelect.
type Selection struct {
	// Stamped is non-zero when a tenant was stamped into the credential.
	Stamped int64 `json:"stamped,omitempty"`
	// Choices is populated when the principal must pick interactively.
	Choices []identity.MembershipSummary `json:"choices,omitempty"`
}

// SelectTenant stamps tenantID into a fresh credential for the principal,
// after verifying an active membership actually joins them.  The minted
// cookie is queued on stamp; nothing is written to any response here.
func (r *Resolver) SelectTenant(ctx context.Context, userID, tenantID int64, stamp *token.Stamp, secure bool) error {
	user, err := identity.UserByID(ctx, r.db, userID)
	if err != nil {
		return ErrUnauthenticated
	}

	// Membership check also covers tenant existence and activity: the
	// membership lookup joins tenant and requires is_active, so a
	// deactivated school cannot be stamped.
	if _, err := identity.MembershipFor(ctx, r.db, userID, tenantID); err != nil {
		return ErrMembershipNotFound
	}

	signed, err := r.tokens.Mint(userID, tenantID, user.TokenEpoch)
	if err != nil {
		return err
	}

	stamp.AddCookie(r.tokens.Cookie(signed, secure))
	return nil
}

// AutoSelect resolves the zero/one/many branch for a freshly
// authenticated principal.
func (r *Resolver) AutoSelect(ctx context.Context, userID int64, stamp *token.Stamp, secure bool) (*Selection, error) {
	memberships, err := identity.MembershipsForUser(ctx, r.db, userID)
	if err != nil {
		return nil, err
	}

	switch len(memberships) {
	case 0:
		return nil, ErrNoMemberships
	case 1:
		// Same refresh path as an explicit pick.  No shortcut.
		if err := r.SelectTenant(ctx, userID, memberships[0].TenantID, stamp, secure); err != nil {
			return nil, err
		}
		return &Selection{Stamped: memberships[0].TenantID}, nil
	default:
		return &Selection{Choices: memberships}, nil
	}
}

// Logout kills every outstanding credential for the principal by bumping
// their token epoch, and queues the cookie clear.  Cross-session
// broadcast to co-located clients is the caller's job (the handler owns
// the broadcast handle); server-side, all other sessions discover the
// bump on their next resolution.
func (r *Resolver) Logout(ctx context.Context, userID int64, stamp *token.Stamp) error {
	if _, err := identity.BumpTokenEpoch(ctx, r.db, userID); err != nil {
		return err
	}
	stamp.AddCookie(token.ClearCookie())
	return nil
}
