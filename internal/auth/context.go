// internal/auth/context.go
//
// The per-request tenant context.
//
// Context
// -------
// Context is the answer to "who is this request acting as, for which
// tenant, with which permissions".  It is immutable once constructed and
// lives exactly one inbound request: the middleware resolves it once,
// stores it under an unexported key, and every later consumer reads that
// same value.  Nothing here is ever cached across requests—tenant and
// permission data must not leak between concurrent requests for
// different principals.
//
// Invariant: Permissions always holds the FULL transitive grant set for
// Role within Tenant.  A Context is never partially populated; resolution
// either completes all six steps or fails hard.
package auth

import (
	"context"

	"github.com/EcodiaTate/wattleos-sub008/internal/acl"
	"github.com/EcodiaTate/wattleos-sub008/internal/identity"
	"github.com/EcodiaTate/wattleos-sub008/internal/tenant"
)

// Context is created once per request by the Resolver.
type Context struct {
	Tenant      *tenant.Record
	User        *identity.User
	Role        identity.Role
	Permissions acl.Evaluator
}

// HasPermission is a convenience proxy to the evaluator.
func (c *Context) HasPermission(key string) bool { return c.Permissions.Has(key) }

// RequirePermission returns acl.ErrForbidden unless key is granted.
func (c *Context) RequirePermission(key string) error { return c.Permissions.Require(key) }

// ctxKey is unexported to avoid context-key collisions.
type ctxKey struct{}

// WithContext attaches the resolved tenant context to ctx.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context resolved by the middleware, or
// nil if resolution has not run on this request.
func FromContext(ctx context.Context) *Context {
	v, _ := ctx.Value(ctxKey{}).(*Context)
	return v
}
