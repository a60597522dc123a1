// internal/auth/middleware.go
//
// Chi middleware: resolve once, memoize in the request context, enforce
// permissions downstream.
//
// Hard failures never surface raw: browser traffic is redirected to the
// re-authentication or tenant-selection flows, API traffic (Bearer
// header present) gets the matching status code.  Forbidden is an
// explicit, user-visible denial either way.
package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Redirect targets for browser traffic.
const (
	LoginPath  = "/login"
	SelectPath = "/select-tenant"
)

// Middleware resolves the tenant context and stores it for the request.
// Handlers behind it may call FromContext without a nil check when the
// chain is wired correctly; Require* middlewares below re-check anyway.
func Middleware(r *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tc, err := r.Resolve(req.Context(), req)
			if err != nil {
				deny(w, req, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(WithContext(req.Context(), tc)))
		})
	}
}

// RequirePermission enforces a permission key against the memoized
// context.  It performs no I/O: the set was loaded during resolution.
func RequirePermission(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tc := FromContext(req.Context())
			if tc == nil {
				// Middleware ordering bug; fail closed and loudly.
				zap.S().Errorw("permission check before resolution", "path", req.URL.Path)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if err := tc.RequirePermission(key); err != nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// deny maps the hard-failure taxonomy onto transport.
func deny(w http.ResponseWriter, req *http.Request, err error) {
	api := isAPI(req)

	switch err {
	case ErrNoTenantSelected:
		if api {
			http.Error(w, "tenant not selected", http.StatusConflict)
			return
		}
		http.Redirect(w, req, SelectPath, http.StatusFound)
	case ErrTenantNotFound, ErrMembershipNotFound, ErrUnauthenticated:
		if api {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		http.Redirect(w, req, LoginPath, http.StatusFound)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// isAPI distinguishes Bearer-credentialed callers from browsers.
func isAPI(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ")
}
