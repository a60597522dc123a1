// internal/auth/middleware_test.go
//
// Tests for the resolution middleware: memoization, denial mapping, and
// the permission gate.
//
// Run: go test ./internal/auth -v

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EcodiaTate/wattleos-sub008/internal/acl"
)

// TestMiddleware_ResolvesOncePerRequest proves the memoization bound:
// the handler reads the context twice, yet sqlmock sees exactly one walk
// (any second walk would hit an unexpected-query error from the mock).
func TestMiddleware_ResolvesOncePerRequest(t *testing.T) {
	h := newHarness(t)
	h.expectTenant(2, "b", true)
	h.expectUser(10, 0)
	h.expectMembership(10, 2, 20, "admin")
	h.expectPermissions(20, 2, acl.PermManageUsers)

	var first, second *Context
	handler := Middleware(h.resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = FromContext(r.Context())
		second = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, h.request(t, 10, 2, 0))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if first == nil || first != second {
		t.Fatal("both reads must observe the same memoized context")
	}
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("resolution ran more than once: %v", err)
	}
}

func TestMiddleware_DenialMapping(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run on a hard failure")
	})

	t.Run("browser without credential redirects to login", func(t *testing.T) {
		h := newHarness(t)
		rr := httptest.NewRecorder()
		Middleware(h.resolver)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/students", nil))

		if rr.Code != http.StatusFound || rr.Header().Get("Location") != LoginPath {
			t.Fatalf("got %d → %q, want 302 → %s", rr.Code, rr.Header().Get("Location"), LoginPath)
		}
	})

	t.Run("browser without tenant redirects to selection", func(t *testing.T) {
		h := newHarness(t)
		signed, _ := h.tokens.Mint(10, 0, 0)
		r := httptest.NewRequest(http.MethodGet, "/students", nil)
		r.AddCookie(h.tokens.Cookie(signed, false))

		rr := httptest.NewRecorder()
		Middleware(h.resolver)(next).ServeHTTP(rr, r)

		if rr.Code != http.StatusFound || rr.Header().Get("Location") != SelectPath {
			t.Fatalf("got %d → %q, want 302 → %s", rr.Code, rr.Header().Get("Location"), SelectPath)
		}
	})

	t.Run("api caller gets status codes, not redirects", func(t *testing.T) {
		h := newHarness(t)
		rr := httptest.NewRecorder()
		Middleware(h.resolver)(next).ServeHTTP(rr, h.request(t, 10, 0, 0))

		if rr.Code != http.StatusConflict {
			t.Fatalf("tenant-less API call status = %d, want 409", rr.Code)
		}
	})
}

func TestRequirePermission(t *testing.T) {
	granted := &Context{Permissions: acl.NewEvaluator(map[string]struct{}{acl.PermViewAuditLogs: {}})}

	run := func(tc *Context, key string) *httptest.ResponseRecorder {
		handler := RequirePermission(key)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		r := httptest.NewRequest(http.MethodGet, "/audit", nil)
		if tc != nil {
			r = r.WithContext(WithContext(r.Context(), tc))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, r)
		return rr
	}

	if rr := run(granted, acl.PermViewAuditLogs); rr.Code != http.StatusOK {
		t.Fatalf("granted key status = %d, want 200", rr.Code)
	}
	if rr := run(granted, acl.PermManageRoles); rr.Code != http.StatusForbidden {
		t.Fatalf("ungranted key status = %d, want 403", rr.Code)
	}
	if rr := run(nil, acl.PermViewAuditLogs); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unresolved request status = %d, want 401", rr.Code)
	}
}
