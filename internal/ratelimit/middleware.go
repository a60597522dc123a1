// internal/ratelimit/middleware.go
//
// Chi middleware that applies a tier to a route group.
//
// The identifier defaults to the client address captured by the
// requestinfo middleware (which must therefore sit earlier in the chain);
// handlers that can key on something better—an invitation token, say—call
// Limiter.Check directly with an explicit identifier.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/EcodiaTate/wattleos-sub008/internal/requestinfo"
)

// Limit enforces the given tier for every request passing through.
// Denials answer 429 with Retry-After; allowed requests carry the
// remaining-budget header so well-behaved clients can back off early.
func Limit(l *Limiter, tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(r.Context(), tier, callerID(r))

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				retry := int(time.Until(res.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerID prefers the requestinfo capture, falling back to RemoteAddr so
// the limiter still keys sensibly if the enrich middleware is absent.
func callerID(r *http.Request) string {
	if info := requestinfo.FromContext(r.Context()); info != nil {
		if ip := info.ClientIP(); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
