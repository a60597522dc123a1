// internal/server/timeouts.go
//
// *http.Server construction with hardened timeouts.
//
// The cmd/web boot sequence builds its one listener through New, so the
// slow-client bounds live in exactly one place:
//
//   • ReadTimeout  10 s – abort slow-loris header writers
//   • WriteTimeout 15 s – cap total response time, audit-log reads included
//   • IdleTimeout  60 s – reclaim idle keep-alive connections
package server

import (
	"net/http"
	"time"
)

// New constructs an *http.Server around the router with the timeout set
// above.  Callers may inject TLSConfig on the returned server.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
