// internal/token/stamp.go
//
// Deferred credential mutations.
//
// Context
// -------
// Tenant selection mints a refreshed token and must deliver it to the
// browser on the SAME response object the handler ultimately returns.
// An earlier revision of this platform set the cookie on an intermediate
// response during the auth exchange and then returned a different one;
// the browser kept the stale credential, which never carried the tenant
// claim, and the single-tenant auto-select path turned into an infinite
// redirect loop.
//
// Stamp removes the footgun: the selection flow accumulates every
// credential-carrying mutation here, and the handler replays the whole
// batch onto its own ResponseWriter in one place, immediately before
// writing status and body.
package token

import "net/http"

// Stamp accumulates Set-Cookie and header mutations for later replay.
type Stamp struct {
	cookies []*http.Cookie
	header  http.Header
}

// NewStamp returns an empty accumulator.
func NewStamp() *Stamp {
	return &Stamp{header: make(http.Header)}
}

// AddCookie queues a Set-Cookie mutation.
func (s *Stamp) AddCookie(c *http.Cookie) { s.cookies = append(s.cookies, c) }

// SetHeader queues a plain header mutation.
func (s *Stamp) SetHeader(key, value string) { s.header.Set(key, value) }

// Apply replays every queued mutation onto w.  Call exactly once, on the
// response object actually returned to the client, before WriteHeader.
func (s *Stamp) Apply(w http.ResponseWriter) {
	for k, vs := range s.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	for _, c := range s.cookies {
		http.SetCookie(w, c)
	}
}
