// internal/acl/evaluator.go
//
// Pure permission evaluation over an already-resolved grant set.
//
// No I/O happens here: the resolver loads the grant set once per request,
// and every subsequent check is a map lookup.  Module grouping plays no
// part in evaluation.
package acl

import "errors"

// ErrForbidden is the permission-denied error surfaced to callers as an
// explicit, user-visible denial—never a silent partial success.
var ErrForbidden = errors.New("forbidden")

// Evaluator is an immutable permission set.  The zero value grants
// nothing.
type Evaluator struct {
	granted map[string]struct{}
}

// NewEvaluator wraps a grant set.  The map is not copied; the resolver
// builds it fresh per request and never mutates it afterwards.
func NewEvaluator(granted map[string]struct{}) Evaluator {
	return Evaluator{granted: granted}
}

// Has reports whether key is granted.  Unknown keys are simply absent.
func (e Evaluator) Has(key string) bool {
	_, ok := e.granted[key]
	return ok
}

// Require returns ErrForbidden unless key is granted.
func (e Evaluator) Require(key string) error {
	if !e.Has(key) {
		return ErrForbidden
	}
	return nil
}

// Keys returns the granted set as a slice, for diagnostics and the
// admin display.  Order is unspecified.
func (e Evaluator) Keys() []string {
	out := make([]string, 0, len(e.granted))
	for k := range e.granted {
		out = append(out, k)
	}
	return out
}
