// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after
// secret resolution.  Any tag mismatch or validation error aborts startup,
// ensuring the binary never runs with partial, malformed, or missing
// configuration.  Note the asymmetry baked into the tags: the token secret
// and both DSNs are `required`, while the field key and Redis block are
// `omitempty`—their absence is a documented degraded mode, not an error.

package config

import "github.com/go-playground/validator/v10"

var v = validator.New()

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
