// internal/config/model.go
//
// Typed configuration model for the WattleOS access core.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `conf/.env`                  – dotenv values,
//   • `conf/global.yaml`                    – primary static file,
//   • `WOS_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* validation, so the model never
// stores Vault URIs—only plain strings.  That is how the field-encryption
// key, the token-signing secret, and the elevated audit DSN stay out of
// flat files and git history.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.  The two deliberately *optional* blocks
// are `redis` and `crypto.field_key`: their absence puts the rate limiter
// and the field cipher into their documented degraded modes instead of
// refusing to boot.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml`
//     tags unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.

package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Database section
//

// Database carries the two DSNs.  AppDSN is the unprivileged credential
// every request handler uses; AuditDSN is the elevated credential that is
// the only way into audit_log.  AuditDSN is usually a `vault:` URI.
type Database struct {
	AppDSN   string `koanf:"app_dsn"   validate:"required"`
	AuditDSN string `koanf:"audit_dsn" validate:"required"`
}

//
// Redis section (optional)
//

// Redis is the shared counter store for the rate limiter and the pub/sub
// channel for cross-session logout.  An empty Addr means "not configured";
// both consumers degrade per their own rules.
type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

//
// Crypto section
//

// Crypto holds the at-rest field-encryption key: 64 hex characters
// (a 256-bit key), or a `vault:` URI resolving to the same.  Empty means
// the cipher runs degraded (plaintext passthrough, logged loudly).
type Crypto struct {
	FieldKey string `koanf:"field_key" validate:"omitempty,len=64,hexadecimal"`
}

//
// Token section
//

// Token configures the signed credential claims.
type Token struct {
	Secret   string `koanf:"secret" validate:"required,min=32"`
	Issuer   string `koanf:"issuer" validate:"required"`
	TTLHours int    `koanf:"ttl_hours" validate:"min=1,max=168"`
}

//
// Rate-limit section
//

// Tier overrides one (limit, window) pair.  Zero values fall back to the
// compiled-in defaults in internal/ratelimit.
type Tier struct {
	Limit         int  `koanf:"limit"`
	WindowSeconds int  `koanf:"window_seconds"`
	FailClosed    bool `koanf:"fail_closed"`
}

// RateLimit holds per-tier overrides.
type RateLimit struct {
	PublicWrite Tier `koanf:"public_write"`
	PublicRead  Tier `koanf:"public_read"`
	AuthAction  Tier `koanf:"auth_action"`
}

//
// Idle-session section
//

// Idle configures the client-resident inactivity monitor.
type Idle struct {
	ThresholdMinutes int `koanf:"threshold_minutes"`
	WarningSeconds   int `koanf:"warning_seconds"`
	PollSeconds      int `koanf:"poll_seconds"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or WOS_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // WOS_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Redis     Redis     `koanf:"redis"`
	Crypto    Crypto    `koanf:"crypto"`
	Token     Token     `koanf:"token"`
	RateLimit RateLimit `koanf:"ratelimit"`
	Idle      Idle      `koanf:"idle"`
	Paths     Paths     `koanf:"-"` // not loaded from config files
}
