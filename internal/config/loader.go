// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `conf/.env` dotenv file.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `WOS_`, where `__` maps to “.”
     (e.g., `WOS_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, the tree is unmarshalled into strongly-typed structs.  Any
string value of the form `vault:<path>#<key>` is then resolved through
the optional Vault resolver, so secrets never live in flat files.  The
result is validated, enriched with the runtime root path, and cached in
an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  — final “config loaded” with key highlights (never the
    secrets themselves).
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

// Resolver maps a `vault:` URI (or any plain string) to its final value.
// internal/vault.Client.Resolve satisfies it; tests pass a func literal.
type Resolver func(ctx context.Context, s string) (string, error)

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves WOS_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv("WOS_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, and env overrides, resolves secrets, validates,
// and caches the Config.  A nil resolve leaves `vault:` values untouched,
// which then fail validation—deliberate, so a missing Vault client cannot
// silently ship a literal URI as a signing secret.
func Load(ctx context.Context, resolve Resolver) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: WOS_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("WOS_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	if resolve != nil {
		if err := resolveSecrets(ctx, &cfg, resolve); err != nil {
			zap.S().Errorw("config secret resolution failed", "err", err)
			return nil, err
		}
	}

	cfg.Paths.Root = root
	applyDefaults(&cfg)
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"redis", cfg.Redis.Addr != "",
		"field_key", cfg.Crypto.FieldKey != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets runs every secret-bearing string through the resolver.
func resolveSecrets(ctx context.Context, cfg *Config, resolve Resolver) error {
	for _, p := range []*string{
		&cfg.Database.AppDSN,
		&cfg.Database.AuditDSN,
		&cfg.Redis.Password,
		&cfg.Crypto.FieldKey,
		&cfg.Token.Secret,
	} {
		v, err := resolve(ctx, *p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// applyDefaults fills optional blocks the operator left empty.
func applyDefaults(cfg *Config) {
	if cfg.Token.TTLHours == 0 {
		cfg.Token.TTLHours = 12
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = "wattleos"
	}
	if cfg.Idle.ThresholdMinutes == 0 {
		cfg.Idle.ThresholdMinutes = 15
	}
	if cfg.Idle.WarningSeconds == 0 {
		cfg.Idle.WarningSeconds = 60
	}
	if cfg.Idle.PollSeconds == 0 {
		cfg.Idle.PollSeconds = 30
	}
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }
