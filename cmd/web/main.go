// cmd/web/main.go
//
// WattleOS access core – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load config (YAML + env overlay), resolving vault: URIs when a
//     Vault client comes up.
//
//  4. Open the two MariaDB pools: the unprivileged application pool and
//     the elevated audit pool (the only credential with INSERT on
//     audit_log).
//
//  5. Dial Redis if configured.  Failure is tolerated: the rate limiter
//     fails open and the logout broadcast falls back to in-process.
//
//  6. Construct the wired pieces – field cipher, limiter, token service,
//     resolver, recorder, reconciler, public tenant cache.
//
//  7. Assemble the chi router: security headers and request-info
//     enrichment everywhere, rate-limit tiers on the public surface,
//     tenant resolution plus permission gates on the scoped surface,
//     Prometheus /metrics alongside.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EcodiaTate/wattleos-sub008/internal/acl"
	"github.com/EcodiaTate/wattleos-sub008/internal/audit"
	"github.com/EcodiaTate/wattleos-sub008/internal/auth"
	"github.com/EcodiaTate/wattleos-sub008/internal/config"
	"github.com/EcodiaTate/wattleos-sub008/internal/database"
	"github.com/EcodiaTate/wattleos-sub008/internal/fieldcrypt"
	"github.com/EcodiaTate/wattleos-sub008/internal/idle"
	"github.com/EcodiaTate/wattleos-sub008/internal/logger"
	"github.com/EcodiaTate/wattleos-sub008/internal/middleware"
	"github.com/EcodiaTate/wattleos-sub008/internal/payments"
	"github.com/EcodiaTate/wattleos-sub008/internal/ratelimit"
	redisx "github.com/EcodiaTate/wattleos-sub008/internal/redis"
	"github.com/EcodiaTate/wattleos-sub008/internal/requestinfo"
	"github.com/EcodiaTate/wattleos-sub008/internal/server"
	"github.com/EcodiaTate/wattleos-sub008/internal/tenant"
	"github.com/EcodiaTate/wattleos-sub008/internal/token"
	"github.com/EcodiaTate/wattleos-sub008/internal/vault"
)

const serverEnvPath = "/usr/local/etc/wattleos/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx := context.Background()

	rootDir, _ := os.Getwd()
	zlog, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	//
	// ── 1.  Config (with optional Vault resolution) ─────────────────────
	//
	var resolve config.Resolver
	if vc, err := vault.New(ctx, zlog.Infof); err == nil {
		resolve = vc.Resolve
	} else {
		zlog.Infow("vault unavailable, literal config values only", "err", err)
	}

	cfg, err := config.Load(ctx, resolve)
	if err != nil {
		zlog.Fatalw("load config", "err", err)
	}

	//
	// ── 2.  Database pools ──────────────────────────────────────────────
	//
	appDB, err := database.Open(cfg.Database.AppDSN)
	if err != nil {
		zlog.Fatalw("connect application DB", "err", err)
	}
	defer appDB.Close()

	auditDB, err := database.OpenAudit(cfg.Database.AuditDSN)
	if err != nil {
		zlog.Fatalw("connect audit DB", "err", err)
	}
	defer auditDB.Close()

	// Early sanity check, mirrors what ops look for first after a deploy.
	var active int
	_ = appDB.Get(&active, `SELECT COUNT(*) FROM tenant WHERE is_active = TRUE`)
	zlog.Infof("%d active school(s) found", active)

	//
	// ── 3.  Redis (optional) ────────────────────────────────────────────
	//
	var store ratelimit.Store
	var broadcast idle.Broadcast = idle.NewLocalBroadcast()
	if cfg.Redis.Addr != "" {
		rc, err := redisx.Connect(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			zlog.Errorw("redis unavailable, limiter fails open, broadcast stays local", "err", err)
		} else {
			defer rc.Close()
			store = ratelimit.NewRedisStore(rc)
			broadcast = idle.NewRedisBroadcast(rc)
		}
	} else {
		zlog.Info("redis not configured, limiter fails open, broadcast stays local")
	}

	//
	// ── 4.  Wired pieces ────────────────────────────────────────────────
	//
	cipher := fieldcrypt.New(cfg.Crypto.FieldKey)
	if !cipher.Available() {
		zlog.Warn("field encryption DEGRADED: no key configured, sensitive fields stored in plaintext")
	}

	limiter := ratelimit.New(store, tierOverrides(cfg))

	tokens, err := token.NewService(cfg.Token.Secret, cfg.Token.Issuer, tokenTTL(cfg))
	if err != nil {
		zlog.Fatalw("token service", "err", err)
	}

	if path := os.Getenv("WOS_GEOIP_DB"); path != "" {
		if err := requestinfo.InitGeo(path); err != nil {
			zlog.Warnw("geoip disabled", "path", path, "err", err)
		}
	}

	publicCache := tenant.NewCache(appDB, tenant.IdleTTL)
	defer publicCache.Stop()

	recorder := audit.NewRecorder(auditDB)
	a := &app{
		cfg:        cfg,
		db:         appDB,
		resolver:   auth.NewResolver(appDB, tokens),
		tokens:     tokens,
		limiter:    limiter,
		recorder:   recorder,
		reconciler: payments.NewReconciler(appDB, recorder),
		cipher:     cipher,
		public:     publicCache,
		broadcast:  broadcast,
		log:        zlog,
	}

	//
	// ── 5.  Router ──────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)

	r.Handle("/metrics", promhttp.Handler())

	// Public surface: no credential, tier-limited.
	r.Group(func(r chi.Router) {
		r.With(ratelimit.Limit(limiter, ratelimit.TierPublicRead)).
			Get("/schools/{slug}", a.schoolBySlug)
		r.With(ratelimit.Limit(limiter, ratelimit.TierPublicWrite)).
			Post("/webhooks/payments/{tenantID}", a.paymentWebhook)
		// acceptInvitation keys the limiter on the invitation token itself.
		r.Post("/invitations/accept", a.acceptInvitation)
	})

	// Threshold surface: credential required, stamped tenant not yet.
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Limit(limiter, ratelimit.TierAuthAction))
		r.Get("/select-tenant", a.listTenantChoices)
		r.Post("/select-tenant", a.selectTenant)
		r.Post("/logout", a.logout)
	})

	// Scoped surface: full tenant context, permission gates per route.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.resolver))
		r.Get("/me", a.me)
		r.Get("/session/idle", a.idleConfig)
		r.With(auth.RequirePermission(acl.PermViewAuditLogs)).
			Get("/audit", a.listAuditLog)
		r.With(auth.RequirePermission(acl.PermManageSettings)).
			Get("/settings", a.tenantSettings)
		r.With(auth.RequirePermission(acl.PermEditMedical)).
			Put("/students/{studentID}/medical-notes", a.updateMedicalNotes)
	})

	//
	// ── 6.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS, r))
	zlog.Infof("listening on %s", cfg.HTTP.ListenAddr)
	if err := srv.ListenAndServe(); err != nil {
		zlog.Fatalw("http server", "err", err)
	}
}

// tierOverrides converts the optional config block into limiter
// overrides; tiers the operator left alone stay on compiled defaults.
func tierOverrides(cfg *config.Config) map[ratelimit.Tier]ratelimit.TierConfig {
	out := make(map[ratelimit.Tier]ratelimit.TierConfig, 3)
	for tier, t := range map[ratelimit.Tier]config.Tier{
		ratelimit.TierPublicWrite: cfg.RateLimit.PublicWrite,
		ratelimit.TierPublicRead:  cfg.RateLimit.PublicRead,
		ratelimit.TierAuthAction:  cfg.RateLimit.AuthAction,
	} {
		if t.Limit > 0 && t.WindowSeconds > 0 {
			out[tier] = ratelimit.TierConfig{
				Limit:      t.Limit,
				Window:     time.Duration(t.WindowSeconds) * time.Second,
				FailClosed: t.FailClosed,
			}
		}
	}
	return out
}

func tokenTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Token.TTLHours) * time.Hour
}
