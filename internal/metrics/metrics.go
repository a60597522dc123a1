// Package metrics holds Prometheus instruments shared across the access
// core.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolve_total",
			Help: "Tenant-context resolutions by outcome.",
		},
		[]string{"outcome"})

	AuditWriteTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_total",
			Help: "Audit entries successfully written.",
		})

	AuditWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_errors_total",
			Help: "Audit writes that failed and were suppressed.",
		})

	FieldEncryptFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "field_encrypt_fallback_total",
			Help: "Field encryptions that returned plaintext because no key is loaded.",
		})

	FieldDecryptErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "field_decrypt_errors_total",
			Help: "Field decryptions that failed and returned the stored value.",
		})

	RateLimitVerdictTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_verdict_total",
			Help: "Rate-limit checks by tier and verdict (allowed, denied, fail_open).",
		},
		[]string{"tier", "verdict"})

	IdleExpireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idle_session_expire_total",
			Help: "Idle sessions expired, by reason (timeout, broadcast).",
		},
		[]string{"reason"})

	PublicTenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "public_tenant_load_total",
			Help: "Tenant rows loaded into the public slug cache.",
		})
)

func init() {
	prometheus.MustRegister(
		ResolveTotal,
		AuditWriteTotal,
		AuditWriteErrorsTotal,
		FieldEncryptFallbackTotal,
		FieldDecryptErrorsTotal,
		RateLimitVerdictTotal,
		IdleExpireTotal,
		PublicTenantLoadTotal,
	)
}
