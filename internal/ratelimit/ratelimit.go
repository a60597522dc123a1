// internal/ratelimit/ratelimit.go
//
// Tiered request throttling for endpoints reachable without authentication.
//
// Context
// -------
// Public endpoints are grouped into three statically configured tiers,
// ordered by blast radius:
//
//	public_write – unauthenticated mutations (webhooks, enrolment forms):
//	               5 per 15 min, the tightest window.
//	public_read  – unauthenticated lookups, which still enable
//	               enumeration attacks: 20 per 5 min.
//	auth_action  – authenticated-but-public-URL actions such as accepting
//	               an emailed invitation token: 10 per 15 min.
//
// Counters live in a shared external store (Redis) so all instances see
// one window per (tier, identifier) key.  Window atomicity under
// concurrent increments is the store's job, not reimplemented here.
//
// Failure philosophy
// ------------------
// The limiter fails OPEN: if the store is unreachable or was never
// configured, requests pass.  Blocking all public traffic platform-wide
// because a non-critical dependency is down would be a worse outcome
// than briefly losing throttling.  Each tier carries a FailClosed knob
// for revisiting that trade per tier; every fail-open verdict is counted
// and logged so the degraded mode is observable.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/EcodiaTate/wattleos-sub008/internal/metrics"
)

// Tier names a statically configured (limit, window) pair.
type Tier string

const (
	TierPublicWrite Tier = "public_write"
	TierPublicRead  Tier = "public_read"
	TierAuthAction  Tier = "auth_action"
)

// TierConfig is one tier's budget.
type TierConfig struct {
	Limit      int
	Window     time.Duration
	FailClosed bool // deny instead of permit when the store is down
}

// DefaultTiers returns the compiled-in budgets.
func DefaultTiers() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierPublicWrite: {Limit: 5, Window: 15 * time.Minute},
		TierPublicRead:  {Limit: 20, Window: 5 * time.Minute},
		TierAuthAction:  {Limit: 10, Window: 15 * time.Minute},
	}
}

// Result is the verdict for one request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store is the shared counter store.  Incr increments the counter under
// key, starting a window of the given length on first increment, and
// returns the post-increment count plus time left in the window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Limiter evaluates tiers against a Store.  A nil store is a valid,
// permanently degraded limiter.
type Limiter struct {
	store Store
	tiers map[Tier]TierConfig
}

// New builds a Limiter.  Overrides replace the default budget for any
// tier present in the map; zero-valued entries are ignored.
func New(store Store, overrides map[Tier]TierConfig) *Limiter {
	tiers := DefaultTiers()
	for name, tc := range overrides {
		if tc.Limit > 0 && tc.Window > 0 {
			tc.FailClosed = tc.FailClosed || tiers[name].FailClosed
			tiers[name] = tc
		}
	}
	return &Limiter{store: store, tiers: tiers}
}

// Available reports whether a counter store is wired.  False means every
// check on a fail-open tier permits.
func (l *Limiter) Available() bool { return l != nil && l.store != nil }

// Check records one hit for (tier, identifier) and returns the verdict.
// Unknown tiers permit; a typo in a route registration must not turn
// into a platform-wide denial.
func (l *Limiter) Check(ctx context.Context, tier Tier, identifier string) Result {
	tc, ok := l.tiers[tier]
	if !ok {
		zap.S().Warnw("rate limit check against unknown tier", "tier", tier)
		return Result{Allowed: true}
	}

	if !l.Available() {
		return l.failVerdict(tier, tc, "store not configured")
	}

	key := fmt.Sprintf("ratelimit:%s:%s", tier, identifier)
	count, ttl, err := l.store.Incr(ctx, key, tc.Window)
	if err != nil {
		return l.failVerdict(tier, tc, err.Error())
	}

	res := Result{
		Allowed:   count <= int64(tc.Limit),
		Remaining: tc.Limit - int(count),
		ResetAt:   time.Now().Add(ttl),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}

	if res.Allowed {
		metrics.RateLimitVerdictTotal.WithLabelValues(string(tier), "allowed").Inc()
	} else {
		metrics.RateLimitVerdictTotal.WithLabelValues(string(tier), "denied").Inc()
	}
	return res
}

// failVerdict applies the tier's fail-open/fail-closed policy when the
// store cannot answer.
func (l *Limiter) failVerdict(tier Tier, tc TierConfig, reason string) Result {
	if tc.FailClosed {
		zap.S().Errorw("rate limit store unavailable, tier fails closed",
			"tier", tier, "reason", reason)
		metrics.RateLimitVerdictTotal.WithLabelValues(string(tier), "denied").Inc()
		return Result{Allowed: false, ResetAt: time.Now().Add(tc.Window)}
	}

	zap.S().Warnw("rate limit store unavailable, failing open",
		"tier", tier, "reason", reason)
	metrics.RateLimitVerdictTotal.WithLabelValues(string(tier), "fail_open").Inc()
	return Result{Allowed: true, Remaining: tc.Limit}
}
