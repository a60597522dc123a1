// internal/idle/idle.go
//
// Idle-session monitor.
//
/*
Context
--------
Monitor is the session-side half of forced re-authentication.  One
monitor runs per live session as a single goroutine: it watches for
activity signals, polls on a coarse interval while the session is
active, and tightens to a one-second countdown only once the warning
fires.  The coarse poll bounds cost across many idle sessions; the
one-second tick keeps the visible countdown honest.

Three states.  Active means a qualifying interaction was seen within
the threshold.  Warning means the threshold elapsed and the countdown
is running—one Touch returns the session to Active with a fresh clock.
Expired is terminal: the expiry callback fires once and the goroutine
exits.

Expiry also arrives from outside.  A logout in any concurrently open
session of the same principal is broadcast, and receipt moves the
monitor straight to Expired regardless of its own idle clock.  The
originating requirement is shared devices: several staff on one tablet,
where a colleague's logout must end every session of that account.

The server does not trust any of this.  Expiry here merely discards the
credential and redirects; real invalidation is the token-epoch bump
that makes the resolver reject stale tokens on the next request.
*/
package idle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/EcodiaTate/wattleos-sub008/internal/metrics"
)

// State is the monitor's lifecycle position.
type State int32

const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Expiry reasons passed to the expire callback.
const (
	ReasonIdle   = "idle_timeout"
	ReasonRemote = "remote_logout"
)

// Config holds the monitor's timing knobs.  Zero values take the
// defaults below.
type Config struct {
	// Threshold is the inactivity span that moves Active to Warning.
	Threshold time.Duration
	// Warning is the countdown length before Warning becomes Expired.
	Warning time.Duration
	// Poll is the coarse interval at which the threshold is checked
	// while Active.  Deliberately much coarser than Tick.
	Poll time.Duration
	// Tick is the countdown granularity while in Warning.
	Tick time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 15 * time.Minute
	}
	if c.Warning <= 0 {
		c.Warning = 60 * time.Second
	}
	if c.Poll <= 0 {
		c.Poll = 30 * time.Second
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	return c
}

// Monitor tracks one session's idle state.  Construct with NewMonitor,
// start the loop with Run, and signal interactions with Touch.  Touch
// and State are safe from any goroutine; everything else belongs to the
// Run loop.
type Monitor struct {
	cfg       Config
	principal string

	touch chan struct{}
	state atomic.Int32

	onWarning func(remaining time.Duration)
	onExpire  func(reason string)
}

// NewMonitor builds a monitor for one principal's session.  Either
// callback may be nil.
func NewMonitor(principal string, cfg Config, onWarning func(time.Duration), onExpire func(string)) *Monitor {
	return &Monitor{
		cfg:       cfg.withDefaults(),
		principal: principal,
		touch:     make(chan struct{}, 1),
		onWarning: onWarning,
		onExpire:  onExpire,
	}
}

// Touch records a qualifying interaction.  Non-blocking: a signal
// already pending coalesces with this one, which is fine because the
// loop only needs to know "activity happened since I last looked".
func (m *Monitor) Touch() {
	select {
	case m.touch <- struct{}{}:
	default:
	}
}

// State reports the current lifecycle position.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Run drives the state machine until expiry or context cancellation.
// remote, normally a Broadcast subscription for the same principal,
// forces Expired on receipt; pass nil when cross-session logout is not
// wired.
func (m *Monitor) Run(ctx context.Context, remote <-chan struct{}) {
	last := time.Now()

	poll := time.NewTicker(m.cfg.Poll)
	defer poll.Stop()

	// countdown is nil except while in Warning, which removes its case
	// from the select entirely.
	var (
		countdown  *time.Ticker
		countdownC <-chan time.Time
		warnedAt   time.Time
	)
	stopCountdown := func() {
		if countdown != nil {
			countdown.Stop()
			countdown = nil
			countdownC = nil
		}
	}
	defer stopCountdown()

	for {
		select {
		case <-ctx.Done():
			return

		case <-m.touch:
			last = time.Now()
			if m.State() == StateWarning {
				stopCountdown()
				m.state.Store(int32(StateActive))
			}

		case <-poll.C:
			if m.State() != StateActive || time.Since(last) < m.cfg.Threshold {
				continue
			}
			m.state.Store(int32(StateWarning))
			warnedAt = time.Now()
			countdown = time.NewTicker(m.cfg.Tick)
			countdownC = countdown.C
			if m.onWarning != nil {
				m.onWarning(m.cfg.Warning)
			}

		case <-countdownC:
			remaining := m.cfg.Warning - time.Since(warnedAt)
			if remaining > 0 {
				if m.onWarning != nil {
					m.onWarning(remaining)
				}
				continue
			}
			m.expire(ReasonIdle)
			return

		case _, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			m.expire(ReasonRemote)
			return
		}
	}
}

func (m *Monitor) expire(reason string) {
	m.state.Store(int32(StateExpired))
	metrics.IdleExpireTotal.WithLabelValues(reason).Inc()
	if m.onExpire != nil {
		m.onExpire(reason)
	}
}
