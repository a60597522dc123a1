// internal/idle/idle_test.go
//
// Tests for the idle state machine and the logout broadcast, with the
// production intervals scaled down to milliseconds.
//
// Run: go test ./internal/idle -v

package idle

import (
	"context"
	"testing"
	"time"
)

// testConfig compresses the 15 min / 60 s production timings into a few
// tens of milliseconds while preserving their ordering: poll coarser
// than tick is not required, but threshold > poll and warning > tick
// must hold or the machine cannot move.
func testConfig() Config {
	return Config{
		Threshold: 50 * time.Millisecond,
		Warning:   80 * time.Millisecond,
		Poll:      10 * time.Millisecond,
		Tick:      10 * time.Millisecond,
	}
}

type probe struct {
	warned  chan time.Duration
	expired chan string
}

func newProbe() *probe {
	return &probe{
		warned:  make(chan time.Duration, 64),
		expired: make(chan string, 1),
	}
}

func startMonitor(t *testing.T, remote <-chan struct{}) (*Monitor, *probe) {
	t.Helper()
	p := newProbe()
	m := NewMonitor("user:10", testConfig(),
		func(remaining time.Duration) { p.warned <- remaining },
		func(reason string) { p.expired <- reason })

	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	go m.Run(ctx, remote)
	return m, p
}

func (p *probe) awaitWarning(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-p.warned:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never entered the warning state")
		return 0
	}
}

func (p *probe) awaitExpiry(t *testing.T) string {
	t.Helper()
	select {
	case reason := <-p.expired:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never expired")
		return ""
	}
}

func TestMonitor_IdleTimeoutExpires(t *testing.T) {
	m, p := startMonitor(t, nil)

	first := p.awaitWarning(t)
	if first <= 0 {
		t.Fatalf("initial countdown = %v, want the full warning span", first)
	}
	if reason := p.awaitExpiry(t); reason != ReasonIdle {
		t.Fatalf("expiry reason = %q, want %q", reason, ReasonIdle)
	}
	if m.State() != StateExpired {
		t.Fatalf("state = %v, want expired", m.State())
	}
}

func TestMonitor_TouchDuringWarningResets(t *testing.T) {
	m, p := startMonitor(t, nil)

	p.awaitWarning(t)
	m.Touch()

	// The countdown must be cancelled: no expiry for a full warning
	// span after the touch.
	select {
	case reason := <-p.expired:
		t.Fatalf("expired (%q) despite an interaction during warning", reason)
	case <-time.After(testConfig().Warning + 20*time.Millisecond):
	}
	if got := m.State(); got != StateActive {
		t.Fatalf("state after touch = %v, want active", got)
	}

	// Drop countdown callbacks left over from the first warning phase.
	for {
		select {
		case <-p.warned:
			continue
		default:
		}
		break
	}

	// The idle clock restarted, so with no further interaction the
	// machine walks Warning then Expired again.
	p.awaitWarning(t)
	if reason := p.awaitExpiry(t); reason != ReasonIdle {
		t.Fatalf("second expiry reason = %q, want %q", reason, ReasonIdle)
	}
}

func TestMonitor_ActivityKeepsSessionAlive(t *testing.T) {
	m, _ := startMonitor(t, nil)

	// Touch faster than the threshold for several multiples of it.
	deadline := time.Now().Add(4 * testConfig().Threshold)
	for time.Now().Before(deadline) {
		m.Touch()
		time.Sleep(testConfig().Poll)
	}
	if got := m.State(); got != StateActive {
		t.Fatalf("state under steady activity = %v, want active", got)
	}
}

func TestMonitor_RemoteLogoutExpiresImmediately(t *testing.T) {
	b := NewLocalBroadcast()
	signals, cancel := b.Subscribe(t.Context(), "user:10")
	defer cancel()

	m, p := startMonitor(t, signals)

	// The session is fresh and nowhere near its threshold; the remote
	// signal must still terminate it.
	m.Touch()
	if err := b.Publish(t.Context(), "user:10"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if reason := p.awaitExpiry(t); reason != ReasonRemote {
		t.Fatalf("expiry reason = %q, want %q", reason, ReasonRemote)
	}
	if m.State() != StateExpired {
		t.Fatalf("state = %v, want expired", m.State())
	}
}

func TestLocalBroadcast_FanOutAndScoping(t *testing.T) {
	b := NewLocalBroadcast()

	a1, cancelA1 := b.Subscribe(t.Context(), "user:1")
	a2, cancelA2 := b.Subscribe(t.Context(), "user:1")
	other, cancelOther := b.Subscribe(t.Context(), "user:2")
	defer cancelA1()
	defer cancelA2()
	defer cancelOther()

	if err := b.Publish(t.Context(), "user:1"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, ch := range []<-chan struct{}{a1, a2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d missed the signal", i)
		}
	}
	select {
	case <-other:
		t.Fatal("signal leaked across principals")
	default:
	}
}

func TestLocalBroadcast_CancelClosesChannel(t *testing.T) {
	b := NewLocalBroadcast()
	ch, cancel := b.Subscribe(t.Context(), "user:1")

	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	if err := b.Publish(t.Context(), "user:1"); err != nil {
		t.Fatalf("Publish after cancel: %v", err)
	}
}

func TestTouch_NeverBlocks(t *testing.T) {
	m := NewMonitor("user:10", testConfig(), nil, nil)
	for i := 0; i < 100; i++ {
		m.Touch() // no Run loop draining; must coalesce, not block
	}
	if m.State() != StateActive {
		t.Fatalf("fresh monitor state = %v, want active", m.State())
	}
}
