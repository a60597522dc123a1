// internal/ratelimit/ratelimit_test.go
//
// Unit-tests for the tiered limiter against the in-memory store.
//
// Run: go test ./internal/ratelimit -v

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestCheck_LimitBoundary(t *testing.T) {
	l := New(NewMemoryStore(), map[Tier]TierConfig{
		TierPublicWrite: {Limit: 3, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res := l.Check(ctx, TierPublicWrite, "203.0.113.9")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i {
			t.Fatalf("request %d remaining = %d, want %d", i, res.Remaining, 3-i)
		}
	}

	res := l.Check(ctx, TierPublicWrite, "203.0.113.9")
	if res.Allowed {
		t.Fatal("request past the limit should be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("denied remaining = %d, want 0", res.Remaining)
	}
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l := New(NewMemoryStore(), map[Tier]TierConfig{
		TierPublicWrite: {Limit: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if !l.Check(ctx, TierPublicWrite, "198.51.100.1").Allowed {
		t.Fatal("first caller should be allowed")
	}
	if l.Check(ctx, TierPublicWrite, "198.51.100.1").Allowed {
		t.Fatal("first caller should now be denied")
	}
	if !l.Check(ctx, TierPublicWrite, "198.51.100.2").Allowed {
		t.Fatal("a different caller must not share the window")
	}
	if !l.Check(ctx, TierPublicRead, "198.51.100.1").Allowed {
		t.Fatal("a different tier must not share the window")
	}
}

func TestCheck_WindowReset(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	var mu sync.Mutex
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	l := New(store, map[Tier]TierConfig{
		TierPublicRead: {Limit: 1, Window: 5 * time.Minute},
	})
	ctx := context.Background()

	if !l.Check(ctx, TierPublicRead, "k").Allowed {
		t.Fatal("first request should pass")
	}
	if l.Check(ctx, TierPublicRead, "k").Allowed {
		t.Fatal("second request inside the window should be denied")
	}

	mu.Lock()
	now = now.Add(5*time.Minute + time.Second)
	mu.Unlock()

	if !l.Check(ctx, TierPublicRead, "k").Allowed {
		t.Fatal("request after the window elapsed should pass again")
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestCheck_FailOpenAndClosed(t *testing.T) {
	ctx := context.Background()

	open := New(failingStore{}, nil)
	if !open.Check(ctx, TierPublicWrite, "x").Allowed {
		t.Fatal("store failure must fail open by default")
	}

	nilStore := New(nil, nil)
	if !nilStore.Check(ctx, TierPublicWrite, "x").Allowed {
		t.Fatal("unconfigured store must fail open by default")
	}

	closed := New(failingStore{}, map[Tier]TierConfig{
		TierPublicWrite: {Limit: 5, Window: 15 * time.Minute, FailClosed: true},
	})
	if closed.Check(ctx, TierPublicWrite, "x").Allowed {
		t.Fatal("FailClosed tier must deny when the store is down")
	}
}

func TestLimitMiddleware(t *testing.T) {
	l := New(NewMemoryStore(), map[Tier]TierConfig{
		TierAuthAction: {Limit: 1, Window: time.Minute},
	})

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Limit(l, TierAuthAction)(ok)

	req := httptest.NewRequest(http.MethodPost, "/invitations/accept", nil)
	req.RemoteAddr = "192.0.2.7:51000"

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("429 response must carry Retry-After")
	}
}
