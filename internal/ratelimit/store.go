// internal/ratelimit/store.go
//
// Counter-store implementations.
//
// RedisStore is the production store: INCR plus EXPIRE on first hit, so a
// key's window starts at its first request and the counter vanishes when
// the window elapses.  MemoryStore is a process-local double with the
// same semantics, used in tests and in single-instance dev setups where
// Redis is not running.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

//
// Redis store
//

// RedisStore counts in a shared Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an established client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr increments key and stamps the window TTL on the first hit.  The
// increment and the expiry ride one pipeline so a crash between them
// cannot leave an immortal counter.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	pttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = window
	}
	return incr.Val(), ttl, nil
}

//
// In-memory store
//

type memEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded map with per-key expiry.  Not shared
// across instances; fine for tests and single-node dev.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time // swappable clock for window-expiry tests
}

// NewMemoryStore returns an empty store on the real clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]memEntry), now: time.Now}
}

// Incr mirrors RedisStore.Incr.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.m[key]
	if !ok || now.After(e.expiresAt) {
		e = memEntry{count: 0, expiresAt: now.Add(window)}
	}
	e.count++
	s.m[key] = e
	return e.count, e.expiresAt.Sub(now), nil
}

// SetClock injects a fake clock.  Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
