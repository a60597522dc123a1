// internal/tenant/cache.go
//
// Short-TTL cache for the unauthenticated public-slug path.
//
// Context
// -------
// Public brochure and lookup endpoints resolve tenants by URL slug, take
// enumeration-level traffic, and return only the Public projection.  The
// rows they need are tiny and tenant-global (no user or permission data),
// so caching them is safe where caching a resolved TenantContext would
// not be: contexts live exactly one request, rows may live a few minutes.
//
// The cache lazily loads on first hit, collapses concurrent misses for
// the same slug through singleflight, and evicts idle entries on a
// background ticker.
package tenant

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/EcodiaTate/wattleos-sub008/internal/metrics"
)

// Static defaults for the public cache.
const (
	IdleTTL       = 5 * time.Minute
	EvictInterval = time.Minute
)

type entry struct {
	rec      *Record
	lastSeen int64 // UnixNano
}

// Cache lazily loads tenant rows by slug and evicts them on idle TTL.
type Cache struct {
	db          *sqlx.DB
	sfg         singleflight.Group
	m           sync.Map
	evictTicker *time.Ticker
	idleTTL     time.Duration
}

// NewCache constructs a Cache and starts the background evictor.
func NewCache(db *sqlx.DB, idleTTL time.Duration) *Cache {
	c := &Cache{db: db, idleTTL: idleTTL}
	c.evictTicker = time.NewTicker(EvictInterval)
	go c.evictLoop()
	return c
}

// BySlug returns the active tenant for slug, loading it on demand.
func (c *Cache) BySlug(ctx context.Context, slug string) (*Record, error) {
	if v, ok := c.m.Load(slug); ok {
		ent := v.(*entry)
		atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
		return ent.rec, nil
	}

	v, err, _ := c.sfg.Do(slug, func() (interface{}, error) {
		// Double-check after the singleflight barrier.
		if v, ok := c.m.Load(slug); ok {
			ent := v.(*entry)
			atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
			return ent.rec, nil
		}
		rec, err := BySlug(ctx, c.db, slug)
		if err != nil {
			return nil, err
		}
		c.m.Store(slug, &entry{rec: rec, lastSeen: time.Now().UnixNano()})
		metrics.PublicTenantLoadTotal.Inc()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// evictLoop drops entries idle longer than idleTTL.  Entries hold no
// resources, so eviction is just a map delete.
func (c *Cache) evictLoop() {
	for range c.evictTicker.C {
		now := time.Now().UnixNano()
		c.m.Range(func(key, value any) bool {
			ent := value.(*entry)
			idle := time.Duration(now - atomic.LoadInt64(&ent.lastSeen))
			if idle > c.idleTTL {
				c.m.Delete(key)
			}
			return true
		})
	}
}

// Stop halts the evictor ticker.  Entries already cached stay readable.
func (c *Cache) Stop() { c.evictTicker.Stop() }
