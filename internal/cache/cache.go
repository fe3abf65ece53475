// Package cache memoizes expensive pure computations by a hash of their
// inputs. Entries never expire; identical concurrent builds run once.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/regionmap/internal/metrics"
)

// Cache is a concurrent-safe memo cache.
type Cache struct {
	name   string
	store  *gocache.Cache
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
	log    *zap.Logger
}

// Stats contains cache performance statistics.
type Stats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// New creates an empty cache. name labels its metrics.
func New(name string) *Cache {
	return &Cache{
		name:  name,
		store: gocache.New(gocache.NoExpiration, 0),
		log:   zap.L().With(zap.String("component", "cache"), zap.String("cache", name)),
	}
}

// Key builds a cache key from prefix and a digest of parts. Parts are
// formatted with %#v, so pass values rather than pointers.
func Key(prefix string, parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%#v\x00", p)
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the value cached under key, calling build on a miss. Concurrent
// misses on the same key share one build. Errors are returned to every
// waiter and never cached.
func Get[T any](c *Cache, key string, build func() (T, error)) (T, error) {
	if v, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
		c.log.Debug("cache: hit", zap.String("key", key))
		return v.(T), nil
	}

	c.misses.Add(1)
	metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
	c.log.Debug("cache: miss", zap.String("key", key))

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, err
		}
		c.store.Set(key, v, gocache.NoExpiration)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate removes every entry whose key starts with prefix.
func (c *Cache) Invalidate(prefix string) {
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries: c.store.ItemCount(),
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}
