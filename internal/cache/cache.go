// Package cache memoizes accepted search matches per destination platform.
package cache

import (
	"fmt"
	"time"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 10_000
)

type entry struct {
	match     models.ScoredMatch
	expiresAt time.Time
}

// SearchCache is a bounded LRU of query → match with a per-entry TTL.
//
// Expired entries are evicted lazily by Get. The underlying LRU is safe for concurrent use.
type SearchCache struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache. Non-positive arguments fall back to [DefaultTTL] and [DefaultMaxEntries].
func New(ttl time.Duration, maxEntries int) (*SearchCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	return &SearchCache{entries: entries, ttl: ttl, now: time.Now}, nil
}

// FromConfig builds a cache from [shared.CacheConfig].
func FromConfig(cfg shared.CacheConfig) (*SearchCache, error) {
	return New(cfg.TTL(), cfg.MaxEntries)
}

func key(query string, platform models.Platform) string {
	return string(platform) + "\x00" + query
}

// Get returns the match cached for the normalized query on platform.
func (c *SearchCache) Get(query string, platform models.Platform) (models.ScoredMatch, bool) {
	k := key(query, platform)
	e, ok := c.entries.Get(k)
	if !ok {
		return models.ScoredMatch{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(k)
		return models.ScoredMatch{}, false
	}
	return e.match, true
}

// Put stores an accepted match. Misses are never cached, so callers only Put real matches.
func (c *SearchCache) Put(query string, platform models.Platform, match models.ScoredMatch) {
	c.entries.Add(key(query, platform), entry{match: match, expiresAt: c.now().Add(c.ttl)})
}

// Len reports the number of entries, including expired ones not yet evicted.
func (c *SearchCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *SearchCache) Purge() {
	c.entries.Purge()
}
