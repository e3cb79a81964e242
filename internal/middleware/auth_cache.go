package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/bookvault/bookvault/internal/models"
)

const (
	userCacheTTL       = 5 * time.Minute
	negativeCacheTTL   = 30 * time.Second
	maxCacheEntries    = 10000
	cacheCleanupPeriod = 60 * time.Second
)

// errCachedNotFound is returned for negative cache hits.
var errCachedNotFound = errors.New("user not found (cached)")

// cachedUser holds a lookup result. A nil user marks a cached failure.
type cachedUser struct {
	user      *models.User
	fetchedAt time.Time
}

func (cu cachedUser) isNegative() bool {
	return cu.user == nil
}

func (cu cachedUser) ttl() time.Duration {
	if cu.isNegative() {
		return negativeCacheTTL
	}
	return userCacheTTL
}

func (cu cachedUser) expired(now time.Time) bool {
	return now.Sub(cu.fetchedAt) >= cu.ttl()
}

// hashKey returns a hex-encoded SHA-256 hash of the API key so raw keys
// are never stored in memory.
func hashKey(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}

// CachedUserLookup wraps a UserLookup with a bounded in-memory cache.
type CachedUserLookup struct {
	inner UserLookup
	mu    sync.RWMutex
	cache map[string]cachedUser
}

// NewCachedUserLookup creates a caching wrapper around the given UserLookup.
// The provided context controls the lifetime of the background eviction goroutine.
func NewCachedUserLookup(ctx context.Context, inner UserLookup) *CachedUserLookup {
	c := &CachedUserLookup{
		inner: inner,
		cache: make(map[string]cachedUser),
	}
	go c.evictLoop(ctx)
	return c
}

func (c *CachedUserLookup) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.mu.Lock()
			c.evictExpired(now)
			c.mu.Unlock()
		}
	}
}

// evictExpired must be called with mu held.
func (c *CachedUserLookup) evictExpired(now time.Time) {
	for k, v := range c.cache {
		if v.expired(now) {
			delete(c.cache, k)
		}
	}
}

// GetUserByAPIKey returns a cached user or delegates to the inner lookup.
// Failed lookups are negatively cached for 30s to keep repeated bad keys off the database.
func (c *CachedUserLookup) GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	hk := hashKey(apiKey)

	c.mu.RLock()
	entry, ok := c.cache[hk]
	c.mu.RUnlock()

	if ok && !entry.expired(time.Now()) {
		if entry.isNegative() {
			return nil, errCachedNotFound
		}

		u := *entry.user

		return &u, nil
	}

	user, err := c.inner.GetUserByAPIKey(ctx, apiKey)
	if err != nil {
		// Only a definite miss is cached; transient database errors are not.
		if errors.Is(err, models.ErrUserNotFound) {
			c.store(hk, cachedUser{fetchedAt: time.Now()})
		}
		return nil, err
	}

	c.store(hk, cachedUser{user: user, fetchedAt: time.Now()})

	return user, nil
}

func (c *CachedUserLookup) store(hk string, entry cachedUser) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= maxCacheEntries {
		c.evictExpired(time.Now())
		for k := range c.cache {
			if len(c.cache) < maxCacheEntries {
				break
			}
			delete(c.cache, k)
		}
	}

	c.cache[hk] = entry
}
