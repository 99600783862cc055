package auth

import (
	"context"
	"sync"
	"time"

	"github.com/satya6366/trust-ledger/internal/domain"
)

type cacheEntry struct {
	role      domain.Role
	ok        bool
	expiresAt time.Time
}

// CachedResolver memoizes role lookups for a TTL. Lookup errors are never
// cached: a flapping identity store should not pin callers into a failed
// state for the TTL.
type CachedResolver struct {
	inner Resolver
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *CachedResolver) ResolveRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	c.mu.Lock()
	entry, hit := c.entries[userID]
	c.mu.Unlock()

	if hit && c.now().Before(entry.expiresAt) {
		return entry.role, entry.ok, nil
	}

	role, ok, err := c.inner.ResolveRole(ctx, userID)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	c.entries[userID] = cacheEntry{role: role, ok: ok, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return role, ok, nil
}
