package orkestro

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambiyansyah-risyal/orkestro/internal/singleflight"
)

// Identity is resolved credential material plus an optional expiry. The
// value is owned by the identity resolver's cache and referenced, not
// owned, by in-flight sign operations.
type Identity struct {
	value     any
	expiresAt time.Time
}

// NewIdentity wraps credential material that never expires.
func NewIdentity(value any) *Identity {
	return &Identity{value: value}
}

// NewExpiringIdentity wraps credential material with an expiry.
func NewExpiringIdentity(value any, expiresAt time.Time) *Identity {
	return &Identity{value: value, expiresAt: expiresAt}
}

// Value returns the scheme-specific credential material.
func (i *Identity) Value() any { return i.value }

// Expiration returns the expiry, or the zero time for non-expiring
// identities.
func (i *Identity) Expiration() time.Time { return i.expiresAt }

// Expired reports whether the identity is expired at the given instant.
func (i *Identity) Expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// Credentials is the identity value consumed by the HMAC scheme.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Token is the identity value consumed by the bearer scheme.
type Token struct {
	Value string
}

// UserPassword is the identity value consumed by the basic auth scheme.
type UserPassword struct {
	Username string
	Password string
}

// APIKey is the identity value consumed by the API key scheme.
type APIKey struct {
	Value string
}

// IdentityResolver resolves the credential material for one auth scheme.
// Resolution may suspend on network I/O (e.g. a token service) and must
// honor ctx cancellation. A resolution failure is non-fatal to the overall
// operation: scheme selection falls through to the next candidate.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context) (*Identity, error)
}

// IdentityResolverFunc adapts a function to the IdentityResolver interface.
type IdentityResolverFunc func(ctx context.Context) (*Identity, error)

func (f IdentityResolverFunc) ResolveIdentity(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

// StaticIdentity returns a resolver that always yields the given identity.
func StaticIdentity(id *Identity) IdentityResolver {
	return IdentityResolverFunc(func(context.Context) (*Identity, error) {
		return id, nil
	})
}

// CacheStats are cumulative counters exposed by CachedIdentityResolver.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Refreshes uint64
}

// CacheObserver receives cache events for metrics wiring: "hit", "miss" or
// "refresh".
type CacheObserver func(event string)

// CacheOption configures a CachedIdentityResolver.
type CacheOption func(*CachedIdentityResolver)

// WithRefreshWindow refreshes identities this long before their expiry so
// attempts never sign with nearly-expired material.
func WithRefreshWindow(d time.Duration) CacheOption {
	return func(c *CachedIdentityResolver) {
		c.refreshWindow = d
	}
}

// WithCacheObserver registers an observer for cache events.
func WithCacheObserver(fn CacheObserver) CacheOption {
	return func(c *CachedIdentityResolver) {
		c.observer = fn
	}
}

// CachedIdentityResolver caches the identity produced by an inner resolver
// with at-most-one-in-flight-refresh semantics: concurrent callers that find
// the cache empty or expired await the same refresh rather than issuing
// duplicates. Expired identities refresh transparently.
type CachedIdentityResolver struct {
	inner         IdentityResolver
	refreshWindow time.Duration
	observer      CacheObserver
	now           func() time.Time

	flight *singleflight.Group

	mu      sync.RWMutex
	current *Identity

	hits      atomic.Uint64
	misses    atomic.Uint64
	refreshes atomic.Uint64
}

// refreshKey is the single singleflight key: one resolver instance caches
// exactly one identity.
const refreshKey = "identity"

// NewCachedIdentityResolver wraps inner with an expiry-aware cache.
func NewCachedIdentityResolver(inner IdentityResolver, opts ...CacheOption) *CachedIdentityResolver {
	c := &CachedIdentityResolver{
		inner:  inner,
		flight: singleflight.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveIdentity implements the IdentityResolver interface.
func (c *CachedIdentityResolver) ResolveIdentity(ctx context.Context) (*Identity, error) {
	if id := c.cached(); id != nil {
		c.hits.Add(1)
		c.observe("hit")
		return id, nil
	}
	c.misses.Add(1)
	c.observe("miss")

	v, err := c.flight.Do(ctx, refreshKey, func(ctx context.Context) (interface{}, error) {
		// Another waiter may have completed the refresh between the cache
		// check and entering the flight.
		if id := c.cached(); id != nil {
			return id, nil
		}
		id, err := c.inner.ResolveIdentity(ctx)
		if err != nil {
			return nil, err
		}
		c.refreshes.Add(1)
		c.observe("refresh")
		c.mu.Lock()
		c.current = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Identity), nil
}

// cached returns the current identity when it is present and not within the
// refresh window of its expiry.
func (c *CachedIdentityResolver) cached() *Identity {
	c.mu.RLock()
	id := c.current
	c.mu.RUnlock()
	if id == nil {
		return nil
	}
	if id.Expiration().IsZero() {
		return id
	}
	if c.now().Add(c.refreshWindow).Before(id.Expiration()) {
		return id
	}
	return nil
}

// Invalidate drops the cached identity, forcing the next resolution to
// refresh.
func (c *CachedIdentityResolver) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.flight.Forget(refreshKey)
}

// Stats returns cumulative cache counters.
func (c *CachedIdentityResolver) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Refreshes: c.refreshes.Load(),
	}
}

func (c *CachedIdentityResolver) observe(event string) {
	if c.observer != nil {
		c.observer(event)
	}
}
