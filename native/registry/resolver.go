package registry

import (
	"fmt"
	"sync"
	"time"

	"vaultchain/crypto"
)

type cacheEntry struct {
	addr      crypto.Address
	fetchedAt time.Time
}

// Resolver caches registry lookups. Entries older than maxEntryAge are
// re-fetched from state on the next Resolve; RefreshCache re-fetches a key
// set eagerly under the cache-maintenance role.
type Resolver struct {
	registry *Registry

	mu          sync.Mutex
	entries     map[string]cacheEntry
	maxEntryAge time.Duration
	nowFn       func() time.Time
}

// NewResolver wraps the registry with a cache. A non-positive maxEntryAge
// falls back to DefaultMaxEntryAge.
func NewResolver(registry *Registry, maxEntryAge time.Duration) *Resolver {
	if maxEntryAge <= 0 {
		maxEntryAge = DefaultMaxEntryAge
	}
	return &Resolver{
		registry:    registry,
		entries:     make(map[string]cacheEntry),
		maxEntryAge: maxEntryAge,
		nowFn:       time.Now,
	}
}

// SetNowFunc overrides the clock used for entry aging. Passing nil restores
// time.Now.
func (c *Resolver) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.mu.Lock()
	c.nowFn = now
	c.mu.Unlock()
}

// Resolve returns the cached binding for the key, re-fetching from state
// when the entry is missing or older than maxEntryAge. An unregistered key
// fails with ErrUnregisteredModule.
func (c *Resolver) Resolve(key string) (crypto.Address, error) {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return crypto.Address{}, err
	}

	c.mu.Lock()
	now := c.nowFn()
	entry, ok := c.entries[normalized]
	maxAge := c.maxEntryAge
	c.mu.Unlock()

	if ok && now.Sub(entry.fetchedAt) <= maxAge {
		return entry.addr, nil
	}

	addr, err := c.registry.ResolveOrFail(normalized)
	if err != nil {
		return crypto.Address{}, err
	}
	c.mu.Lock()
	c.entries[normalized] = cacheEntry{addr: addr, fetchedAt: now}
	c.mu.Unlock()
	return addr, nil
}

// RefreshCache re-fetches the provided keys (or every cached key when none
// are given) from state. Missing bindings are skipped so optional modules do
// not break a refresh sweep. Requires the cache-maintenance role.
func (c *Resolver) RefreshCache(caller crypto.Address, keys ...string) error {
	if !c.registry.hasRole(roleCacheMaintainer, caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if len(keys) == 0 {
		c.mu.Lock()
		for key := range c.entries {
			keys = append(keys, key)
		}
		c.mu.Unlock()
	}
	for _, key := range keys {
		normalized, err := NormalizeKey(key)
		if err != nil {
			continue
		}
		addr, ok, err := c.registry.Resolve(normalized)
		if err != nil || !ok {
			continue
		}
		c.mu.Lock()
		c.entries[normalized] = cacheEntry{addr: addr, fetchedAt: c.nowFn()}
		c.mu.Unlock()
	}
	return nil
}
