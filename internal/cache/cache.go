// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package cache provides thread-safe in-memory caches: Cache, a TTL map for
// reputation results, and SeenSet, a bounded set for duplicate suppression.
//
// Expired Cache entries are removed lazily on Get and by a sweep that runs at most
// once per sweep interval from Set, so the cache needs no background goroutine.
//
//	c := cache.New[reputation.Result](time.Hour)
//	c.Set("ipcheck|192.0.2.1", res)
//	if res, ok := c.Get("ipcheck|192.0.2.1"); ok {
//	    // use res
//	}
package cache

import (
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values of type V for a fixed TTL.
// A zero or negative TTL disables caching: Set is a no-op.
type Cache[V any] struct {
	mu        sync.Mutex
	entries   map[string]entry[V]
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries:   make(map[string]entry[V]),
		ttl:       ttl,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}

	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}

	if now.Sub(c.lastSweep) >= defaultSweepInterval {
		c.sweep(now)
	}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep removes expired entries (must be called with mu held).
func (c *Cache[V]) sweep(now time.Time) {
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.lastSweep = now
}
