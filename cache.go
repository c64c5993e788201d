// cache.go: TTL cache for composed configurations
//
// The Manager caches the composed configuration tree under its cache id.
// MemoryCache is the in-process default; any shared cache can be plugged in
// by implementing Cache.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// Cache is a key/value store with per-entry time to live.
type Cache interface {
	// Get returns the live value stored under key.
	Get(key string) (interface{}, bool)
	// Set stores value under key; a zero ttl never expires.
	Set(key string, value interface{}, ttl time.Duration)
	// Delete removes key.
	Delete(key string)
}

type cacheEntry struct {
	value     interface{}
	expiresAt int64 // nanoseconds, 0 for no expiry
}

func (e cacheEntry) isExpired(now int64) bool {
	return e.expiresAt != 0 && now >= e.expiresAt
}

// MemoryCache is a Cache kept in process memory. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() int64
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     timecache.CachedTimeNano,
	}
}

// Get implements Cache. Expired entries are evicted lazily.
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if entry.isExpired(now) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && current.isExpired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set implements Cache. A negative ttl stores nothing.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl < 0 {
		return
	}
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now() + int64(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Delete implements Cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included until evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush removes every entry.
func (c *MemoryCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
