// cache_test.go: Tests for the in-memory TTL cache
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package dynconf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newFakeClockCache returns a cache whose clock is advanced by hand.
func newFakeClockCache() (*MemoryCache, *int64) {
	now := int64(1_000_000)
	c := NewMemoryCache()
	c.now = func() int64 { return now }
	return c, &now
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c, _ := newFakeClockCache()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, now := newFakeClockCache()

	c.Set("short", 1, time.Second)
	c.Set("forever", 2, 0)

	*now += int64(999 * time.Millisecond)
	_, ok := c.Get("short")
	assert.True(t, ok)

	*now += int64(time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok, "entry expires at its deadline")
	assert.Equal(t, 1, c.Len(), "expired entry is evicted on read")

	*now += int64(24 * time.Hour)
	v, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMemoryCache_NegativeTTLStoresNothing(t *testing.T) {
	c, _ := newFakeClockCache()
	c.Set("k", "v", -time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Flush(t *testing.T) {
	c, _ := newFakeClockCache()
	c.Set("a", 1, 0)
	c.Set("b", 2, time.Minute)

	c.Flush()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", j, time.Minute)
				c.Get("k")
				if j%10 == 0 {
					c.Delete("k")
				}
			}
		}()
	}
	wg.Wait()
}
