// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type TTLCacheItem[V any] struct {
	value     V
	timestamp time.Time
}

// TTLCache caches values that may change, such as role membership, for a
// fixed duration. Concurrent fetches for the same key share one call.
type TTLCache[K comparable, V any] struct {
	data    map[K]TTLCacheItem[V]
	ttl     time.Duration
	now     func() time.Time
	lock    sync.RWMutex
	sfGroup singleflight.Group
}

func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]TTLCacheItem[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns the cached value for key if it is younger than the TTL,
// otherwise fetches it with fetchFunc. If [invalidate] is true the value is
// cleared first so no caller can read the stale value while it is refetched.
func (c *TTLCache[K, V]) Get(key K, fetchFunc func(K) (V, error), invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		delete(c.data, key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		item, exists := c.data[key]
		c.lock.RUnlock()
		if exists && c.now().Sub(item.timestamp) < c.ttl {
			return item.value, nil
		}
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		newValue, fetchErr := fetchFunc(key)
		if fetchErr != nil {
			return *new(V), fetchErr
		}

		c.lock.Lock()
		c.data[key] = TTLCacheItem[V]{
			value:     newValue,
			timestamp: c.now(),
		}
		c.lock.Unlock()

		return newValue, nil
	})
	if err != nil {
		return *new(V), err
	}
	return v.(V), nil
}

// Prune drops every expired entry and returns how many were removed.
func (c *TTLCache[K, V]) Prune() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	removed := 0
	for k, item := range c.data {
		if now.Sub(item.timestamp) >= c.ttl {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// keyToString is defined to allow for both fmt.Stringer and primitive string types.
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
