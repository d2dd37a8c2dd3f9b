// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache holds read-through caches for values that are expensive to
// fetch from a chain.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LRUCache caches values that never change once observed, such as a message
// having been relayed. Concurrent fetches for the same key share one call.
type LRUCache[K comparable, V any] struct {
	cache   *lru.Cache[K, V]
	sfGroup singleflight.Group
}

func NewLRUCache[K comparable, V any](size int) (*LRUCache[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache[K, V]{cache: c}, nil
}

// Get returns the cached value for key, otherwise fetches it with fetchFunc.
// Errors are not cached. If [invalidate] is true, the value is removed from
// the cache prior to fetching.
func (c *LRUCache[K, V]) Get(key K, fetchFunc func(K) (V, error), invalidate bool) (V, error) {
	if invalidate {
		c.cache.Remove(key)
	} else if value, found := c.cache.Get(key); found {
		return value, nil
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		// another caller may have filled the entry while we waited
		if value, found := c.cache.Get(key); found && !invalidate {
			return value, nil
		}
		newValue, fetchErr := fetchFunc(key)
		if fetchErr != nil {
			return *new(V), fetchErr
		}
		c.cache.Add(key, newValue)
		return newValue, nil
	})
	if err != nil {
		return *new(V), err
	}
	return v.(V), nil
}

// Contains reports whether key is cached without updating its recency.
func (c *LRUCache[K, V]) Contains(key K) bool {
	return c.cache.Contains(key)
}

func (c *LRUCache[K, V]) Len() int {
	return c.cache.Len()
}
