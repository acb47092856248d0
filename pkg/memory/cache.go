// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// BuildFunc builds the store of one owner.
type BuildFunc func(ctx context.Context, ownerID string) (*VectorStore, error)

// StoreCache maps owner IDs to built vector stores. Entries live until
// Invalidate is called; there is no TTL and no size bound.
type StoreCache struct {
	mu          sync.RWMutex
	stores      map[string]*VectorStore
	generations map[string]uint64
	builds      singleflight.Group
}

// NewStoreCache creates an empty cache.
func NewStoreCache() *StoreCache {
	return &StoreCache{
		stores:      make(map[string]*VectorStore),
		generations: make(map[string]uint64),
	}
}

// Get returns the cached store of ownerID, if any.
func (c *StoreCache) Get(ownerID string) (*VectorStore, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stores[ownerID]
	return s, ok
}

// GetOrBuild returns the cached store or builds it. Concurrent callers for
// the same owner share a single build. A failed build is not cached.
// The bool reports whether the store came from the cache.
func (c *StoreCache) GetOrBuild(ctx context.Context, ownerID string, build BuildFunc) (*VectorStore, bool, error) {
	if s, ok := c.Get(ownerID); ok {
		return s, true, nil
	}

	v, err, _ := c.builds.Do(ownerID, func() (interface{}, error) {
		c.mu.RLock()
		if s, ok := c.stores[ownerID]; ok {
			c.mu.RUnlock()
			return s, nil
		}
		gen := c.generations[ownerID]
		c.mu.RUnlock()

		s, err := build(ctx, ownerID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// An Invalidate during the build means the corpus changed under us.
		if c.generations[ownerID] == gen {
			c.stores[ownerID] = s
		}
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*VectorStore), false, nil
}

// Invalidate drops the store of ownerID so the next access rebuilds it.
// A build already running for the owner still answers its callers but its
// result is not cached.
func (c *StoreCache) Invalidate(ownerID string) {
	c.mu.Lock()
	delete(c.stores, ownerID)
	c.generations[ownerID]++
	c.mu.Unlock()
	c.builds.Forget(ownerID)
}

// Len returns the number of cached stores.
func (c *StoreCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stores)
}

// Owners returns the cached owner IDs, sorted.
func (c *StoreCache) Owners() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.stores))
	for id := range c.stores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
