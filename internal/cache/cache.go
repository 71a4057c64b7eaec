// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides an interface and implementations for caching.
package cache

import (
	"sync"

	"github.com/pkg/errors"
)

// Cache is a simple interface defining a cache.
type Cache interface {
	Get(any) (any, error)
	Set(any, func() (any, error)) error
	GetOrSet(any, func() (any, error)) (any, error)
	Del(any)
}

// ErrNotExist is returned when a key does not exist in the cache.
var ErrNotExist = errors.New("does not exist")

// entry makes a fetch function comparable for CompareAndDelete.
type entry struct {
	fetch func() (any, error)
}

// CoalescingMemoryCache is an in-memory cache that coalesces concurrent
// requests for the same key into a single fetch. Failed fetches are not
// retained, so a later access retries the fetch.
type CoalescingMemoryCache struct {
	data sync.Map // key -> *entry wrapping a sync.OnceValues
}

func (c *CoalescingMemoryCache) resolve(key any, e *entry) (any, error) {
	val, err := e.fetch()
	if err != nil {
		c.data.CompareAndDelete(key, e)
	}
	return val, err
}

// Get returns the value for the given key, or ErrNotExist.
func (c *CoalescingMemoryCache) Get(key any) (any, error) {
	e, ok := c.data.Load(key)
	if !ok {
		return nil, ErrNotExist
	}
	return c.resolve(key, e.(*entry))
}

// Set eagerly populates the key with the result of fetch.
func (c *CoalescingMemoryCache) Set(key any, fetch func() (any, error)) error {
	e := &entry{sync.OnceValues(fetch)}
	c.data.Store(key, e)
	_, err := c.resolve(key, e)
	return err
}

// GetOrSet returns the value for the given key, fetching it if absent.
// Simultaneous accesses to the same key share one fetch.
func (c *CoalescingMemoryCache) GetOrSet(key any, fetch func() (any, error)) (any, error) {
	e, _ := c.data.LoadOrStore(key, &entry{sync.OnceValues(fetch)})
	return c.resolve(key, e.(*entry))
}

// Del deletes the value for the given key.
func (c *CoalescingMemoryCache) Del(key any) {
	c.data.Delete(key)
}

var _ Cache = &CoalescingMemoryCache{}
