// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

func TestGetMissing(t *testing.T) {
	c := &CoalescingMemoryCache{}
	if _, err := c.Get("absent"); err != ErrNotExist {
		t.Errorf("Get(absent) error = %v, want ErrNotExist", err)
	}
}

func TestGetOrSet(t *testing.T) {
	c := &CoalescingMemoryCache{}
	var calls atomic.Int32
	fetch := func() (any, error) {
		calls.Add(1)
		return 42, nil
	}
	for range 3 {
		v, err := c.GetOrSet("k", fetch)
		if err != nil {
			t.Fatalf("GetOrSet: %v", err)
		}
		if v.(int) != 42 {
			t.Errorf("GetOrSet = %v, want 42", v)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch called %d times, want 1", got)
	}
}

func TestGetOrSetCoalesces(t *testing.T) {
	c := &CoalescingMemoryCache{}
	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrSet("k", func() (any, error) {
				calls.Add(1)
				return "v", nil
			})
		}()
	}
	wg.Wait()
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch called %d times, want 1", got)
	}
}

func TestErrorNotRetained(t *testing.T) {
	c := &CoalescingMemoryCache{}
	fetchErr := errors.New("fetch failed")
	if _, err := c.GetOrSet("k", func() (any, error) { return nil, fetchErr }); err != fetchErr {
		t.Fatalf("GetOrSet error = %v, want %v", err, fetchErr)
	}
	v, err := c.GetOrSet("k", func() (any, error) { return 1, nil })
	if err != nil {
		t.Fatalf("GetOrSet after failure: %v", err)
	}
	if v.(int) != 1 {
		t.Errorf("GetOrSet = %v, want 1", v)
	}
}

func TestSetAndDel(t *testing.T) {
	c := &CoalescingMemoryCache{}
	if err := c.Set("k", func() (any, error) { return "v", nil }); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := c.Get("k"); err != nil || v.(string) != "v" {
		t.Errorf("Get = %v, %v, want v, nil", v, err)
	}
	c.Del("k")
	if _, err := c.Get("k"); err != ErrNotExist {
		t.Errorf("Get after Del error = %v, want ErrNotExist", err)
	}
}
