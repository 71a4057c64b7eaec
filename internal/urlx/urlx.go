// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package urlx

import "net/url"

// MustParse calls url.Parse and panics on error.
// Intended for package-level constants known to be valid.
func MustParse(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}

// Copy returns a shallow copy of u safe to mutate.
func Copy(u *url.URL) *url.URL {
	c := *u
	return &c
}
