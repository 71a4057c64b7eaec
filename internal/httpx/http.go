// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx provides a narrower http.Client abstraction and decorators.
package httpx

import (
	"bufio"
	"bytes"
	"net/http"
	"time"

	"github.com/uecboard/keiji/internal/cache"
)

// BasicClient is the subset of http.Client needed to send requests.
type BasicClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ BasicClient = http.DefaultClient

// WithUserAgent decorates a BasicClient with a fixed User-Agent header.
type WithUserAgent struct {
	BasicClient
	UserAgent string
}

// Do sets the User-Agent header and sends the request.
func (c *WithUserAgent) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.UserAgent)
	return c.BasicClient.Do(req)
}

var _ BasicClient = &WithUserAgent{}

// CachedClient is a BasicClient that caches GET and HEAD responses.
type CachedClient struct {
	BasicClient
	ch cache.Cache
}

// NewCachedClient returns a new CachedClient.
func NewCachedClient(client BasicClient, c cache.Cache) *CachedClient {
	return &CachedClient{client, c}
}

// Do serves the request from cache when possible, fetching and recording
// it otherwise. Server errors (5xx) are never cached.
func (cc *CachedClient) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return cc.BasicClient.Do(req)
	}
	raw, err := cc.ch.Get(req.URL.String())
	switch {
	case err == cache.ErrNotExist:
		resp, err := cc.BasicClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		if err := resp.Write(&buf); err != nil {
			return nil, err
		}
		if resp.StatusCode < 500 || resp.StatusCode > 599 {
			cc.ch.Set(req.URL.String(), func() (any, error) { return buf.Bytes(), nil })
		}
		raw = buf.Bytes()
	case err != nil:
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(raw.([]byte))), req)
}

var _ BasicClient = &CachedClient{}

// RateLimitedClient is a BasicClient that spaces requests out by a ticker.
type RateLimitedClient struct {
	BasicClient
	Ticker *time.Ticker
}

// Do waits for the next tick and sends the request.
func (c *RateLimitedClient) Do(req *http.Request) (*http.Response, error) {
	<-c.Ticker.C
	return c.BasicClient.Do(req)
}

var _ BasicClient = &RateLimitedClient{}
