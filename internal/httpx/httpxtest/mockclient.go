// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpxtest provides httpx.BasicClient fakes for tests.
package httpxtest

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Call is one expected request paired with its canned result.
type Call struct {
	Method   string
	URL      string
	Response *http.Response
	Error    error
}

// MockClient replays a fixed sequence of Calls, panicking on any request
// beyond the scripted ones.
type MockClient struct {
	Calls             []Call
	URLValidator      func(expected, actual string)
	SkipURLValidation bool
	callCount         int
}

func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	if m.callCount >= len(m.Calls) {
		panic("unexpected request: " + req.URL.String())
	}
	call := m.Calls[m.callCount]
	m.callCount++
	if !m.SkipURLValidation && m.URLValidator == nil {
		panic("URL validation requested but not configured")
	} else if m.SkipURLValidation && m.URLValidator != nil {
		panic("URL validation disabled but configured")
	}
	if m.URLValidator != nil {
		if call.Method != "" {
			m.URLValidator(call.Method+" "+call.URL, req.Method+" "+req.URL.String())
		} else {
			m.URLValidator(call.URL, req.URL.String())
		}
	}
	return call.Response, call.Error
}

// CallCount returns the number of requests served so far.
func (m *MockClient) CallCount() int {
	return m.callCount
}

// NewURLValidator returns a URLValidator that fails the test on mismatch.
func NewURLValidator(t *testing.T) func(string, string) {
	return func(expected, actual string) {
		t.Helper()
		if diff := cmp.Diff(expected, actual); diff != "" {
			t.Fatalf("URL mismatch (-want +got):\n%s", diff)
		}
	}
}
