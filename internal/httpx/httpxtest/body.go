// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package httpxtest

import (
	"bytes"
	"io"
)

// Body wraps a string as a response body.
func Body(b string) io.ReadCloser {
	return io.NopCloser(bytes.NewReader([]byte(b)))
}
