// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package bufiox provides buffering primitives for streaming build output.
package bufiox

import (
	"bytes"
	"errors"
	"sync"
)

// LineBuffer is a thread-safe ring buffer holding lines of text.
// Capacity is fixed in bytes. When a write does not fit, whole lines are
// evicted oldest-first, so the buffer retains the most recent output.
// It implements io.ReadWriter.
type LineBuffer struct {
	mu      sync.Mutex
	buf     []byte
	size    int   // bytes currently stored
	head    int   // read position
	tail    int   // write position
	lines   []int // lengths of complete lines, oldest first
	partial int   // length of the trailing unterminated line
}

// NewLineBuffer creates a LineBuffer with the given capacity in bytes.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		panic("capacity must be positive")
	}
	return &LineBuffer{buf: make([]byte, capacity)}
}

var errLineTooLong = errors.New("line exceeds buffer capacity")

// Write splits p at newlines and appends each piece, evicting the oldest
// complete lines as needed to make room. A single line larger than the
// buffer fails with an error unless part of p was already written, in
// which case the byte count written so far is returned.
func (lb *LineBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	var written int
	rest := p
	for len(rest) > 0 {
		chunk := rest
		terminated := false
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			chunk, rest = rest[:i+1], rest[i+1:]
			terminated = true
		} else {
			rest = nil
		}
		if !lb.makeRoom(len(chunk)) {
			if written == 0 {
				return 0, errLineTooLong
			}
			return written, nil
		}
		n := lb.put(chunk)
		written += n
		if terminated {
			lb.lines = append(lb.lines, lb.partial+n)
			lb.partial = 0
		} else {
			lb.partial += n
		}
	}
	return written, nil
}

// Read copies buffered data into p. An empty buffer returns (0, nil)
// rather than an error.
func (lb *LineBuffer) Read(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if lb.size == 0 {
		return 0, nil
	}
	n := min(len(p), lb.size)
	if lb.head+n <= len(lb.buf) {
		copy(p, lb.buf[lb.head:lb.head+n])
	} else {
		first := len(lb.buf) - lb.head
		copy(p[:first], lb.buf[lb.head:])
		copy(p[first:n], lb.buf[:n-first])
	}
	lb.head = (lb.head + n) % len(lb.buf)
	lb.size -= n
	lb.consume(n)
	return n, nil
}

// Len returns the number of buffered bytes.
func (lb *LineBuffer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.size
}

// makeRoom evicts complete lines until n more bytes fit.
// It reports false if that is impossible.
func (lb *LineBuffer) makeRoom(n int) bool {
	for lb.size+n > len(lb.buf) {
		if len(lb.lines) == 0 {
			return false
		}
		evicted := lb.lines[0]
		lb.lines = lb.lines[1:]
		lb.head = (lb.head + evicted) % len(lb.buf)
		lb.size -= evicted
	}
	return true
}

// put copies data into the ring at tail. Callers must have reserved room.
func (lb *LineBuffer) put(data []byte) int {
	n := len(data)
	if lb.tail+n <= len(lb.buf) {
		copy(lb.buf[lb.tail:], data)
	} else {
		first := len(lb.buf) - lb.tail
		copy(lb.buf[lb.tail:], data[:first])
		copy(lb.buf[:n-first], data[first:])
	}
	lb.tail = (lb.tail + n) % len(lb.buf)
	lb.size += n
	return n
}

// consume advances line accounting past n read bytes.
func (lb *LineBuffer) consume(n int) {
	for n > 0 && len(lb.lines) > 0 {
		if lb.lines[0] <= n {
			n -= lb.lines[0]
			lb.lines = lb.lines[1:]
		} else {
			lb.lines[0] -= n
			n = 0
		}
	}
	if n > 0 {
		lb.partial = max(lb.partial-n, 0)
	}
}
