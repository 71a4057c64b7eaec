// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package bufiox

import (
	"io"
	"sync"
)

// BufferedPipe couples a writer and a reader through a buffer.
// Writes never block. Reads block until data arrives or the pipe closes.
// It supports a single reader and a single writer.
type BufferedPipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    io.ReadWriter
	closed bool
}

// NewBufferedPipe creates a BufferedPipe backed by buf.
func NewBufferedPipe(buf io.ReadWriter) *BufferedPipe {
	p := &BufferedPipe{buf: buf}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write appends data to the pipe, waking a blocked reader.
// Returns io.ErrClosedPipe once the pipe has been closed.
func (p *BufferedPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := p.buf.Write(b)
	if n > 0 {
		p.cond.Signal()
	}
	return n, err
}

// Read returns buffered data, blocking while the pipe is open and empty.
// After Close, it drains the remaining data and then returns io.EOF.
func (p *BufferedPipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		n, err := p.buf.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
		if p.closed {
			return 0, io.EOF
		}
		p.cond.Wait()
	}
}

// Close closes the write side. Blocked readers are woken and observe
// io.EOF once the buffer is drained.
func (p *BufferedPipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	p.closed = true
	p.cond.Broadcast()
	return nil
}
