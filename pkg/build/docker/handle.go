// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"context"
	"io"
	"sync"

	"github.com/uecboard/keiji/pkg/build"
)

// localHandle implements build.Handle for local Docker builds.
type localHandle struct {
	id           string
	cancel       context.CancelFunc
	cancelPolicy build.CancelPolicy
	output       io.ReadWriteCloser
	resultChan   chan build.Result

	statusMu sync.RWMutex
	status   build.BuildState
}

// BuildID implements build.Handle.
func (h *localHandle) BuildID() string {
	return h.id
}

// Wait implements build.Handle.
func (h *localHandle) Wait(ctx context.Context) (build.Result, error) {
	defer h.output.Close()
	select {
	case result := <-h.resultChan:
		return result, nil
	case <-ctx.Done():
		// Context timeout, distinct from build cancellation.
		return build.Result{}, ctx.Err()
	}
}

// OutputStream implements build.Handle.
func (h *localHandle) OutputStream() io.Reader {
	return h.output
}

// Status implements build.Handle.
func (h *localHandle) Status() build.BuildState {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.status
}

// Cancel cancels the build.
func (h *localHandle) Cancel() {
	defer h.output.Close()
	h.cancel()
}

func (h *localHandle) updateStatus(state build.BuildState) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	h.status = state
}

// setResult sets the final result without blocking if one is already set.
func (h *localHandle) setResult(result build.Result) {
	select {
	case h.resultChan <- result:
	default:
	}
}

// Write forwards a line to the output stream.
func (h *localHandle) Write(line []byte) (n int, err error) {
	return h.output.Write(line)
}
