// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package build defines the backend-neutral interface for executing
// runtime image builds.
package build

import (
	"context"
	"io"
	"time"

	"github.com/uecboard/keiji/pkg/provision"
)

// Executor manages build execution for a specific backend.
type Executor interface {
	Start(ctx context.Context, input provision.Input, opts Options) (Handle, error)
	Status() ExecutorStatus
	Close(ctx context.Context) error
}

// Handle represents an active or completed build.
type Handle interface {
	BuildID() string
	Wait(ctx context.Context) (Result, error)
	OutputStream() io.Reader
	Status() BuildState
}

// Result represents the completed build result.
type Result struct {
	// Error represents a build-time failure (i.e. after build setup).
	Error error
	// ImageTag names the built image in the local daemon.
	ImageTag string
	// Timings describes execution duration of phases of the build.
	Timings Timings
}

// Timings describes how long build phases took.
type Timings struct {
	Plan   time.Duration
	Build  time.Duration
	Export time.Duration
}

// ExecutorStatus represents the overall executor status.
type ExecutorStatus struct {
	// InProgress is the number of builds currently executing.
	InProgress int
	// Capacity is the max number of builds that can execute simultaneously.
	Capacity int
	// Healthy is whether the executor is accepting new builds.
	Healthy bool
}

// BuildState represents the current state of a build.
type BuildState int

const (
	BuildStateStarting BuildState = iota
	BuildStateRunning
	BuildStateCompleted
	BuildStateCancelled
)

func (s BuildState) String() string {
	switch s {
	case BuildStateStarting:
		return "starting"
	case BuildStateRunning:
		return "running"
	case BuildStateCompleted:
		return "completed"
	case BuildStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
