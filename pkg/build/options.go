// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"time"

	"github.com/uecboard/keiji/pkg/provision"
)

// Resources configures storage for build artifacts.
type Resources struct {
	// AssetStore receives the Dockerfile, logs, and exported image.
	AssetStore provision.LocatableAssetStore
}

// Options configures build execution behavior.
type Options struct {
	// CancelPolicy determines how cancellation is handled.
	CancelPolicy CancelPolicy
	// Timeout bounds the build execution.
	Timeout time.Duration
	// BuildID allows specifying a custom build identifier.
	BuildID string
	// ExportImage saves the built image into the asset store.
	ExportImage bool
	// BuildEnv carries build-time knobs passed through to the strategy.
	BuildEnv provision.BuildEnv
	// Platform constrains the image platform, like "linux/amd64".
	Platform string
	// Resources configures storage for build artifacts.
	Resources Resources
}

// PlanOptions configures plan generation behavior.
type PlanOptions struct {
	// BuildEnv carries build-time knobs passed through to the strategy.
	BuildEnv provision.BuildEnv
	// Platform constrains the image platform, like "linux/amd64".
	Platform string
}

// CancelPolicy determines how build cancellation is handled.
type CancelPolicy int

const (
	// CancelImmediate terminates the build immediately.
	CancelImmediate CancelPolicy = iota
	// CancelDetached allows the build to continue running but detaches the handle.
	CancelDetached
)

func (p CancelPolicy) String() string {
	switch p {
	case CancelImmediate:
		return "immediate"
	case CancelDetached:
		return "detached"
	default:
		return "unknown"
	}
}
