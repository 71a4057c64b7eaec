// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package docker

// BuildPlan is the execution plan for a local image build. The
// Dockerfile is self-contained: the dependency manifest and all stage
// scripts are inlined so the build needs no context directory.
type BuildPlan struct {
	// Dockerfile contains the generated Dockerfile content.
	Dockerfile string
	// Platform constrains the image platform, like "linux/amd64".
	// Empty means the daemon default.
	Platform string
}
