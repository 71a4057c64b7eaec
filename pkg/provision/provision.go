// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision models the runtime image contract for the board and
// expands it into executable build instructions.
package provision

// Target identifies one provisioned runtime image.
type Target struct {
	// Name is the definition name, like "board-runtime".
	Name string
	// Python is the fully pinned interpreter version, like "3.11.9".
	Python string
}

// Input is everything needed to attempt a provisioning build.
type Input struct {
	Definition Definition
	Strategy   Strategy
}
