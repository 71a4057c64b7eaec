// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"context"
	"io"
	"os/exec"
)

// CommandOptions configures command execution.
type CommandOptions struct {
	// Input provides stdin to the command.
	Input io.Reader
	// Output streams stdout/stderr to the writer (if nil, output is discarded).
	Output io.Writer
}

// CommandExecutor abstracts command execution for better testability.
type CommandExecutor interface {
	// Execute runs a command with the given options, returns error on failure.
	// Comparable to exec.CommandContext(...).Run()
	Execute(ctx context.Context, opts CommandOptions, name string, args ...string) error
	// LookPath searches for an executable named file in the directories named by the PATH environment variable.
	// Comparable to exec.LookPath()
	LookPath(file string) (string, error)
}

// realCommandExecutor implements CommandExecutor using os/exec.
type realCommandExecutor struct{}

// NewRealCommandExecutor creates a new CommandExecutor that uses os/exec.
func NewRealCommandExecutor() CommandExecutor {
	return &realCommandExecutor{}
}

func (r *realCommandExecutor) Execute(ctx context.Context, opts CommandOptions, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if opts.Input != nil {
		cmd.Stdin = opts.Input
	}
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}
	// Block and wait for completion.
	return cmd.Run()
}

func (r *realCommandExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}
