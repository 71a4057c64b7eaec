// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"sync"

	"github.com/pkg/errors"
)

// Tool is a named, reusable sequence of steps.
type Tool struct {
	Name  string
	Steps []Step
	// TODO: Validate required 'with' parameters per tool.
}

// Generate executes the tool with the given arguments and context.
func (t *Tool) Generate(with map[string]string, data Data) (Fragment, error) {
	frag, err := ResolveSteps(t.Steps, with, data)
	return frag, errors.Wrapf(err, "resolving tool %q", t.Name)
}

// registry manages the set of available tools.
type registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func newRegistry() *registry {
	return &registry{tools: make(map[string]*Tool)}
}

// Tools is the default global registry.
var Tools = newRegistry()

// Register adds a tool to the registry.
func (r *registry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == nil {
		return errors.New("tool is nil")
	}
	if _, exists := r.tools[t.Name]; exists {
		return errors.Errorf("tool already registered: %q", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get retrieves a tool from the registry.
func (r *registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, errors.Errorf("tool not found: %q", name)
	}
	return t, nil
}

// MustRegister is like Register but panics on error.
func (r *registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}
