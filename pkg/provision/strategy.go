// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/pyver"
	"github.com/uecboard/keiji/pkg/provision/flow"
)

// Instructions are the ordered provisioning stages expanded from a
// Definition. Each script stage runs fail-fast: its first failing command
// aborts the build.
type Instructions struct {
	// SystemDeps are OS packages required before any stage runs.
	SystemDeps []string
	// Interpreter builds and installs the pinned CPython.
	Interpreter string
	// Deps installs the Python dependency manifest.
	Deps string
	// Configure applies timezone, locale, and any definition extras.
	Configure string
	// Env is the image environment in render order. PATH is excluded;
	// PathDir carries the directory to prepend instead.
	Env     []EnvVar
	PathDir string
	Workdir string
}

// EnvVar is one environment entry of the image configuration.
type EnvVar struct {
	Name  string
	Value string
}

// BuildEnv carries build-time knobs that are not part of the image
// contract, like CI mirror locations.
type BuildEnv struct {
	// MakeJobs bounds interpreter compile parallelism; 0 uses all cores.
	MakeJobs int
	// PipIndexURL overrides the package index for manifest installation.
	PipIndexURL string
}

// Strategy expands a Definition into executable Instructions.
type Strategy interface {
	GenerateFor(Definition, BuildEnv) (Instructions, error)
}

// PrefixFor returns the private installation prefix for an interpreter
// version. Keeping each version in its own prefix lets PATH selection,
// not file clobbering, decide which python3 the image runs.
func PrefixFor(v pyver.Version) string {
	return "/opt/python-" + v.String()
}

// WorkflowStrategy composes provisioning from flow steps. The standard
// build uses registered tools for each stage; definitions may add their
// own steps, which run after Configure.
type WorkflowStrategy struct {
	Interpreter []flow.Step `json:"interpreter" yaml:"interpreter,omitempty"`
	Deps        []flow.Step `json:"deps" yaml:"deps,omitempty"`
	Configure   []flow.Step `json:"configure" yaml:"configure,omitempty"`
	SystemDeps  []string    `json:"system_deps" yaml:"system_deps,omitempty"`
	// Manifest is the raw requirements content inlined into the build.
	Manifest string `json:"-" yaml:"-"`
}

var _ Strategy = &WorkflowStrategy{}

// NewStandardStrategy returns the workflow used for board runtime images:
// build the pinned interpreter from source, install the dependency
// manifest, then apply timezone and locale configuration.
func NewStandardStrategy(manifest string) *WorkflowStrategy {
	manifest = strings.TrimRight(manifest, "\n")
	s := &WorkflowStrategy{
		Interpreter: []flow.Step{{Uses: "cpython-source-build"}},
		Configure:   []flow.Step{{Uses: "timezone-config"}, {Uses: "locale-gen"}},
		Manifest:    manifest,
	}
	if manifest != "" {
		s.Deps = []flow.Step{{Uses: "pip-requirements"}}
	}
	return s
}

// GenerateFor expands the workflow against a Definition. The interpreter
// version must be fully pinned by this point.
func (s *WorkflowStrategy) GenerateFor(d Definition, be BuildEnv) (Instructions, error) {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return Instructions{}, err
	}
	v, err := pyver.New(d.Python)
	if err != nil {
		return Instructions{}, errors.Wrapf(err, "interpreter version must be fully pinned")
	}
	prefix := PrefixFor(v)
	data := flow.Data{
		"Def":        &d,
		"BuildEnv":   &be,
		"Python":     v.String(),
		"PythonBase": v.Base(),
		"Prefix":     prefix,
		"Manifest":   s.Manifest,
	}
	interp, err := flow.ResolveSteps(s.Interpreter, nil, data)
	if err != nil {
		return Instructions{}, errors.Wrap(err, "generating interpreter steps")
	}
	deps, err := flow.ResolveSteps(s.Deps, nil, data)
	if err != nil {
		return Instructions{}, errors.Wrap(err, "generating dependency steps")
	}
	configure, err := flow.ResolveSteps(s.Configure, nil, data)
	if err != nil {
		return Instructions{}, errors.Wrap(err, "generating configure steps")
	}
	extra, err := flow.ResolveSteps(d.Setup, nil, data)
	if err != nil {
		return Instructions{}, errors.Wrap(err, "generating setup steps")
	}
	configure = configure.Join(extra)
	uniqueDeps := make(map[string]bool)
	var systemDeps []string
	for _, dep := range slices.Concat(s.SystemDeps, interp.Needs, deps.Needs, configure.Needs) {
		if !uniqueDeps[dep] {
			uniqueDeps[dep] = true
			systemDeps = append(systemDeps, dep)
		}
	}
	env := []EnvVar{
		{Name: "HOME", Value: d.Home},
		{Name: "PYTHON_VERSION", Value: v.String()},
		{Name: "TZ", Value: d.Timezone},
		{Name: "LANG", Value: d.Locale},
	}
	for _, name := range slices.Sorted(maps.Keys(d.Env)) {
		env = append(env, EnvVar{Name: name, Value: d.Env[name]})
	}
	return Instructions{
		SystemDeps:  systemDeps,
		Interpreter: interp.Script,
		Deps:        deps.Script,
		Configure:   configure.Script,
		Env:         env,
		PathDir:     prefix + "/bin",
		Workdir:     d.Workdir,
	}, nil
}
