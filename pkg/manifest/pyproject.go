// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// PyProject is the parsed dependency subset of a pyproject.toml.
type PyProject struct {
	Name                 string
	Version              string
	RequiresPython       string
	Dependencies         []Requirement
	OptionalDependencies map[string][]Requirement
	BuildRequirements    []Requirement
}

// ParsePyProject extracts PEP 621 project metadata and the build-system
// requirements from a pyproject.toml.
func ParsePyProject(contents []byte) (*PyProject, error) {
	type project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		RequiresPython       string              `toml:"requires-python"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	}
	type buildSystem struct {
		Requirements []string `toml:"requires"`
	}
	type pyProject struct {
		Project project     `toml:"project"`
		Build   buildSystem `toml:"build-system"`
	}
	var parsed pyProject
	if err := toml.Unmarshal(contents, &parsed); err != nil {
		return nil, errors.Wrap(err, "parsing pyproject.toml")
	}
	out := &PyProject{
		Name:           parsed.Project.Name,
		Version:        parsed.Project.Version,
		RequiresPython: parsed.Project.RequiresPython,
	}
	var err error
	if out.Dependencies, err = parseRequirementList(parsed.Project.Dependencies); err != nil {
		return nil, errors.Wrap(err, "project.dependencies")
	}
	if out.BuildRequirements, err = parseRequirementList(parsed.Build.Requirements); err != nil {
		return nil, errors.Wrap(err, "build-system.requires")
	}
	if len(parsed.Project.OptionalDependencies) > 0 {
		out.OptionalDependencies = make(map[string][]Requirement)
		for extra, deps := range parsed.Project.OptionalDependencies {
			reqs, err := parseRequirementList(deps)
			if err != nil {
				return nil, errors.Wrapf(err, "project.optional-dependencies.%s", extra)
			}
			out.OptionalDependencies[extra] = reqs
		}
	}
	return out, nil
}

func parseRequirementList(deps []string) ([]Requirement, error) {
	var out []Requirement
	for _, dep := range deps {
		req, err := parseRequirement(dep, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// Manifest converts the project dependencies into a flattened manifest
// so pyproject files verify and render the same way requirements files
// do.
func (p *PyProject) Manifest() *Manifest {
	return &Manifest{
		Root:         "pyproject.toml",
		Requirements: p.Dependencies,
	}
}
