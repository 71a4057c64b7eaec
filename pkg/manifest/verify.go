// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"

	"github.com/pkg/errors"

	"github.com/uecboard/keiji/internal/cache"
	"github.com/uecboard/keiji/pkg/registry/pypi"
)

// Check is the verification outcome for one requirement.
type Check struct {
	Requirement Requirement
	// Skipped is true for requirements the index cannot answer for,
	// editable installs and direct URL references.
	Skipped bool
	// ProjectFound reports whether the project exists on the index.
	ProjectFound bool
	// Release is the pinned version that was checked, empty when the
	// requirement is unpinned.
	Release string
	// ReleaseFound reports whether the pinned release exists. Only
	// meaningful when Release is set.
	ReleaseFound bool
	// YankedOnly is true when every artifact of the pinned release has
	// been yanked.
	YankedOnly bool
	// HasSdist reports whether the pinned release ships a source
	// distribution.
	HasSdist bool
}

// OK reports whether the requirement is installable from the index.
// Wheel-only releases are fine; a fully yanked release is not.
func (c Check) OK() bool {
	if c.Skipped {
		return true
	}
	if !c.ProjectFound {
		return false
	}
	if c.Release != "" && (!c.ReleaseFound || c.YankedOnly) {
		return false
	}
	return true
}

// Verify checks every requirement of the manifest against the index.
// Missing projects and releases are recorded in the returned checks;
// only transport failures abort. Lookups for repeated projects are
// coalesced. The progress callback, if set, fires once per check.
func Verify(ctx context.Context, registry pypi.Registry, m *Manifest, progress func(Check)) ([]Check, error) {
	projects := &cache.CoalescingMemoryCache{}
	checks := make([]Check, 0, len(m.Requirements))
	for _, req := range m.Requirements {
		check, err := verifyOne(ctx, registry, projects, req)
		if err != nil {
			return nil, errors.Wrapf(err, "verifying %s", req.Name)
		}
		if progress != nil {
			progress(check)
		}
		checks = append(checks, check)
	}
	return checks, nil
}

func verifyOne(ctx context.Context, registry pypi.Registry, projects cache.Cache, req Requirement) (Check, error) {
	check := Check{Requirement: req}
	if req.Editable || req.DirectURL != "" {
		check.Skipped = true
		return check, nil
	}
	name := req.Normalized()
	obj, err := projects.GetOrSet(name, func() (any, error) {
		p, err := registry.Project(ctx, name)
		if errors.Is(err, pypi.ErrNotFound) {
			return (*pypi.Project)(nil), nil
		}
		return p, err
	})
	if err != nil {
		return check, err
	}
	project := obj.(*pypi.Project)
	if project == nil {
		return check, nil
	}
	check.ProjectFound = true
	version, pinned := req.Pinned()
	if !pinned {
		return check, nil
	}
	check.Release = version
	// A release key with no files is as uninstallable as a missing one.
	artifacts := project.Releases[version]
	if len(artifacts) == 0 {
		return check, nil
	}
	check.ReleaseFound = true
	check.YankedOnly = true
	for _, a := range artifacts {
		if !a.Yanked {
			check.YankedOnly = false
		}
		if a.PackageType == "sdist" {
			check.HasSdist = true
		}
	}
	return check, nil
}
