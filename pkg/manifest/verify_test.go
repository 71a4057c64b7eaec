// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/uecboard/keiji/pkg/registry/pypi"
)

type fakeRegistry struct {
	projects map[string]*pypi.Project
	err      error
	calls    int
}

func (f *fakeRegistry) Project(ctx context.Context, pkg string) (*pypi.Project, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.projects[pkg]
	if !ok {
		return nil, errors.Wrapf(pypi.ErrNotFound, "package %s", pkg)
	}
	return p, nil
}

func (f *fakeRegistry) Release(ctx context.Context, pkg, version string) (*pypi.Release, error) {
	return nil, errors.New("unexpected Release call")
}

func req(line string) Requirement {
	r, err := parseRequirement(line, 1)
	if err != nil {
		panic(err)
	}
	return r
}

func TestVerify(t *testing.T) {
	registry := &fakeRegistry{
		projects: map[string]*pypi.Project{
			"flask": {
				Info: pypi.Info{Name: "Flask"},
				Releases: map[string][]pypi.Artifact{
					"3.0.3": {
						{Filename: "flask-3.0.3.tar.gz", PackageType: "sdist"},
						{Filename: "flask-3.0.3-py3-none-any.whl", PackageType: "bdist_wheel"},
					},
				},
			},
			"requests": {
				Info:     pypi.Info{Name: "requests"},
				Releases: map[string][]pypi.Artifact{},
			},
			"pulled-pkg": {
				Info: pypi.Info{Name: "pulled-pkg"},
				Releases: map[string][]pypi.Artifact{
					"1.0.0": {
						{Filename: "pulled_pkg-1.0.0-py3-none-any.whl", PackageType: "bdist_wheel", Yanked: true},
					},
				},
			},
			"fileless": {
				Info: pypi.Info{Name: "fileless"},
				Releases: map[string][]pypi.Artifact{
					"0.1": {},
				},
			},
		},
	}
	m := &Manifest{
		Requirements: []Requirement{
			req("flask==3.0.3"),
			req("requests>=2.31"),
			req("flask==9.9.9"),
			req("pulled-pkg==1.0.0"),
			req("fileless==0.1"),
			req("no-such-project==1.0"),
			req("torch @ https://example.com/torch.whl"),
		},
	}
	var progressed int
	checks, err := Verify(context.Background(), registry, m, func(Check) { progressed++ })
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if progressed != len(m.Requirements) {
		t.Errorf("progress calls = %d, want %d", progressed, len(m.Requirements))
	}
	type summary struct {
		Name         string
		OK           bool
		ProjectFound bool
		ReleaseFound bool
		YankedOnly   bool
		HasSdist     bool
		Skipped      bool
	}
	var got []summary
	for _, c := range checks {
		got = append(got, summary{
			Name:         c.Requirement.Name,
			OK:           c.OK(),
			ProjectFound: c.ProjectFound,
			ReleaseFound: c.ReleaseFound,
			YankedOnly:   c.YankedOnly,
			HasSdist:     c.HasSdist,
			Skipped:      c.Skipped,
		})
	}
	want := []summary{
		{Name: "flask", OK: true, ProjectFound: true, ReleaseFound: true, HasSdist: true},
		{Name: "requests", OK: true, ProjectFound: true},
		{Name: "flask", OK: false, ProjectFound: true},
		{Name: "pulled-pkg", OK: false, ProjectFound: true, ReleaseFound: true, YankedOnly: true},
		{Name: "fileless", OK: false, ProjectFound: true},
		{Name: "no-such-project", OK: false},
		{Name: "torch", OK: true, Skipped: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("checks mismatch (-want +got):\n%s", diff)
	}
	// Both flask requirements share one lookup.
	if registry.calls != 5 {
		t.Errorf("registry calls = %d, want 5", registry.calls)
	}
}

func TestVerifyTransportError(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("connection refused")}
	m := &Manifest{Requirements: []Requirement{req("flask==3.0.3")}}
	_, err := Verify(context.Background(), registry, m, nil)
	if err == nil || !strings.Contains(err.Error(), "verifying flask") {
		t.Fatalf("Verify error = %v, want transport failure", err)
	}
}

func TestVerifyNormalizesNames(t *testing.T) {
	registry := &fakeRegistry{
		projects: map[string]*pypi.Project{
			"flask-sqlalchemy": {
				Info: pypi.Info{Name: "Flask-SQLAlchemy"},
				Releases: map[string][]pypi.Artifact{
					"3.1.1": {{Filename: "flask_sqlalchemy-3.1.1.tar.gz", PackageType: "sdist"}},
				},
			},
		},
	}
	m := &Manifest{Requirements: []Requirement{req("Flask_SQLAlchemy==3.1.1")}}
	checks, err := Verify(context.Background(), registry, m, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(checks) != 1 || !checks[0].OK() {
		t.Fatalf("check = %+v, want OK lookup under normalized name", checks)
	}
}
