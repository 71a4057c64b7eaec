// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/uecboard/keiji/internal/textwrap"
)

func TestParsePyProject(t *testing.T) {
	content := textwrap.Dedent(`
		[project]
		name = "board-sync"
		version = "1.4.0"
		requires-python = ">=3.11"
		dependencies = [
		  "flask==3.0.3",
		  "requests>=2.31,<3",
		]

		[project.optional-dependencies]
		dev = ["pytest==8.2.0"]

		[build-system]
		requires = ["setuptools>=68", "wheel"]
		build-backend = "setuptools.build_meta"
		`)[1:]
	got, err := ParsePyProject([]byte(content))
	if err != nil {
		t.Fatalf("ParsePyProject: %v", err)
	}
	want := &PyProject{
		Name:           "board-sync",
		Version:        "1.4.0",
		RequiresPython: ">=3.11",
		Dependencies: []Requirement{
			{
				Name:       "flask",
				Specifiers: []Specifier{{Op: "==", Version: "3.0.3"}},
				Raw:        "flask==3.0.3",
			},
			{
				Name:       "requests",
				Specifiers: []Specifier{{Op: ">=", Version: "2.31"}, {Op: "<", Version: "3"}},
				Raw:        "requests>=2.31,<3",
			},
		},
		OptionalDependencies: map[string][]Requirement{
			"dev": {
				{
					Name:       "pytest",
					Specifiers: []Specifier{{Op: "==", Version: "8.2.0"}},
					Raw:        "pytest==8.2.0",
				},
			},
		},
		BuildRequirements: []Requirement{
			{
				Name:       "setuptools",
				Specifiers: []Specifier{{Op: ">=", Version: "68"}},
				Raw:        "setuptools>=68",
			},
			{
				Name: "wheel",
				Raw:  "wheel",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParsePyProject mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePyProjectInvalid(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "broken toml",
			content: "[project\nname = oops",
			wantErr: "parsing pyproject.toml",
		},
		{
			name:    "malformed dependency",
			content: "[project]\ndependencies = [\"==1.0\"]\n",
			wantErr: "project.dependencies",
		},
		{
			name:    "malformed build requirement",
			content: "[build-system]\nrequires = [\"!!bad!!\"]\n",
			wantErr: "build-system.requires",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePyProject([]byte(tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ParsePyProject error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestPyProjectManifest(t *testing.T) {
	p := &PyProject{
		Dependencies: []Requirement{
			{Name: "flask", Specifiers: []Specifier{{Op: "==", Version: "3.0.3"}}, Raw: "flask==3.0.3"},
			{Name: "jinja2", Specifiers: []Specifier{{Op: "==", Version: "3.1.4"}}, Raw: "jinja2==3.1.4"},
		},
	}
	want := "flask==3.0.3\njinja2==3.1.4\n"
	if got := p.Manifest().Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
