// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"strings"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/go-cmp/cmp"

	"github.com/uecboard/keiji/internal/textwrap"
)

func writeFile(t *testing.T, fs billy.Filesystem, path, content string) {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "app/requirements.txt", textwrap.Dedent(`
		-i https://root.example/simple
		flask==3.0.3
		-r common/base.txt
		`)[1:])
	writeFile(t, fs, "app/common/base.txt", textwrap.Dedent(`
		--extra-index-url https://extra.example/simple
		jinja2==3.1.4
		-r ../shared.txt
		`)[1:])
	writeFile(t, fs, "app/shared.txt", "requests==2.31.0\n")
	got, err := Load(fs, "app/requirements.txt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Manifest{
		Root: "app/requirements.txt",
		Requirements: []Requirement{
			{
				Name:       "flask",
				Specifiers: []Specifier{{Op: "==", Version: "3.0.3"}},
				Line:       2,
				Raw:        "flask==3.0.3",
			},
			{
				Name:       "jinja2",
				Specifiers: []Specifier{{Op: "==", Version: "3.1.4"}},
				Line:       2,
				Raw:        "jinja2==3.1.4",
			},
			{
				Name:       "requests",
				Specifiers: []Specifier{{Op: "==", Version: "2.31.0"}},
				Line:       1,
				Raw:        "requests==2.31.0",
			},
		},
		IndexURL:       "https://root.example/simple",
		ExtraIndexURLs: []string{"https://extra.example/simple"},
		Sources:        []string{"app/requirements.txt", "app/common/base.txt", "app/shared.txt"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDiamondInclude(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "requirements.txt", "-r a.txt\n-r b.txt\n")
	writeFile(t, fs, "a.txt", "-r shared.txt\nflask==3.0.3\n")
	writeFile(t, fs, "b.txt", "-r shared.txt\njinja2==3.1.4\n")
	writeFile(t, fs, "shared.txt", "requests==2.31.0\n")
	got, err := Load(fs, "requirements.txt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var names []string
	for _, r := range got.Requirements {
		names = append(names, r.Name)
	}
	want := []string{"flask", "requests", "jinja2"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("requirement order mismatch (-want +got):\n%s", diff)
	}
	wantSources := []string{"requirements.txt", "a.txt", "shared.txt", "b.txt"}
	if diff := cmp.Diff(wantSources, got.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPyProject(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "app/pyproject.toml", textwrap.Dedent(`
		[project]
		name = "board"
		version = "1.2.0"
		dependencies = [
		    "flask==3.0.3",
		    "requests>=2.31",
		]
		`)[1:])
	got, err := Load(fs, "app/pyproject.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Root != "app/pyproject.toml" {
		t.Errorf("Root = %q, want app/pyproject.toml", got.Root)
	}
	var names []string
	for _, r := range got.Requirements {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"flask", "requests"}, names); diff != "" {
		t.Errorf("requirement names mismatch (-want +got):\n%s", diff)
	}
	if unpinned := got.Unpinned(); len(unpinned) != 1 || unpinned[0].Name != "requests" {
		t.Errorf("Unpinned = %+v, want requests only", unpinned)
	}
}

func TestLoadCycle(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "a.txt", "-r b.txt\n")
	writeFile(t, fs, "b.txt", "-r a.txt\n")
	_, err := Load(fs, "a.txt")
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("Load error = %v, want cycle error", err)
	}
}

func TestLoadConstraintsRejected(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "requirements.txt", "-c constraints.txt\nflask==3.0.3\n")
	_, err := Load(fs, "requirements.txt")
	if err == nil || !strings.Contains(err.Error(), "constraint files are not supported") {
		t.Fatalf("Load error = %v, want constraint rejection", err)
	}
}

func TestLoadMissingInclude(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "requirements.txt", "-r nope.txt\n")
	_, err := Load(fs, "requirements.txt")
	if err == nil || !strings.Contains(err.Error(), "nope.txt") {
		t.Fatalf("Load error = %v, want missing include error", err)
	}
}

func TestRender(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "requirements.txt", textwrap.Dedent(`
		-i https://mirror.example/simple
		# pinned app deps
		flask==3.0.3  # web
		requests==2.31.0 --hash=sha256:deadbeef
		`)[1:])
	m, err := Load(fs, "requirements.txt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := textwrap.Dedent(`
		--index-url https://mirror.example/simple
		flask==3.0.3
		requests==2.31.0 --hash=sha256:deadbeef
		`)[1:]
	if diff := cmp.Diff(want, m.Render()); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpinned(t *testing.T) {
	m := &Manifest{
		Requirements: []Requirement{
			{Name: "flask", Specifiers: []Specifier{{Op: "==", Version: "3.0.3"}}},
			{Name: "requests", Specifiers: []Specifier{{Op: ">=", Version: "2"}}},
			{Editable: true, Raw: "-e ./pkg"},
			{Name: "torch", DirectURL: "https://example.com/torch.whl"},
		},
	}
	var names []string
	for _, r := range m.Unpinned() {
		if r.Name != "" {
			names = append(names, r.Name)
		} else {
			names = append(names, r.Raw)
		}
	}
	want := []string{"requests", "-e ./pkg", "torch"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Unpinned mismatch (-want +got):\n%s", diff)
	}
}
