// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"io"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
)

// Manifest is a fully resolved requirements set with every include
// flattened. The provisioning stage inlines exactly one requirements
// payload into the image build, so includes must be expanded up front.
type Manifest struct {
	// Root is the path of the entry file.
	Root string
	// Requirements lists the root file's requirements followed by each
	// include's, depth-first in reference order.
	Requirements []Requirement
	// IndexURL is the last --index-url across all files, if any.
	IndexURL string
	// ExtraIndexURLs are the deduplicated --extra-index-url values.
	ExtraIndexURLs []string
	// Sources are the files visited, root first.
	Sources []string
}

// Load reads the dependency manifest at root. A file named
// pyproject.toml is parsed as PEP 621 metadata; anything else is read
// as a pip requirements file and its -r includes are followed, with
// include paths resolving relative to the file that references them.
// Constraint files are rejected: a flattened manifest has no second
// file to carry them, and pinned requirements make them redundant.
func Load(fs billy.Filesystem, root string) (*Manifest, error) {
	if path.Base(root) == "pyproject.toml" {
		content, err := readFile(fs, root)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", root)
		}
		p, err := ParsePyProject([]byte(content))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", root)
		}
		m := p.Manifest()
		m.Root = root
		m.Sources = []string{root}
		return m, nil
	}
	m := &Manifest{Root: root}
	if err := m.loadFile(fs, path.Clean(root), make(map[string]bool), make(map[string]bool)); err != nil {
		return nil, err
	}
	return m, nil
}

// loadFile flattens p into the manifest. Files on the active include
// chain trip cycle detection; files already flattened elsewhere in the
// tree are skipped so diamond includes do not duplicate requirements.
func (m *Manifest) loadFile(fs billy.Filesystem, p string, active, done map[string]bool) error {
	if active[p] {
		return errors.Errorf("requirement file cycle through %s", p)
	}
	if done[p] {
		return nil
	}
	active[p] = true
	defer delete(active, p)
	content, err := readFile(fs, p)
	if err != nil {
		return errors.Wrapf(err, "reading %s", p)
	}
	f, err := Parse(strings.NewReader(content))
	if err != nil {
		return errors.Wrapf(err, "parsing %s", p)
	}
	if len(f.Constraints) > 0 {
		return errors.Errorf("%s: constraint files are not supported", p)
	}
	m.Sources = append(m.Sources, p)
	m.Requirements = append(m.Requirements, f.Requirements...)
	if f.IndexURL != "" {
		m.IndexURL = f.IndexURL
	}
	for _, u := range f.ExtraIndexURLs {
		if !contains(m.ExtraIndexURLs, u) {
			m.ExtraIndexURLs = append(m.ExtraIndexURLs, u)
		}
	}
	for _, inc := range f.Includes {
		target := inc
		if !path.IsAbs(target) {
			target = path.Join(path.Dir(p), target)
		}
		if err := m.loadFile(fs, path.Clean(target), active, done); err != nil {
			return err
		}
	}
	done[p] = true
	return nil
}

func readFile(fs billy.Filesystem, p string) (string, error) {
	f, err := fs.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// Render writes the manifest back out as a single requirements file,
// index options first. The output is what the image build inlines.
func (m *Manifest) Render() string {
	var b strings.Builder
	if m.IndexURL != "" {
		fmt.Fprintf(&b, "--index-url %s\n", m.IndexURL)
	}
	for _, u := range m.ExtraIndexURLs {
		fmt.Fprintf(&b, "--extra-index-url %s\n", u)
	}
	for _, r := range m.Requirements {
		b.WriteString(r.Raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// Unpinned returns the requirements that do not pin an exact version.
// Editable and direct URL requirements count as unpinned.
func (m *Manifest) Unpinned() []Requirement {
	var out []Requirement
	for _, r := range m.Requirements {
		if _, ok := r.Pinned(); !ok {
			out = append(out, r)
		}
	}
	return out
}
