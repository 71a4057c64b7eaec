// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses Python dependency manifests: pip requirements
// files and PEP 621 pyproject metadata. Parsed manifests feed the
// dependency installation stage and the index verification command.
package manifest

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Requirement is one dependency of a manifest.
type Requirement struct {
	// Name is the project name as written.
	Name string
	// Extras are the requested extras, like "async" in flask[async].
	Extras []string
	// Specifiers are the version clauses, like ==3.0.3 or >=2,<3.
	Specifiers []Specifier
	// Markers is the raw environment marker expression after ';', if any.
	Markers string
	// Hashes are the --hash options attached to the requirement.
	Hashes []string
	// DirectURL is set for direct references (name @ url).
	DirectURL string
	// Editable marks -e requirements.
	Editable bool
	// Line is the 1-based line where the requirement starts in its file.
	Line int
	// Raw is the logical line as written, continuations joined.
	Raw string
}

// Specifier is a single version clause of a requirement.
type Specifier struct {
	Op      string
	Version string
}

// Normalized returns the PEP 503 normalized project name.
func (r Requirement) Normalized() string {
	return NormalizeName(r.Name)
}

// Pinned returns the exact version when the requirement pins one, which
// requires a single == or === clause without a wildcard.
func (r Requirement) Pinned() (string, bool) {
	if len(r.Specifiers) != 1 {
		return "", false
	}
	s := r.Specifiers[0]
	if s.Op != "==" && s.Op != "===" {
		return "", false
	}
	if strings.HasSuffix(s.Version, ".*") {
		return "", false
	}
	return s.Version, true
}

var normalizeRE = regexp.MustCompile(`[-_.]+`)

// NormalizeName normalizes a package name according to PEP 503.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRE.ReplaceAllString(name, "-"))
}

// File is a single parsed requirements file. Includes are recorded, not
// followed; Load resolves them.
type File struct {
	Requirements   []Requirement
	Includes       []string
	Constraints    []string
	IndexURL       string
	ExtraIndexURLs []string
}

var nameExtrasRE = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

var specifierRE = regexp.MustCompile(`^(===|==|!=|<=|>=|~=|<|>)\s*(\S+)$`)

// Parse reads one requirements file. Line continuations are joined,
// comments stripped, and per-requirement options captured. Unsupported
// pip options fail the parse: a manifest the installer would interpret
// differently than the planner must not reach a build.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineno, start := 0, 0
	var logical string
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if logical == "" {
			start = lineno
		}
		if stripped, cont := strings.CutSuffix(line, `\`); cont {
			logical += stripped
			continue
		}
		logical += line
		if err := f.parseLine(strings.TrimSpace(stripComment(logical)), start); err != nil {
			return nil, err
		}
		logical = ""
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	if logical != "" {
		if err := f.parseLine(strings.TrimSpace(stripComment(logical)), start); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// stripComment removes a trailing comment. A '#' opens a comment at the
// start of the line or after whitespace, matching pip.
func stripComment(line string) string {
	for i, c := range line {
		if c != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return line[:i]
		}
	}
	return line
}

func (f *File) parseLine(line string, lineno int) error {
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "-") {
		return f.parseOption(line, lineno)
	}
	req, err := parseRequirement(line, lineno)
	if err != nil {
		return err
	}
	f.Requirements = append(f.Requirements, req)
	return nil
}

// optionValue splits "--opt value" and "--opt=value" forms.
func optionValue(line string) (opt, value string) {
	if opt, value, ok := strings.Cut(line, "="); ok && !strings.Contains(opt, " ") {
		return opt, strings.TrimSpace(value)
	}
	opt, value, _ = strings.Cut(line, " ")
	return opt, strings.TrimSpace(value)
}

func (f *File) parseOption(line string, lineno int) error {
	opt, value := optionValue(line)
	switch opt {
	case "-r", "--requirement":
		if value == "" {
			return errors.Errorf("line %d: %s needs a path", lineno, opt)
		}
		f.Includes = append(f.Includes, value)
	case "-c", "--constraint":
		if value == "" {
			return errors.Errorf("line %d: %s needs a path", lineno, opt)
		}
		f.Constraints = append(f.Constraints, value)
	case "-i", "--index-url":
		f.IndexURL = value
	case "--extra-index-url":
		f.ExtraIndexURLs = append(f.ExtraIndexURLs, value)
	case "-e", "--editable":
		f.Requirements = append(f.Requirements, Requirement{
			Editable: true,
			Line:     lineno,
			Raw:      line,
		})
	case "--no-index", "--pre", "--no-binary", "--only-binary", "--require-hashes":
		// Install-behavior flags pass through Raw rendering untouched.
	default:
		return errors.Errorf("line %d: unsupported option %q", lineno, opt)
	}
	return nil
}

func parseRequirement(line string, lineno int) (Requirement, error) {
	req := Requirement{Line: lineno, Raw: line}
	spec := line
	// Per-requirement options trail the specifier.
	if idx := strings.Index(spec, " --hash"); idx >= 0 {
		for _, field := range strings.Fields(spec[idx:]) {
			opt, value := optionValue(field)
			if opt != "--hash" || value == "" {
				return req, errors.Errorf("line %d: unsupported requirement option %q", lineno, opt)
			}
			req.Hashes = append(req.Hashes, value)
		}
		spec = strings.TrimSpace(spec[:idx])
	}
	if idx := strings.Index(spec, ";"); idx >= 0 {
		req.Markers = strings.TrimSpace(spec[idx+1:])
		spec = strings.TrimSpace(spec[:idx])
	}
	m := nameExtrasRE.FindStringSubmatch(spec)
	if m == nil {
		return req, errors.Errorf("line %d: malformed requirement %q", lineno, spec)
	}
	req.Name = m[1]
	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			req.Extras = append(req.Extras, strings.TrimSpace(extra))
		}
	}
	rest := strings.TrimSpace(m[3])
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "@"):
		req.DirectURL = strings.TrimSpace(strings.TrimPrefix(rest, "@"))
	default:
		for _, clause := range strings.Split(rest, ",") {
			sm := specifierRE.FindStringSubmatch(strings.TrimSpace(clause))
			if sm == nil {
				return req, errors.Errorf("line %d: malformed specifier %q", lineno, clause)
			}
			req.Specifiers = append(req.Specifiers, Specifier{Op: sm[1], Version: sm[2]})
		}
	}
	return req, nil
}
