// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package pyver models CPython release versions.
//
// Versions follow the subset of PEP 440 that CPython itself uses:
// N.N.N with an optional alpha, beta, or release-candidate suffix
// (for example "3.11.9" or "3.13.0rc2"). Epochs, post-releases, dev
// releases, and local identifiers are not modeled.
package pyver

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// Version is a fully pinned CPython version.
type Version struct {
	Major  int
	Minor  int
	Micro  int
	Pre    string // "a", "b", or "rc"; empty for final releases
	PreNum int
}

var versionRE = regexp.MustCompile(`^(?P<Major>\d+)\.(?P<Minor>\d+)\.(?P<Micro>\d+)(?:(?P<Pre>a|b|rc)(?P<PreNum>\d+))?$`)

// New parses a fully pinned version string.
func New(s string) (Version, error) {
	matches := versionRE.FindStringSubmatch(s)
	if matches == nil {
		return Version{}, errors.Errorf("invalid version: %q", s)
	}
	major, _ := strconv.Atoi(matches[versionRE.SubexpIndex("Major")])
	minor, _ := strconv.Atoi(matches[versionRE.SubexpIndex("Minor")])
	micro, _ := strconv.Atoi(matches[versionRE.SubexpIndex("Micro")])
	v := Version{Major: major, Minor: minor, Micro: micro}
	if pre := matches[versionRE.SubexpIndex("Pre")]; pre != "" {
		v.Pre = pre
		v.PreNum, _ = strconv.Atoi(matches[versionRE.SubexpIndex("PreNum")])
	}
	return v, nil
}

// IsFinal reports whether v is a final release (no pre-release suffix).
func (v Version) IsFinal() bool {
	return v.Pre == ""
}

// String formats the version as CPython spells it, like "3.13.0rc2".
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
	if v.Pre != "" {
		s += fmt.Sprintf("%s%d", v.Pre, v.PreNum)
	}
	return s
}

// Base formats the version without any pre-release suffix. python.org
// organizes download directories by this form.
func (v Version) Base() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Series returns the feature release line v belongs to.
func (v Version) Series() Series {
	return Series{Major: v.Major, Minor: v.Minor}
}

// a < b < rc < final
func phaseRank(pre string) int {
	switch pre {
	case "a":
		return 0
	case "b":
		return 1
	case "rc":
		return 2
	default:
		return 3
	}
}

// Compare orders versions. Pre-releases sort before the final release of
// the same triple, alphas before betas before release candidates.
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return cmp.Compare(a.Major, b.Major)
	case a.Minor != b.Minor:
		return cmp.Compare(a.Minor, b.Minor)
	case a.Micro != b.Micro:
		return cmp.Compare(a.Micro, b.Micro)
	case a.Pre != b.Pre:
		return cmp.Compare(phaseRank(a.Pre), phaseRank(b.Pre))
	default:
		return cmp.Compare(a.PreNum, b.PreNum)
	}
}

// Cmp compares two version strings. Unparseable strings sort first.
func Cmp(a, b string) int {
	av, err := New(a)
	if err != nil {
		return -1
	}
	bv, err := New(b)
	if err != nil {
		return 1
	}
	return Compare(av, bv)
}

// Series identifies a CPython feature release line, like "3.11".
type Series struct {
	Major int
	Minor int
}

var seriesRE = regexp.MustCompile(`^(?P<Major>\d+)\.(?P<Minor>\d+)$`)

// ParseSeries parses a feature release line of the form "N.N".
func ParseSeries(s string) (Series, error) {
	matches := seriesRE.FindStringSubmatch(s)
	if matches == nil {
		return Series{}, errors.Errorf("invalid release series: %q", s)
	}
	major, _ := strconv.Atoi(matches[seriesRE.SubexpIndex("Major")])
	minor, _ := strconv.Atoi(matches[seriesRE.SubexpIndex("Minor")])
	return Series{Major: major, Minor: minor}, nil
}

func (s Series) String() string {
	return fmt.Sprintf("%d.%d", s.Major, s.Minor)
}

// Contains reports whether v belongs to the series.
func (s Series) Contains(v Version) bool {
	return v.Major == s.Major && v.Minor == s.Minor
}
