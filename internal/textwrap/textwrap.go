// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package textwrap

import "strings"

// Dedent strips the whitespace prefix shared by every non-blank line.
//
// Behaves like Python's textwrap.dedent: only spaces and tabs count as
// indentation, and lines containing nothing but whitespace are reduced to
// empty lines without contributing to the computed prefix.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	var prefix string
	var found bool
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := line[:len(line)-len(trimmed)]
		if !found {
			prefix, found = indent, true
		} else {
			prefix = commonPrefix(prefix, indent)
		}
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimLeft(line, " \t") == "" {
			out[i] = ""
		} else {
			out[i] = strings.TrimPrefix(line, prefix)
		}
	}
	return strings.Join(out, "\n")
}

func commonPrefix(a, b string) string {
	limit := min(len(a), len(b))
	for i := range limit {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:limit]
}
