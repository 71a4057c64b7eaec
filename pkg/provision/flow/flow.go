// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package flow assembles shell scripts from step and tool templates.
package flow

import (
	"bytes"
	"cmp"
	"maps"
	"regexp"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/pyver"
)

// Step is one templated unit of a provisioning script. A step either runs
// an inline script template or invokes a registered tool with arguments.
type Step struct {
	// Simple step: templated shell script with declared system deps.

	Runs  string   `json:"runs" yaml:"runs,omitempty"`
	Needs []string `json:"needs" yaml:"needs,omitempty"`

	// Composite step: tool invocation with provided args.

	Uses string            `json:"uses" yaml:"uses,omitempty"`
	With map[string]string `json:"with" yaml:"with,omitempty"`
}

// Data is the template context shared by every step in a resolution.
type Data map[string]any

func resolveTemplate(buf *bytes.Buffer, tmpl string, data any) error {
	t, err := template.New("").Option("missingkey=zero").Funcs(template.FuncMap{
		"fromJSON":   FromJSON,
		"toJSON":     ToJSON,
		"cmpVersion": pyver.Cmp,
		"regexReplace": func(src, pattern, repl string) (string, error) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", errors.Wrap(err, "compiling regex")
			}
			return re.ReplaceAllString(src, repl), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return errors.Wrap(err, "parsing template")
	}
	if err := t.Execute(buf, data); err != nil {
		return errors.Wrap(err, "executing template")
	}
	return nil
}

func withData(data Data, with map[string]string) Data {
	merged := make(Data, len(data)+1)
	maps.Copy(merged, data)
	merged["With"] = with
	return merged
}

// Resolve expands the step into a Fragment using the given tool arguments
// and template context.
func (step Step) Resolve(with map[string]string, data Data) (Fragment, error) {
	hasRuns := step.Runs != ""
	hasUses := step.Uses != ""
	if hasRuns == hasUses {
		return Fragment{}, errors.New("must provide exactly one of 'runs' or 'uses'")
	}
	ctx := withData(data, with)
	if hasRuns {
		var buf bytes.Buffer
		if err := resolveTemplate(&buf, step.Runs, ctx); err != nil {
			return Fragment{}, errors.Wrap(err, "resolving 'runs' value")
		}
		return Fragment{Script: buf.String(), Needs: step.Needs}, nil
	}
	tool, err := Tools.Get(step.Uses)
	if err != nil {
		return Fragment{}, err
	}
	resolvedWith := make(map[string]string, len(step.With))
	var buf bytes.Buffer
	for k, v := range step.With {
		if err := resolveTemplate(&buf, v, ctx); err != nil {
			return Fragment{}, errors.Wrapf(err, "resolving 'with' value for {key=%q,val=%q}", k, v)
		}
		resolvedWith[k] = buf.String()
		buf.Reset()
	}
	return tool.Generate(resolvedWith, data)
}

// ResolveSteps resolves and accumulates results for a sequence of steps.
func ResolveSteps(steps []Step, with map[string]string, data Data) (Fragment, error) {
	var frag Fragment
	for i, step := range steps {
		resolved, err := step.Resolve(with, data)
		if err != nil {
			return Fragment{}, err
		}
		if i == 0 {
			frag = resolved
		} else {
			frag = frag.Join(resolved)
		}
	}
	return frag, nil
}

// Fragment is a concrete shell script with its system requirements.
type Fragment struct {
	Script string
	Needs  []string
}

// Join concatenates two fragments, deduplicating their requirements.
func (f Fragment) Join(other Fragment) Fragment {
	var script string
	if f.Script == "" || other.Script == "" {
		script = cmp.Or(f.Script, other.Script)
	} else {
		script = strings.Join([]string{f.Script, other.Script}, "\n")
	}
	var needs []string
	seen := map[string]bool{}
	for _, need := range append(f.Needs, other.Needs...) {
		if !seen[need] {
			seen[need] = true
			needs = append(needs, need)
		}
	}
	return Fragment{Script: script, Needs: needs}
}
