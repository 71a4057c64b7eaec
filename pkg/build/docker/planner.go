// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/textwrap"
	"github.com/uecboard/keiji/pkg/build"
	"github.com/uecboard/keiji/pkg/provision"
)

// dockerfileArgs is the template input for a runtime image Dockerfile.
type dockerfileArgs struct {
	provision.Instructions
	BaseImage      string
	PackageManager build.PackageManagerCommands
}

// dockerfileTpl generates Dockerfiles for local runtime image builds.
//
// Stage scripts are piped through sh so a failing command aborts the
// build at that line. The ENV block sits between the interpreter and
// dependency stages: later stages must already resolve the pinned
// python3 through PATH.
var dockerfileTpl = template.Must(
	template.New("runtime image dockerfile").Funcs(template.FuncMap{
		"indent": func(s string) string { return strings.ReplaceAll(s, "\n", "\n ") },
	}).Parse(
		textwrap.Dedent(`
			#syntax=docker/dockerfile:1.10
			FROM {{.BaseImage}}
			{{- if .Instructions.SystemDeps}}
			RUN sed 's/^ //' <<'EOF' | sh
			 set -eux
			 {{.PackageManager.UpdateCmd}}
			 {{.PackageManager.InstallCommand .Instructions.SystemDeps}}
			 {{.PackageManager.CleanupCmd}}
			EOF
			{{- end}}
			RUN sed 's/^ //' <<'EOF' | sh
			 set -eux
			 {{.Instructions.Interpreter | indent}}
			EOF
			{{- range .Instructions.Env}}
			ENV {{.Name}}="{{.Value}}"
			{{- end}}
			ENV PATH="{{.Instructions.PathDir}}:${PATH}"
			{{- if .Instructions.Deps}}
			RUN sed 's/^ //' <<'EOF' | sh
			 set -eux
			 {{.Instructions.Deps | indent}}
			EOF
			{{- end}}
			{{- if .Instructions.Configure}}
			RUN sed 's/^ //' <<'EOF' | sh
			 set -eux
			 {{.Instructions.Configure | indent}}
			EOF
			{{- end}}
			WORKDIR "{{.Instructions.Workdir}}"
			CMD ["python3"]
			`)[1:], // remove leading newline
	))

// BuildPlanner generates Docker build execution plans.
type BuildPlanner struct{}

// NewBuildPlanner creates a new Docker build planner.
func NewBuildPlanner() *BuildPlanner {
	return &BuildPlanner{}
}

// GeneratePlan implements build.Planner[*BuildPlan].
func (p *BuildPlanner) GeneratePlan(ctx context.Context, input provision.Input, opts build.PlanOptions) (*BuildPlan, error) {
	def := input.Definition.WithDefaults()
	instructions, err := input.Strategy.GenerateFor(def, opts.BuildEnv)
	if err != nil {
		return nil, errors.Wrap(err, "generating provisioning instructions")
	}
	dockerfile, err := p.generateDockerfile(def, instructions)
	if err != nil {
		return nil, errors.Wrap(err, "generating Dockerfile")
	}
	return &BuildPlan{
		Dockerfile: dockerfile,
		Platform:   opts.Platform,
	}, nil
}

// generateDockerfile renders the Dockerfile for a defaulted Definition
// and its expanded Instructions.
func (p *BuildPlanner) generateDockerfile(def provision.Definition, instructions provision.Instructions) (string, error) {
	os := build.DetectOS(def.BaseImage)
	pkgMgr, err := build.GetPackageManagerCommands(os)
	if err != nil {
		return "", errors.Wrapf(err, "base image %q", def.BaseImage)
	}
	args := dockerfileArgs{
		Instructions:   instructions,
		BaseImage:      def.BaseImage,
		PackageManager: pkgMgr,
	}
	var buf bytes.Buffer
	if err := dockerfileTpl.Execute(&buf, args); err != nil {
		return "", errors.Wrap(err, "executing Dockerfile template")
	}
	return buf.String(), nil
}
