// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/pyver"
	"github.com/uecboard/keiji/pkg/provision/flow"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields a Definition leaves unset.
const (
	DefaultBaseImage = "debian:bookworm-slim"
	DefaultTimezone  = "Asia/Tokyo"
	DefaultLocale    = "ja_JP.UTF-8"
	DefaultHome      = "/root"
	DefaultWorkdir   = "/app"
)

// Definition declares the contract of a runtime image: which interpreter
// it carries, where its dependency manifest comes from, and how the
// container environment is configured.
type Definition struct {
	Name string `json:"name" yaml:"name"`
	// BaseImage is the image the runtime is built on.
	BaseImage string `json:"base_image" yaml:"base_image,omitempty"`
	// Python is the interpreter version, either fully pinned ("3.11.9")
	// or a release series ("3.11") to be resolved before building.
	Python string `json:"python" yaml:"python"`
	// PythonSHA256 optionally pins the source tarball digest.
	PythonSHA256 string `json:"python_sha256" yaml:"python_sha256,omitempty"`
	// Requirements is the path of the pip requirements manifest, relative
	// to the invocation directory or to Source when set.
	Requirements string `json:"requirements" yaml:"requirements,omitempty"`
	// Source optionally locates the manifest in a git repository.
	Source   *Source           `json:"source" yaml:"source,omitempty"`
	Timezone string            `json:"timezone" yaml:"timezone,omitempty"`
	Locale   string            `json:"locale" yaml:"locale,omitempty"`
	Home     string            `json:"home" yaml:"home,omitempty"`
	Workdir  string            `json:"workdir" yaml:"workdir,omitempty"`
	Env      map[string]string `json:"env" yaml:"env,omitempty"`
	// Setup holds extra provisioning steps run after the standard stages.
	Setup []flow.Step `json:"setup" yaml:"setup,omitempty"`
}

// Source locates a dependency manifest in a git repository at a pinned ref.
type Source struct {
	Repo string `json:"repo" yaml:"repo"`
	Ref  string `json:"ref" yaml:"ref"`
	Dir  string `json:"dir" yaml:"dir,omitempty"`
}

// reserved names the image build owns; Env may not override them.
var reservedEnv = []string{"HOME", "PATH", "PYTHON_VERSION", "TZ", "LANG"}

// WithDefaults returns a copy of d with unset fields filled in.
func (d Definition) WithDefaults() Definition {
	if d.BaseImage == "" {
		d.BaseImage = DefaultBaseImage
	}
	if d.Timezone == "" {
		d.Timezone = DefaultTimezone
	}
	if d.Locale == "" {
		d.Locale = DefaultLocale
	}
	if d.Home == "" {
		d.Home = DefaultHome
	}
	if d.Workdir == "" {
		d.Workdir = DefaultWorkdir
	}
	return d
}

// Validate checks d for contradictions. A series-pinned interpreter is
// valid here; it must be resolved to a full pin before building.
func (d Definition) Validate() error {
	if d.Name == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(d.Name, " /\\") {
		return errors.Errorf("name may not contain spaces or path separators: %q", d.Name)
	}
	if d.Python == "" {
		return errors.New("python version is required")
	}
	if _, err := pyver.New(d.Python); err != nil {
		if _, serr := pyver.ParseSeries(d.Python); serr != nil {
			return errors.Errorf("python must be a version or release series: %q", d.Python)
		}
	}
	if d.Source != nil {
		if d.Source.Repo == "" || d.Source.Ref == "" {
			return errors.New("source requires both repo and ref")
		}
		if d.Requirements == "" {
			return errors.New("source requires a requirements path")
		}
	}
	for _, name := range reservedEnv {
		if _, ok := d.Env[name]; ok {
			return errors.Errorf("env may not override %s", name)
		}
	}
	return nil
}

// Target returns the image identity for d. The interpreter version must
// already be fully pinned.
func (d Definition) Target() Target {
	return Target{Name: d.Name, Python: d.Python}
}

// LoadDefinition reads and validates a YAML Definition. Unknown fields
// are rejected so a mistyped key cannot silently produce a default image.
func LoadDefinition(r io.Reader) (Definition, error) {
	var d Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return Definition{}, errors.Wrap(err, "decoding definition")
	}
	if err := d.Validate(); err != nil {
		return Definition{}, errors.Wrap(err, "validating definition")
	}
	return d, nil
}

// WriteDefinition serializes d as YAML.
func WriteDefinition(w io.Writer, d Definition) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return errors.Wrap(err, "encoding definition")
	}
	return enc.Close()
}
