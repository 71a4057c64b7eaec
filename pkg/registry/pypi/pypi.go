// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package pypi describes the PyPI registry interface.
package pypi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/httpx"
	"github.com/uecboard/keiji/internal/urlx"
)

var registryURL = urlx.MustParse("https://pypi.org")

// ErrNotFound indicates the requested project or release does not exist
// on the index.
var ErrNotFound = errors.New("not found")

// Project describes a single PyPI project with multiple releases.
type Project struct {
	Info     `json:"info"`
	Releases map[string][]Artifact `json:"releases"`
}

// Release describes a single PyPI project version with multiple artifacts.
type Release struct {
	Info      `json:"info"`
	Artifacts []Artifact `json:"urls"`
}

// Info about a project.
type Info struct {
	Name        string            `json:"name"`
	Summary     string            `json:"summary"`
	Version     string            `json:"version"`
	Homepage    string            `json:"home_page"`
	ProjectURLs map[string]string `json:"project_urls"`
}

// An Artifact is one out of the multiple files that can be included in a
// release.
//
// PyPI might refer to this object as a "package" which is why it has a
// PackageType.
type Artifact struct {
	Digests       `json:"digests"`
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	PackageType   string    `json:"packagetype"`
	PythonVersion string    `json:"python_version"`
	URL           string    `json:"url"`
	UploadTime    time.Time `json:"upload_time_iso_8601"`
	Yanked        bool      `json:"yanked"`
}

// Digests are the hashes of the artifact.
type Digests struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// Registry is a PyPI package registry.
type Registry interface {
	Project(context.Context, string) (*Project, error)
	Release(context.Context, string, string) (*Release, error)
}

// HTTPRegistry is a Registry implementation that uses the pypi.org HTTP API.
type HTTPRegistry struct {
	Client httpx.BasicClient
}

// Project provides all API information related to the given package.
func (r HTTPRegistry) Project(ctx context.Context, pkg string) (*Project, error) {
	pathURL, err := url.Parse(path.Join("/pypi", pkg, "json"))
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, registryURL.ResolveReference(pathURL).String(), nil)
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "project %s", pkg)
	}
	if resp.StatusCode != 200 {
		return nil, errors.Wrap(errors.New(resp.Status), "fetching project")
	}
	var p Project
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Release provides all API information related to the given version of a package.
func (r HTTPRegistry) Release(ctx context.Context, pkg, version string) (*Release, error) {
	pathURL, err := url.Parse(path.Join("/pypi", pkg, version, "json"))
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, registryURL.ResolveReference(pathURL).String(), nil)
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "release %s %s", pkg, version)
	}
	if resp.StatusCode != 200 {
		return nil, errors.Wrap(errors.New(resp.Status), "fetching release")
	}
	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

var _ Registry = &HTTPRegistry{}
