// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package cpython describes the python.org release interface.
package cpython

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/cache"
	"github.com/uecboard/keiji/internal/httpx"
	"github.com/uecboard/keiji/internal/pyver"
	"github.com/uecboard/keiji/internal/urlx"
)

var (
	downloadsURL = urlx.MustParse("https://www.python.org/api/v2/downloads/release/")
	sourceURL    = urlx.MustParse("https://www.python.org/ftp/python/")
)

// Release describes a single published CPython release.
type Release struct {
	Version pyver.Version
	Date    time.Time
}

// SourceURL returns the python.org source tarball location for a release.
// Tarballs live under the base version directory even for pre-releases:
// 3.13.0rc2 is published under ftp/python/3.13.0/.
func SourceURL(v pyver.Version) *url.URL {
	u := urlx.Copy(sourceURL)
	u.Path = path.Join(u.Path, v.Base(), fmt.Sprintf("Python-%s.tgz", v))
	return u
}

// Registry is a source of CPython release information.
type Registry interface {
	Releases(context.Context) ([]Release, error)
	ResolveSeries(context.Context, pyver.Series) (pyver.Version, error)
}

// resolveSeries picks the newest final release within the series.
func resolveSeries(releases []Release, s pyver.Series) (pyver.Version, error) {
	var best pyver.Version
	var found bool
	for _, r := range releases {
		if !r.Version.IsFinal() || !s.Contains(r.Version) {
			continue
		}
		if !found || pyver.Compare(best, r.Version) < 0 {
			best = r.Version
			found = true
		}
	}
	if !found {
		return pyver.Version{}, errors.Errorf("no published release in series %s", s)
	}
	return best, nil
}

// apiRelease is the wire form of a downloads API entry.
type apiRelease struct {
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	IsPublished bool      `json:"is_published"`
	PreRelease  bool      `json:"pre_release"`
	ReleaseDate time.Time `json:"release_date"`
}

// HTTPRegistry is a Registry implementation that uses the python.org
// downloads API. The release list is fetched once per process.
type HTTPRegistry struct {
	client httpx.BasicClient
	cache  cache.Cache
}

// NewHTTPRegistry creates an HTTPRegistry using the given client.
func NewHTTPRegistry(client httpx.BasicClient) *HTTPRegistry {
	return &HTTPRegistry{client: client, cache: &cache.CoalescingMemoryCache{}}
}

// Releases returns all published releases, newest last within a series.
func (r *HTTPRegistry) Releases(ctx context.Context) ([]Release, error) {
	v, err := r.cache.GetOrSet("releases", func() (any, error) {
		return r.fetchReleases(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Release), nil
}

func (r *HTTPRegistry) fetchReleases(ctx context.Context) ([]Release, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, downloadsURL.String(), nil)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, errors.Wrap(errors.New(resp.Status), "fetching releases")
	}
	var entries []apiRelease
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decoding releases")
	}
	var releases []Release
	for _, e := range entries {
		if !e.IsPublished {
			continue
		}
		// Names look like "Python 3.11.9" or "Python 3.13.0rc2".
		v, err := pyver.New(strings.TrimPrefix(e.Name, "Python "))
		if err != nil {
			continue
		}
		releases = append(releases, Release{Version: v, Date: e.ReleaseDate})
	}
	return releases, nil
}

// ResolveSeries returns the newest final release in the given series.
func (r *HTTPRegistry) ResolveSeries(ctx context.Context, s pyver.Series) (pyver.Version, error) {
	releases, err := r.Releases(ctx)
	if err != nil {
		return pyver.Version{}, err
	}
	return resolveSeries(releases, s)
}

var _ Registry = &HTTPRegistry{}

// StaticRegistry resolves against a fixed release table without network
// access.
type StaticRegistry struct {
	// Table overrides the baked-in KnownReleases when non-empty.
	Table []Release
}

// Releases returns the configured table.
func (r StaticRegistry) Releases(ctx context.Context) ([]Release, error) {
	if len(r.Table) > 0 {
		return r.Table, nil
	}
	return KnownReleases, nil
}

// ResolveSeries returns the newest final release in the given series.
func (r StaticRegistry) ResolveSeries(ctx context.Context, s pyver.Series) (pyver.Version, error) {
	releases, err := r.Releases(ctx)
	if err != nil {
		return pyver.Version{}, err
	}
	return resolveSeries(releases, s)
}

var _ Registry = StaticRegistry{}
