// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// AssetType is the kind of artifact recorded for a build.
type AssetType string

// For binds the type to a target, yielding a storable Asset.
func (a AssetType) For(t Target) Asset {
	return Asset{Type: a, Target: t}
}

const (
	// DockerfileAsset is the rendered container build file.
	DockerfileAsset AssetType = "Dockerfile"
	// LogsAsset is the captured build output.
	LogsAsset AssetType = "build.log"
	// ImageAsset is the exported container image.
	ImageAsset AssetType = "image.tgz"
	// DefinitionAsset is the definition the build ran from.
	DefinitionAsset AssetType = "runtime.yaml"
	// ReportAsset is the verification report for the built image.
	ReportAsset AssetType = "checks.json"
)

// ErrAssetNotFound indicates the asset requested to be read could not be found.
var ErrAssetNotFound = errors.New("asset not found")

// Asset is one artifact of provisioning a single runtime image.
type Asset struct {
	Type   AssetType
	Target Target
}

// assetPath is the hierarchy shared by path-based stores.
func assetPath(a Asset, runID string) []string {
	return []string{a.Target.Name, a.Target.Python, runID, string(a.Type)}
}

// ReadOnlyAssetStore is a read-only view of stored build artifacts.
type ReadOnlyAssetStore interface {
	Reader(ctx context.Context, a Asset) (io.ReadCloser, error)
}

// AssetStore is a storage mechanism for build artifacts.
type AssetStore interface {
	ReadOnlyAssetStore
	Writer(ctx context.Context, a Asset) (io.WriteCloser, error)
}

// LocatableAssetStore is an asset store whose assets can be identified with a URL.
type LocatableAssetStore interface {
	AssetStore
	URL(a Asset) *url.URL
}

// StoreFromURL constructs an asset store for a storage location.
// Supported forms: "gs://bucket/prefix", "file:///dir", or a bare path.
func StoreFromURL(ctx context.Context, storeURL, runID string, gcsOpts ...option.ClientOption) (LocatableAssetStore, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing asset store URL")
	}
	switch u.Scheme {
	case "gs":
		store, err := NewGCSStore(ctx, storeURL, runID, gcsOpts...)
		return store, errors.Wrap(err, "creating GCS store")
	case "file", "":
		dir := filepath.Join(u.Path, runID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "creating asset dir")
		}
		return NewFilesystemAssetStore(osfs.New(dir)), nil
	default:
		return nil, errors.Errorf("unsupported scheme: %q", u.Scheme)
	}
}

// GCSStore stores assets in a GCS bucket.
type GCSStore struct {
	gcsClient *gcs.Client
	bucket    string
	prefix    string
	runID     string
}

// NewGCSStore creates a GCSStore rooted at a "gs://bucket/prefix" location.
func NewGCSStore(ctx context.Context, uploadPrefix, runID string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	s := &GCSStore{gcsClient: client, runID: runID}
	s.bucket, s.prefix, _ = strings.Cut(strings.TrimPrefix(uploadPrefix, "gs://"), "/")
	return s, nil
}

func (s *GCSStore) resourcePath(a Asset) string {
	return path.Join(append([]string{s.prefix}, assetPath(a, s.runID)...)...)
}

func (s *GCSStore) URL(a Asset) *url.URL {
	return &url.URL{Scheme: "gs", Path: path.Join(s.bucket, s.resourcePath(a))}
}

// Reader returns a reader for the given asset.
func (s *GCSStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	objectPath := s.resourcePath(a)
	r, err := s.gcsClient.Bucket(s.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		if err == gcs.ErrObjectNotExist {
			err = stderrors.Join(err, ErrAssetNotFound)
		}
		return nil, errors.Wrapf(err, "creating GCS reader for %s", objectPath)
	}
	return r, nil
}

// Writer returns a writer for the given asset.
func (s *GCSStore) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	return s.gcsClient.Bucket(s.bucket).Object(s.resourcePath(a)).NewWriter(ctx), nil
}

var _ LocatableAssetStore = &GCSStore{}

// FilesystemAssetStore stores assets in a billy.Filesystem.
type FilesystemAssetStore struct {
	fs    billy.Filesystem
	runID string
}

// NewFilesystemAssetStoreWithRunID creates a FilesystemAssetStore keyed by run.
func NewFilesystemAssetStoreWithRunID(fs billy.Filesystem, runID string) *FilesystemAssetStore {
	return &FilesystemAssetStore{fs: fs, runID: runID}
}

// NewFilesystemAssetStore creates a FilesystemAssetStore.
func NewFilesystemAssetStore(fs billy.Filesystem) *FilesystemAssetStore {
	return NewFilesystemAssetStoreWithRunID(fs, "")
}

func (s *FilesystemAssetStore) resourcePath(a Asset) string {
	return filepath.Join(assetPath(a, s.runID)...)
}

func (s *FilesystemAssetStore) URL(a Asset) *url.URL {
	return &url.URL{Scheme: "file", Path: filepath.Join(s.fs.Root(), s.resourcePath(a))}
}

// Reader returns a reader for the given asset.
func (s *FilesystemAssetStore) Reader(ctx context.Context, a Asset) (io.ReadCloser, error) {
	p := s.resourcePath(a)
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = stderrors.Join(err, ErrAssetNotFound)
		}
		return nil, errors.Wrapf(err, "creating reader for %v", a)
	}
	return f, nil
}

// Writer returns a writer for the given asset.
func (s *FilesystemAssetStore) Writer(ctx context.Context, a Asset) (io.WriteCloser, error) {
	p := s.resourcePath(a)
	f, err := s.fs.Create(p)
	if err != nil {
		return nil, errors.Wrapf(err, "creating writer for %v", a)
	}
	return f, nil
}

var _ LocatableAssetStore = &FilesystemAssetStore{}
