// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitx fetches pinned manifest sources from git repositories.
package gitx

import (
	"context"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/pkg/errors"
)

// Clone fetches repoURL into in-memory storage with a memfs worktree.
// Manifests are small; nothing ever touches disk.
func Clone(ctx context.Context, repoURL string) (*git.Repository, error) {
	repo, err := git.CloneContext(ctx, memory.NewStorage(), memfs.New(), &git.CloneOptions{URL: repoURL})
	return repo, errors.Wrapf(err, "cloning %s", repoURL)
}

// ResolveCommit resolves ref to a commit. Branch names, tag names, and
// commit hashes all work; the empty ref means HEAD. Annotated tags are
// followed to their target commit.
func ResolveCommit(repo *git.Repository, ref string) (*object.Commit, error) {
	var hash plumbing.Hash
	if ref == "" {
		head, err := repo.Head()
		if err != nil {
			return nil, errors.Wrap(err, "reading HEAD")
		}
		hash = head.Hash()
	} else {
		h, err := repo.ResolveRevision(plumbing.Revision(ref))
		if err != nil {
			return nil, errors.Wrapf(err, "resolving ref %q", ref)
		}
		hash = *h
	}
	if tag, err := repo.TagObject(hash); err == nil {
		// Annotated tag. Use the target as the commit.
		hash = tag.Target
	}
	commit, err := repo.CommitObject(hash)
	return commit, errors.Wrapf(err, "reading commit %s", hash)
}

// CheckoutCommit checks out the commit and returns the worktree
// filesystem, ready for manifest loading.
func CheckoutCommit(repo *git.Repository, commit *object.Commit) (billy.Filesystem, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, "getting worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: commit.Hash, Force: true}); err != nil {
		return nil, errors.Wrapf(err, "checking out %s", commit.Hash)
	}
	return wt.Filesystem, nil
}
