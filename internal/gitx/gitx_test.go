// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package gitx

import (
	"io"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}

func hashOf(s string) plumbing.Hash {
	return plumbing.NewHash(s)
}

func createCommit(repo *git.Repository, name, content string) string {
	worktree := must(repo.Worktree())
	f := must(worktree.Filesystem.Create(name))
	must(f.Write([]byte(content)))
	if err := f.Close(); err != nil {
		panic(err)
	}
	must(worktree.Add(name))
	commit := must(worktree.Commit("Test commit", &git.CommitOptions{
		Author:    &object.Signature{Name: "Test Author", Email: "test@example.com"},
		Committer: &object.Signature{Name: "Test Author", Email: "test@example.com"},
	}))
	return commit.String()
}

func TestResolveCommit(t *testing.T) {
	repo := must(git.Init(memory.NewStorage(), memfs.New()))
	c1 := createCommit(repo, "requirements.txt", "flask==3.0.2\n")
	c2 := createCommit(repo, "notes.txt", "second\n")
	must(repo.CreateTag("v1.0.0", must(repo.CommitObject(hashOf(c1))).Hash, nil))
	must(repo.CreateTag("v1.1.0", must(repo.CommitObject(hashOf(c2))).Hash, &git.CreateTagOptions{
		Message: "Test annotated tag",
		Tagger:  &object.Signature{Name: "Test Author", Email: "test@example.com"},
	}))

	for _, tc := range []struct {
		name string
		ref  string
		want string
	}{
		{name: "empty ref means HEAD", ref: "", want: c2},
		{name: "branch name", ref: "master", want: c2},
		{name: "lightweight tag", ref: "v1.0.0", want: c1},
		{name: "annotated tag follows target", ref: "v1.1.0", want: c2},
		{name: "commit hash", ref: c1, want: c1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			commit, err := ResolveCommit(repo, tc.ref)
			if err != nil {
				t.Fatalf("ResolveCommit(%q): %v", tc.ref, err)
			}
			if got := commit.Hash.String(); got != tc.want {
				t.Errorf("ResolveCommit(%q) = %s, want %s", tc.ref, got, tc.want)
			}
		})
	}

	if _, err := ResolveCommit(repo, "no-such-ref"); err == nil || !strings.Contains(err.Error(), "no-such-ref") {
		t.Errorf("ResolveCommit(no-such-ref) error = %v, want resolution failure", err)
	}
}

func TestCheckoutCommit(t *testing.T) {
	repo := must(git.Init(memory.NewStorage(), memfs.New()))
	c1 := createCommit(repo, "requirements.txt", "flask==3.0.2\n")
	createCommit(repo, "requirements.txt", "flask==3.0.3\n")

	commit := must(ResolveCommit(repo, c1))
	fs, err := CheckoutCommit(repo, commit)
	if err != nil {
		t.Fatalf("CheckoutCommit: %v", err)
	}
	f := must(fs.Open("requirements.txt"))
	defer f.Close()
	got := string(must(io.ReadAll(f)))
	if want := "flask==3.0.2\n"; got != want {
		t.Errorf("requirements.txt at %s = %q, want %q", c1, got, want)
	}
}
