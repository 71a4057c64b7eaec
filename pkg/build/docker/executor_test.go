// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/uecboard/keiji/pkg/build"
	"github.com/uecboard/keiji/pkg/provision"
)

type mockBuildPlanner struct {
	plan *BuildPlan
	err  error
}

func (m *mockBuildPlanner) GeneratePlan(ctx context.Context, input provision.Input, opts build.PlanOptions) (*BuildPlan, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.plan, nil
}

func newMockBuildAssetStore() provision.LocatableAssetStore {
	return provision.NewFilesystemAssetStore(memfs.New())
}

func readAsset(t *testing.T, store provision.AssetStore, a provision.Asset) string {
	t.Helper()
	r, err := store.Reader(context.Background(), a)
	if err != nil {
		t.Fatalf("Reader(%v): %v", a, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll(%v): %v", a, err)
	}
	return string(data)
}

func TestBuildExecutor(t *testing.T) {
	dockerfile := "#syntax=docker/dockerfile:1.10\nFROM debian:bookworm-slim\nRUN echo provisioning\nCMD [\"python3\"]"
	testCases := []struct {
		name             string
		plan             *BuildPlan
		planError        error
		input            provision.Input
		options          build.Options
		maxParallel      int
		removeImage      bool
		executeFunc      func(ctx context.Context, opts CommandOptions, name string, args ...string) error
		lookPathFunc     func(file string) (string, error)
		expectedCommands []MockCommand
		expectedError    string
		expectSuccess    bool
		expectedImageTag string
		verifyAssets     bool
	}{
		{
			name: "successful build with export",
			plan: &BuildPlan{Dockerfile: dockerfile},
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options: build.Options{
				BuildID:     "test-build-123",
				ExportImage: true,
				Resources: build.Resources{
					AssetStore: newMockBuildAssetStore(),
				},
			},
			maxParallel: 2,
			executeFunc: func(ctx context.Context, opts CommandOptions, name string, args ...string) error {
				if opts.Output != nil && len(args) > 0 && args[0] == "buildx" {
					opts.Output.Write([]byte("Successfully built image\n"))
				}
				return nil
			},
			expectedCommands: []MockCommand{
				{
					Name:  "docker",
					Args:  []string{"buildx", "build", "-t", "board-runtime:test-build-123", "-"},
					Input: dockerfile,
				},
				{
					Name: "sh",
					Args: []string{"-c", "docker save board-runtime:test-build-123 | gzip > /tmp/keiji-build-board-runtime-test-build-123/image.tgz"},
				},
			},
			expectSuccess:    true,
			expectedImageTag: "board-runtime:test-build-123",
			verifyAssets:     true,
		},
		{
			name: "platform constrained build",
			plan: &BuildPlan{Dockerfile: dockerfile, Platform: "linux/amd64"},
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options: build.Options{
				BuildID: "test-build-platform",
			},
			maxParallel: 1,
			expectedCommands: []MockCommand{
				{
					Name:  "docker",
					Args:  []string{"buildx", "build", "-t", "board-runtime:test-build-platform", "--platform", "linux/amd64", "-"},
					Input: dockerfile,
				},
			},
			expectSuccess:    true,
			expectedImageTag: "board-runtime:test-build-platform",
		},
		{
			name: "docker command not found",
			plan: &BuildPlan{Dockerfile: dockerfile},
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options:     build.Options{BuildID: "test-build-456"},
			maxParallel: 1,
			lookPathFunc: func(file string) (string, error) {
				return "", errors.New("docker: command not found")
			},
			expectedError: "docker command not found",
		},
		{
			name: "docker build failure still records assets",
			plan: &BuildPlan{Dockerfile: dockerfile},
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options: build.Options{
				BuildID: "test-build-789",
				Resources: build.Resources{
					AssetStore: newMockBuildAssetStore(),
				},
			},
			maxParallel: 1,
			executeFunc: func(ctx context.Context, opts CommandOptions, name string, args ...string) error {
				if len(args) > 0 && args[0] == "buildx" {
					return errors.New("docker build failed: exit status 1")
				}
				return nil
			},
			expectedCommands: []MockCommand{
				{
					Name:  "docker",
					Args:  []string{"buildx", "build", "-t", "board-runtime:test-build-789", "-"},
					Input: dockerfile,
					Error: errors.New("docker build failed: exit status 1"),
				},
			},
			expectSuccess: false,
			verifyAssets:  true,
		},
		{
			name: "remove image after build",
			plan: &BuildPlan{Dockerfile: dockerfile},
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options: build.Options{
				BuildID: "test-build-rm",
			},
			maxParallel: 1,
			removeImage: true,
			expectedCommands: []MockCommand{
				{
					Name:  "docker",
					Args:  []string{"buildx", "build", "-t", "board-runtime:test-build-rm", "-"},
					Input: dockerfile,
				},
				{
					Name: "docker",
					Args: []string{"rmi", "board-runtime:test-build-rm"},
				},
			},
			expectSuccess:    true,
			expectedImageTag: "board-runtime:test-build-rm",
		},
		{
			name:      "plan generation failure",
			planError: errors.New("failed to generate plan"),
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options:       build.Options{BuildID: "test-build-error"},
			maxParallel:   1,
			expectedError: "failed to generate execution plan",
		},
		{
			name: "timeout handling",
			plan: &BuildPlan{Dockerfile: dockerfile},
			input: provision.Input{
				Definition: provision.Definition{Name: "board-runtime", Python: "3.11.9"},
			},
			options: build.Options{
				BuildID: "test-build-timeout",
				Timeout: 50 * time.Millisecond,
			},
			maxParallel: 1,
			executeFunc: func(ctx context.Context, opts CommandOptions, name string, args ...string) error {
				select {
				case <-time.After(100 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			expectSuccess: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmdExecutor := NewMockCommandExecutor()
			if tc.executeFunc != nil {
				cmdExecutor.SetExecuteFunc(tc.executeFunc)
			}
			if tc.lookPathFunc != nil {
				cmdExecutor.SetLookPathFunc(tc.lookPathFunc)
			}

			executor, err := NewBuildExecutor(BuildExecutorConfig{
				Planner: &mockBuildPlanner{
					plan: tc.plan,
					err:  tc.planError,
				},
				CommandExecutor: cmdExecutor,
				MaxParallel:     tc.maxParallel,
				RemoveImage:     tc.removeImage,
				TempDirBase:     "/tmp",
			})

			// Check constructor errors
			if tc.expectedError != "" && err != nil {
				if !strings.Contains(err.Error(), tc.expectedError) {
					t.Errorf("Expected error containing %q, got %q", tc.expectedError, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error creating executor: %v", err)
			}

			status := executor.Status()
			expectedStatus := build.ExecutorStatus{
				InProgress: 0,
				Capacity:   tc.maxParallel,
				Healthy:    true,
			}
			if diff := cmp.Diff(expectedStatus, status); diff != "" {
				t.Errorf("Status mismatch (-want +got):\n%s", diff)
			}

			ctx := context.Background()
			handle, err := executor.Start(ctx, tc.input, tc.options)

			if tc.planError != nil {
				if err == nil {
					t.Fatal("Expected error from Start, got nil")
				}
				if !strings.Contains(err.Error(), tc.expectedError) {
					t.Errorf("Expected error containing %q, got %q", tc.expectedError, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error from Start: %v", err)
			}

			result, err := handle.Wait(ctx)
			if err != nil {
				t.Fatalf("Unexpected error from Wait: %v", err)
			}

			if tc.expectSuccess && result.Error != nil {
				t.Errorf("Expected success, got error: %v", result.Error)
			}
			if !tc.expectSuccess && result.Error == nil {
				t.Error("Expected error, got success")
			}
			if result.ImageTag != tc.expectedImageTag {
				t.Errorf("ImageTag = %q, want %q", result.ImageTag, tc.expectedImageTag)
			}

			commands := cmdExecutor.GetCommands()
			if len(tc.expectedCommands) > 0 {
				if diff := cmp.Diff(tc.expectedCommands, commands, cmp.Comparer(func(e1 error, e2 error) bool {
					if e1 == nil || e2 == nil {
						return e1 == e2
					}
					return e1.Error() == e2.Error()
				})); diff != "" {
					t.Errorf("Command mismatch (-want +got):\n%s", diff)
				}
			}

			// The Dockerfile and logs must land in the store even when
			// the build failed.
			if tc.verifyAssets {
				store := tc.options.Resources.AssetStore
				target := tc.input.Definition.Target()
				if got := readAsset(t, store, provision.DockerfileAsset.For(target)); got != tc.plan.Dockerfile {
					t.Errorf("stored Dockerfile = %q, want %q", got, tc.plan.Dockerfile)
				}
				if _, err := store.Reader(ctx, provision.LogsAsset.For(target)); err != nil {
					t.Errorf("stored logs missing: %v", err)
				}
			}

			closeCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := executor.Close(closeCtx); err != nil {
				t.Errorf("Unexpected error from Close: %v", err)
			}
		})
	}
}

func TestBuildExecutorConcurrency(t *testing.T) {
	maxParallel := 2
	cmdExecutor := NewMockCommandExecutor()

	var active, maxActive int32
	var mu sync.Mutex
	cmdExecutor.SetExecuteFunc(func(ctx context.Context, opts CommandOptions, name string, args ...string) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	executor, err := NewBuildExecutor(BuildExecutorConfig{
		Planner: &mockBuildPlanner{
			plan: &BuildPlan{Dockerfile: "FROM debian:bookworm-slim"},
		},
		CommandExecutor: cmdExecutor,
		MaxParallel:     maxParallel,
	})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	numBuilds := 5
	handles := make([]build.Handle, numBuilds)
	ctx := context.Background()
	for i := range numBuilds {
		input := provision.Input{
			Definition: provision.Definition{Name: fmt.Sprintf("runtime-%d", i), Python: "3.11.9"},
		}
		handle, err := executor.Start(ctx, input, build.Options{BuildID: fmt.Sprintf("build-%d", i)})
		if err != nil {
			t.Fatalf("Failed to start build %d: %v", i, err)
		}
		handles[i] = handle
	}
	for i, handle := range handles {
		result, err := handle.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait for build %d: %v", i, err)
		}
		if result.Error != nil {
			t.Errorf("Build %d failed: %v", i, result.Error)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive > int32(maxParallel) {
		t.Errorf("Observed %d concurrent builds, capacity is %d", maxActive, maxParallel)
	}
}

func TestBuildExecutorCloseDetachedPolicy(t *testing.T) {
	cmdExecutor := NewMockCommandExecutor()
	release := make(chan struct{})
	cmdExecutor.SetExecuteFunc(func(ctx context.Context, opts CommandOptions, name string, args ...string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	executor, err := NewBuildExecutor(BuildExecutorConfig{
		Planner:         &mockBuildPlanner{plan: &BuildPlan{Dockerfile: "FROM debian:bookworm-slim"}},
		CommandExecutor: cmdExecutor,
		MaxParallel:     1,
	})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	ctx := context.Background()
	input := provision.Input{Definition: provision.Definition{Name: "runtime", Python: "3.11.9"}}
	handle, err := executor.Start(ctx, input, build.Options{
		BuildID:      "detached-build",
		CancelPolicy: build.CancelDetached,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Close must not cancel a detached build; release it so Close can
	// drain within its deadline.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := executor.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	result, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Error != nil {
		t.Errorf("Detached build failed: %v", result.Error)
	}
}
