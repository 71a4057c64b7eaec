// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package docker executes runtime image builds against a local Docker
// daemon. The generated Dockerfile is fed to the daemon over stdin so
// no build context directory is required.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uecboard/keiji/internal/bufiox"
	"github.com/uecboard/keiji/internal/syncx"
	"github.com/uecboard/keiji/pkg/build"
	"github.com/uecboard/keiji/pkg/provision"
)

const defaultOutputBufferSize = 512 * 1024 // 512KB

// BuildExecutor implements build.Executor for local Docker builds using
// a planner. The built image stays in the local daemon unless
// RemoveImage is set; it is the primary build artifact.
type BuildExecutor struct {
	planner          build.Planner[*BuildPlan]
	maxParallel      int
	semaphore        chan struct{}
	dockerCmd        string
	cmdExecutor      CommandExecutor
	activeBuilds     syncx.Map[string, *localHandle]
	outputBufferSize int
	removeImage      bool
	tempDirBase      string
}

// BuildExecutorConfig contains configuration for creating a Docker build
// executor.
type BuildExecutorConfig struct {
	Planner          build.Planner[*BuildPlan]
	CommandExecutor  CommandExecutor
	MaxParallel      int    // Max number of simultaneous builds
	OutputBufferSize int    // Buffer size for output pipe, defaults to 512KB
	RemoveImage      bool   // If true, remove the built image from the daemon after export
	TempDirBase      string // Base directory for image export scratch space, if empty uses os.TempDir()
}

// NewBuildExecutor creates a new Docker build executor with configuration.
func NewBuildExecutor(config BuildExecutorConfig) (*BuildExecutor, error) {
	// Set defaults for unset config params
	planner := config.Planner
	if planner == nil {
		planner = NewBuildPlanner()
	}
	cmdExecutor := config.CommandExecutor
	if cmdExecutor == nil {
		cmdExecutor = NewRealCommandExecutor()
	}
	maxParallel := config.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	outputBufferSize := config.OutputBufferSize
	if outputBufferSize <= 0 {
		outputBufferSize = defaultOutputBufferSize
	}
	tempBase := config.TempDirBase
	if tempBase == "" {
		tempBase = os.TempDir()
	}
	// Check if docker is available
	dockerCmd := "docker"
	if _, err := cmdExecutor.LookPath(dockerCmd); err != nil {
		return nil, errors.Wrap(err, "docker command not found")
	}
	return &BuildExecutor{
		planner:          planner,
		maxParallel:      maxParallel,
		semaphore:        make(chan struct{}, maxParallel),
		dockerCmd:        dockerCmd,
		cmdExecutor:      cmdExecutor,
		activeBuilds:     syncx.Map[string, *localHandle]{},
		outputBufferSize: outputBufferSize,
		removeImage:      config.RemoveImage,
		tempDirBase:      tempBase,
	}, nil
}

// Start implements build.Executor.
func (e *BuildExecutor) Start(ctx context.Context, input provision.Input, opts build.Options) (build.Handle, error) {
	// buildID doubles as the image tag suffix and must be lowercase.
	buildID := strings.ToLower(opts.BuildID)
	if buildID == "" {
		buildID = fmt.Sprintf("keiji-build-%d", time.Now().UnixNano())
	}
	planOpts := build.PlanOptions{
		BuildEnv: opts.BuildEnv,
		Platform: opts.Platform,
	}
	planStart := time.Now()
	plan, err := e.planner.GeneratePlan(ctx, input, planOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate execution plan")
	}
	timings := build.Timings{Plan: time.Since(planStart)}
	imageTag := fmt.Sprintf("%s:%s", strings.ToLower(input.Definition.Target().Name), buildID)
	// Create build context that can be cancelled independently.
	buildCtx, cancel := context.WithCancel(context.Background())
	if opts.Timeout > 0 {
		buildCtx, cancel = context.WithTimeout(buildCtx, opts.Timeout)
	}
	// Create a buffered pipe for streaming output.
	pipe := bufiox.NewBufferedPipe(bufiox.NewLineBuffer(e.outputBufferSize))
	handle := &localHandle{
		id:           buildID,
		cancel:       cancel,
		cancelPolicy: opts.CancelPolicy,
		output:       pipe,
		resultChan:   make(chan build.Result, 1),
		status:       build.BuildStateStarting,
	}
	e.activeBuilds.Store(buildID, handle)
	// Start the build in a goroutine.
	go e.executeBuild(buildCtx, handle, plan, input.Definition.Target(), opts, imageTag, timings)
	return handle, nil
}

// Status implements build.Executor.
func (e *BuildExecutor) Status() build.ExecutorStatus {
	return build.ExecutorStatus{
		InProgress: len(e.semaphore),
		Capacity:   e.maxParallel,
		Healthy:    true,
	}
}

// Close implements build.Executor.
func (e *BuildExecutor) Close(ctx context.Context) error {
	// Cancel all active builds unless their policy detaches them.
	for handle := range e.activeBuilds.Values() {
		if handle.cancelPolicy == build.CancelDetached {
			continue
		}
		handle.cancel()
		handle.updateStatus(build.BuildStateCancelled)
	}
	// Wait for builds to finish or context timeout.
	done := make(chan struct{})
	go func() {
		for len(e.semaphore) > 0 {
			time.Sleep(100 * time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "closing executor")
	}
}

// executeBuild runs the actual Docker build process.
func (e *BuildExecutor) executeBuild(ctx context.Context, handle *localHandle, plan *BuildPlan, t provision.Target, opts build.Options, imageTag string, timings build.Timings) {
	// Ensure resources are cleaned up on exit.
	defer e.activeBuilds.Delete(handle.id)
	defer handle.output.Close()
	// Acquire semaphore slot.
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		handle.updateStatus(build.BuildStateCancelled)
		handle.setResult(build.Result{
			Error: errors.Wrap(ctx.Err(), "enqueuing build"),
		})
		return
	}
	handle.updateStatus(build.BuildStateRunning)
	// Create a buffer to capture all output for asset upload.
	outbuf := &bytes.Buffer{}
	// Create a multi-writer to stream to the handle's output and capture to the buffer.
	multiWriter := io.MultiWriter(handle.output, outbuf)
	// Build the image with the Dockerfile on stdin.
	buildArgs := []string{"buildx", "build", "-t", imageTag}
	if plan.Platform != "" {
		buildArgs = append(buildArgs, "--platform", plan.Platform)
	}
	buildArgs = append(buildArgs, "-")
	buildStart := time.Now()
	buildErr := e.cmdExecutor.Execute(ctx, CommandOptions{
		Input:  strings.NewReader(plan.Dockerfile),
		Output: multiWriter,
	}, e.dockerCmd, buildArgs...)
	timings.Build = time.Since(buildStart)
	// Upload assets to the asset store. The Dockerfile and logs are
	// uploaded even on failure; they are the debugging record.
	if opts.Resources.AssetStore != nil {
		e.uploadAssets(ctx, t, plan, opts, imageTag, outbuf.Bytes(), buildErr == nil, &timings)
	}
	// Remove the built image if configured to keep the daemon clean.
	if buildErr == nil && e.removeImage {
		if rmErr := e.cmdExecutor.Execute(ctx, CommandOptions{}, e.dockerCmd, "rmi", imageTag); rmErr != nil {
			// Log the error but don't fail the build
			log.Printf("Failed to remove Docker image %s: %v", imageTag, rmErr)
		}
	}
	handle.updateStatus(build.BuildStateCompleted)
	if buildErr != nil {
		handle.setResult(build.Result{
			Error:   errors.Wrap(buildErr, "docker build failed"),
			Timings: timings,
		})
		return
	}
	handle.setResult(build.Result{
		ImageTag: imageTag,
		Timings:  timings,
	})
}

// uploadAssets uploads build artifacts to the asset store.
func (e *BuildExecutor) uploadAssets(ctx context.Context, t provision.Target, plan *BuildPlan, opts build.Options, imageTag string, logs []byte, built bool, timings *build.Timings) {
	store := opts.Resources.AssetStore
	// Upload Dockerfile.
	if err := e.uploadContent(ctx, store, provision.DockerfileAsset.For(t), []byte(plan.Dockerfile)); err != nil {
		log.Printf("Failed to upload Dockerfile: %v", err)
	}
	// Upload build logs.
	if err := e.uploadContent(ctx, store, provision.LogsAsset.For(t), logs); err != nil {
		log.Printf("Failed to upload build logs: %v", err)
	}
	// Save and upload the image tarball if requested.
	if opts.ExportImage && built {
		exportStart := time.Now()
		scratchDir := filepath.Join(e.tempDirBase, fmt.Sprintf("keiji-build-%s", strings.ReplaceAll(imageTag, ":", "-")))
		if err := os.MkdirAll(scratchDir, 0755); err != nil {
			log.Printf("Failed to create export scratch directory: %v", err)
			return
		}
		defer os.RemoveAll(scratchDir)
		imagePath := filepath.Join(scratchDir, string(provision.ImageAsset))
		if err := e.saveImage(ctx, imageTag, imagePath); err != nil {
			log.Printf("Failed to save container image: %v", err)
		} else if err := e.uploadFile(ctx, store, provision.ImageAsset.For(t), imagePath); err != nil {
			log.Printf("Failed to upload container image: %v", err)
		}
		timings.Export = time.Since(exportStart)
	}
}

// uploadFile uploads a local file to the asset store.
func (e *BuildExecutor) uploadFile(ctx context.Context, store provision.AssetStore, asset provision.Asset, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", filePath)
	}
	defer file.Close()
	writer, err := store.Writer(ctx, asset)
	if err != nil {
		return errors.Wrap(err, "failed to get asset store writer")
	}
	defer writer.Close()
	if _, err := io.Copy(writer, file); err != nil {
		return errors.Wrap(err, "failed to upload file to asset store")
	}
	return nil
}

// uploadContent uploads content directly to the asset store.
func (e *BuildExecutor) uploadContent(ctx context.Context, store provision.AssetStore, asset provision.Asset, content []byte) error {
	writer, err := store.Writer(ctx, asset)
	if err != nil {
		return errors.Wrap(err, "failed to get asset store writer")
	}
	defer writer.Close()
	if _, err := writer.Write(content); err != nil {
		return errors.Wrap(err, "failed to write to asset store")
	}
	return nil
}

// saveImage saves the built container image as a gzipped tarball.
func (e *BuildExecutor) saveImage(ctx context.Context, imageTag, outputPath string) error {
	return e.cmdExecutor.Execute(ctx, CommandOptions{}, "sh", "-c",
		fmt.Sprintf("%s save %s | gzip > %s", e.dockerCmd, imageTag, outputPath))
}
