// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// DockerClient is the slice of the Docker API the verifier uses,
// satisfied by *client.Client.
type DockerClient interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ DockerClient = (*client.Client)(nil)

// NewClient connects to the local Docker daemon from the environment.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	return cli, errors.Wrap(err, "creating docker client")
}

type runResult struct {
	ExitCode int
	Output   string
}

// run executes cmd in a throwaway container of the image and captures
// the combined output. Networking is disabled; every check works
// against what the image already contains.
func (v *Verifier) run(ctx context.Context, imageRef string, cmd []string) (*runResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.runTimeout)
	defer cancel()
	createResp, err := v.client.ContainerCreate(ctx, &container.Config{
		Image:           imageRef,
		Cmd:             cmd,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}, nil, nil, nil, "")
	if err != nil {
		return nil, errors.Wrap(err, "creating container")
	}
	id := createResp.ID
	defer func() {
		_ = v.client.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}()
	attach, err := v.client.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "attaching to container")
	}
	defer attach.Close()
	var output strings.Builder
	outputDone := make(chan error, 1)
	go func() {
		// Frames demux sequentially so one sink serves both streams.
		_, err := stdcopy.StdCopy(&output, &output, attach.Reader)
		outputDone <- err
	}()
	if err := v.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, errors.Wrap(err, "starting container")
	}
	waitCh, errCh := v.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	result := &runResult{}
	var exited bool
	select {
	case status := <-waitCh:
		result.ExitCode = int(status.StatusCode)
		exited = true
	case err := <-errCh:
		// An expired context surfaces here too; that is the timeout path.
		if err != nil && ctx.Err() == nil {
			return nil, errors.Wrap(err, "waiting for container")
		}
	case <-ctx.Done():
	}
	if !exited && ctx.Err() != nil {
		// The kill closes the attach stream, releasing the copier.
		_ = v.client.ContainerKill(context.Background(), id, "KILL")
		<-outputDone
		return nil, errors.Errorf("command %q timed out after %s", strings.Join(cmd, " "), v.runTimeout)
	}
	<-outputDone
	result.Output = output.String()
	return result, nil
}
