// Package docker implements local.Runtime with a Docker Engine.
package docker

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	xe "github.com/opst/gbdxkit/pkg/errors"
	"github.com/opst/gbdxkit/pkg/local"
)

// Engine is the subset of the Docker client which the runtime uses.
type Engine interface {
	ContainerCreate(
		ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(
		ctx context.Context, containerID string, condition container.WaitCondition,
	) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	CopyFromContainer(
		ctx context.Context, containerID string, srcPath string,
	) (io.ReadCloser, container.PathStat, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

type Runtime struct {
	engine Engine
	logger *log.Logger
	close  func() error
}

var _ local.Runtime = &Runtime{}

type Option func(*Runtime) *Runtime

func WithLogger(l *log.Logger) Option {
	return func(r *Runtime) *Runtime {
		r.logger = l
		return r
	}
}

// New connects to the Docker Engine configured by environment variables
// (DOCKER_HOST, DOCKER_API_VERSION, DOCKER_CERT_PATH, DOCKER_TLS_VERIFY).
func New(options ...Option) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, xe.WrapWithNote("connect docker", err)
	}
	r := WithEngine(cli, options...)
	r.close = cli.Close
	return r, nil
}

// WithEngine builds a runtime on an existing engine client.
func WithEngine(engine Engine, options ...Option) *Runtime {
	r := &Runtime{engine: engine, logger: log.Default()}
	for _, o := range options {
		r = o(r)
	}
	return r
}

// Close releases the connection to the Docker Engine.
func (r *Runtime) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

func (r *Runtime) Create(ctx context.Context, spec local.ContainerSpec) (string, error) {
	config := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostConfig := &container.HostConfig{
		Mounts: make([]mount.Mount, 0, len(spec.Mounts)),
		Resources: container.Resources{
			Memory: spec.MemoryLimit,
		},
	}
	for _, m := range spec.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	resp, err := r.engine.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if errdefs.IsNotFound(err) {
		r.logger.Printf("pulling image %s", spec.Image)
		if err := r.pull(ctx, spec.Image); err != nil {
			return "", err
		}
		resp, err = r.engine.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	}
	if err != nil {
		return "", xe.WrapWithNote(fmt.Sprintf("create %s", spec.Name), err)
	}
	for _, w := range resp.Warnings {
		r.logger.Printf("docker: %s", w)
	}
	return resp.ID, nil
}

func (r *Runtime) pull(ctx context.Context, ref string) error {
	rc, err := r.engine.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return xe.WrapWithNote(fmt.Sprintf("pull %s", ref), err)
	}
	defer rc.Close()
	// pull completes when the progress stream ends.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return xe.WrapWithNote(fmt.Sprintf("pull %s", ref), err)
	}
	return nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	return xe.Wrap(r.engine.ContainerStart(ctx, id, container.StartOptions{}))
}

func (r *Runtime) Wait(ctx context.Context, id string) (int64, error) {
	chResp, chErr := r.engine.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case resp := <-chResp:
		if resp.Error != nil && resp.Error.Message != "" {
			return resp.StatusCode, fmt.Errorf("wait %s: %s", id, resp.Error.Message)
		}
		return resp.StatusCode, nil
	case err := <-chErr:
		return 0, xe.Wrap(err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Logs returns stdout and stderr of the container, demultiplexed.
func (r *Runtime) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	rc, err := r.engine.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, xe.Wrap(err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer rc.Close()
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (r *Runtime) CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error) {
	rc, _, err := r.engine.CopyFromContainer(ctx, id, path)
	if errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s: %w", local.ErrNotFound, path, err)
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return rc, nil
}

func (r *Runtime) Remove(ctx context.Context, id string) error {
	err := r.engine.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if errdefs.IsNotFound(err) {
		return nil
	}
	return xe.Wrap(err)
}
