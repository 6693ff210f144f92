package local

import (
	"context"
	"errors"
	"io"
)

// Layout of the container filesystem, shared by all local tasks.
const (
	InputRoot  = "/mnt/work/input"
	OutputRoot = "/mnt/work/output"
	StatusFile = "/mnt/work/status.json"
	PortsFile  = "/mnt/work/output/ports.json"
)

// InputEnvPrefix prefixes names of environment variables carrying string inputs.
const InputEnvPrefix = "task-input-port-"

// ErrNotFound is returned by Runtime.CopyFrom when the path does not exist in the container.
var ErrNotFound = errors.New("not found in container")

// Mount is a bind mount from the host into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec is what a Runtime needs to create a container.
type ContainerSpec struct {
	Name  string
	Image string

	// Command overrides the entrypoint arguments of the image. nil means the image default.
	Command []string

	// Env is a list of "KEY=VALUE".
	Env    []string
	Mounts []Mount
	Labels map[string]string

	// MemoryLimit in bytes. Zero means no limit.
	MemoryLimit int64
}

// Runtime is a container runtime which local tasks run on.
type Runtime interface {
	// Create creates a container and returns its id. The image is pulled if needed.
	Create(ctx context.Context, spec ContainerSpec) (string, error)

	Start(ctx context.Context, id string) error

	// Wait blocks until the container stops, and returns its exit code.
	Wait(ctx context.Context, id string) (int64, error)

	// Logs returns stdout and stderr of the container, combined into one stream.
	Logs(ctx context.Context, id string) (io.ReadCloser, error)

	// CopyFrom returns a tar stream of path in the container.
	//
	// If path does not exist, it returns an error wrapping ErrNotFound.
	CopyFrom(ctx context.Context, id string, path string) (io.ReadCloser, error)

	// Remove removes the container, even if it is running.
	Remove(ctx context.Context, id string) error
}
