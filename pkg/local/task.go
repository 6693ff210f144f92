// Package local runs a task definition on a local container runtime, not on the platform.
//
// Ports of the task are translated to the container:
//
// - directory inputs are bind-mounted at /mnt/work/input/<port>,
//
// - string inputs are passed as environment variables task-input-port-<port>,
//
// - directory outputs are bind-mounted at /mnt/work/output/<port>.
// Unset ones get a new directory under the output root.
//
// After the container stops, /mnt/work/status.json and /mnt/work/output/ports.json
// are read out of the container, to set status of the task and string outputs.
package local

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/mattn/go-shellwords"
	"github.com/opst/gbdxkit/pkg/ports"
	"github.com/opst/gbdxkit/pkg/tasks"
	kpath "github.com/opst/gbdxkit/pkg/utils/path"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ErrConfiguration is the root of errors caused before any container starts.
var ErrConfiguration = errors.New("invalid local task configuration")

// Task is a task definition bound to a local container runtime.
type Task struct {
	def     tasks.Definition
	image   name.Reference
	command []string

	inputs  *ports.List
	outputs *ports.List

	// node is t in workflow graphs.
	node    *tasks.Task
	sources map[string]OutputRef

	runtime    Runtime
	outputRoot string
	workdir    string
	memory     int64
	logger     *log.Logger

	status      Artifact[Status]
	portsResult Artifact[map[string]string]
	exitCode    *int64
}

type Option func(*Task) (*Task, error)

// WithRuntime sets the container runtime. It is required to Run.
func WithRuntime(rt Runtime) Option {
	return func(t *Task) (*Task, error) {
		t.runtime = rt
		return t, nil
	}
}

// WithOutputRoot sets the root directory where unset directory outputs are created.
//
// Default: "gbdx-local" in the temporary directory.
func WithOutputRoot(dir string) Option {
	return func(t *Task) (*Task, error) {
		t.outputRoot = dir
		return t, nil
	}
}

// WithWorkdir sets the directory relative input paths are resolved from.
//
// Default: the current working directory.
func WithWorkdir(dir string) Option {
	return func(t *Task) (*Task, error) {
		t.workdir = dir
		return t, nil
	}
}

func WithLogger(l *log.Logger) Option {
	return func(t *Task) (*Task, error) {
		t.logger = l
		return t, nil
	}
}

// WithMemoryLimit limits memory of the container, in quantity notation like "512Mi" or "2G".
func WithMemoryLimit(quantity string) Option {
	return func(t *Task) (*Task, error) {
		q, err := resource.ParseQuantity(quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: memory limit %q: %w", ErrConfiguration, quantity, err)
		}
		if q.Sign() <= 0 {
			return nil, fmt.Errorf("%w: memory limit should be positive: %s", ErrConfiguration, quantity)
		}
		t.memory = q.Value()
		return t, nil
	}
}

// WithCommand overrides the command of the container descriptor.
func WithCommand(command string) Option {
	return func(t *Task) (*Task, error) {
		cmd, err := splitCommand(command)
		if err != nil {
			return nil, err
		}
		t.command = cmd
		return t, nil
	}
}

// New binds def to a local runtime.
//
// def should have exactly one container descriptor, which is a Docker container.
// Otherwise, it returns an error wrapping ErrConfiguration (and tasks.ErrInvalidDefinition).
func New(def tasks.Definition, options ...Option) (*Task, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	cd, ref, err := def.DockerContainer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	cmd, err := splitCommand(cd.Command)
	if err != nil {
		return nil, err
	}

	in, err := ports.NewInputs(def.InputPortDescriptors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	out, err := ports.NewOutputs(def.OutputPortDescriptors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	node, err := tasks.NewTask(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	t := &Task{
		def:     def,
		image:   ref,
		command: cmd,
		inputs:  in,
		outputs: out,
		node:    node,
		sources: map[string]OutputRef{},
		logger:  log.Default(),
	}
	for _, o := range options {
		if t, err = o(t); err != nil {
			return nil, err
		}
	}

	if t.outputRoot == "" {
		t.outputRoot = defaultOutputRoot()
	}
	if t.outputRoot, err = kpath.Resolve(t.outputRoot); err != nil {
		return nil, fmt.Errorf("%w: output root: %w", ErrConfiguration, err)
	}
	if t.workdir == "" {
		t.workdir = "."
	}
	if t.workdir, err = kpath.Resolve(t.workdir); err != nil {
		return nil, fmt.Errorf("%w: workdir: %w", ErrConfiguration, err)
	}
	return t, nil
}

func defaultOutputRoot() string {
	return filepath.Join(os.TempDir(), "gbdx-local")
}

func splitCommand(command string) ([]string, error) {
	if command == "" {
		return nil, nil
	}
	cmd, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("%w: command %q: %w", ErrConfiguration, command, err)
	}
	return cmd, nil
}

// Name identifies the task in a Workflow, like "<type>_<random>".
func (t *Task) Name() string {
	return t.node.Name
}

// Type is the name of task type.
func (t *Task) Type() string {
	return t.def.Name
}

// Image is the reference of container image.
func (t *Task) Image() string {
	return t.image.Name()
}

// Command is the command override. nil means the default of the image.
func (t *Task) Command() []string {
	return append([]string(nil), t.command...)
}

func (t *Task) Inputs() *ports.List {
	return t.inputs
}

func (t *Task) Outputs() *ports.List {
	return t.outputs
}

// Status is the status reported by the last run. It is nil before any run,
// or when the last run reports no valid status.
func (t *Task) Status() *Status {
	if !t.status.Ok() {
		return nil
	}
	s := t.status.Value
	return &s
}

// Success is true when the last run reports "success".
func (t *Task) Success() bool {
	return t.Status().Success()
}

// Reason is the reason reported by the last run, or NoStatusReason.
func (t *Task) Reason() string {
	if s := t.Status(); s != nil {
		return s.Reason
	}
	return NoStatusReason
}

// StatusArtifact tells how status.json is found in the last run.
func (t *Task) StatusArtifact() Artifact[Status] {
	return t.status
}

// PortsArtifact tells how ports.json is found in the last run.
func (t *Task) PortsArtifact() Artifact[map[string]string] {
	return t.portsResult
}

// ExitCode is the exit code of the container in the last run.
func (t *Task) ExitCode() (int64, bool) {
	if t.exitCode == nil {
		return 0, false
	}
	return *t.exitCode, true
}
