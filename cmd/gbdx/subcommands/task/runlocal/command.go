package runlocal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	kflag "github.com/opst/gbdxkit/pkg/commandline/flag"
	"github.com/opst/gbdxkit/pkg/local"
	"github.com/opst/gbdxkit/pkg/local/docker"
	"github.com/opst/gbdxkit/pkg/ports"
	"github.com/opst/gbdxkit/pkg/tasks"
	"github.com/youta-t/flarc"
)

var ErrTaskFailed = local.ErrTaskFailed

type Flags struct {
	Input      *kflag.Assignments `flag:"input" alias:"i" metavar:"PORT=VALUE" help:"Value of an input port. Directory ports take a path. Repeatable."`
	Output     *kflag.Assignments `flag:"output" alias:"o" metavar:"PORT=DIR" help:"Directory for an output port. Unset ones are created under --output-root. Repeatable."`
	OutputRoot string             `flag:"output-root" metavar:"DIR" help:"Directory where new output directories are created."`
	Memory     string             `flag:"memory" alias:"m" metavar:"QUANTITY" help:"Memory limit of the container, like 512Mi or 2G."`
	Command    string             `flag:"command" help:"Command to run instead of the one in the definition."`
}

// RuntimeFactory opens a container runtime, and returns it with its closer.
type RuntimeFactory func(logger *log.Logger) (local.Runtime, func() error, error)

// Docker opens the Docker engine configured by environment variables (DOCKER_HOST etc.).
func Docker(logger *log.Logger) (local.Runtime, func() error, error) {
	rt, err := docker.New(docker.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.Close, nil
}

type Option struct {
	runtime RuntimeFactory
}

func WithRuntime(f RuntimeFactory) func(*Option) *Option {
	return func(o *Option) *Option {
		o.runtime = f
		return o
	}
}

const ARG_DEFINITION = "DEFINITION"

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{runtime: Docker}
	for _, o := range options {
		option = o(option)
	}

	return flarc.NewCommand(
		"Run a task definition on the local Docker engine.",
		Flags{
			Input:  &kflag.Assignments{},
			Output: &kflag.Assignments{},
		},
		flarc.Args{
			{
				Name: ARG_DEFINITION, Required: true,
				Help: "Path to the task definition file (json or yaml). Try `gbdx task describe` to get one.",
			},
		},
		common.NewTaskWithCommonFlag(Task(option.runtime)),
		flarc.WithDescription(`
Run a task definition on the local Docker engine, in the same way as the platform.

Directory inputs are mounted at /mnt/work/input/<port>, and string inputs are
passed as environment variables. Directory outputs are mounted at
/mnt/work/output/<port>. After the run, status and string outputs reported by
the task are printed as JSON.

Example
-------

Run a task with a directory input and a string input:

	{{ .Command }} --input image=./tiles --input threshold=0.5 mask-clouds.json

Put the output "mask" into ./out:

	{{ .Command }} -i image=./tiles -o mask=./out mask-clouds.json
`),
	)
}

// Result is the report of a local run.
type Result struct {
	TaskType string            `json:"taskType"`
	Success  bool              `json:"success"`
	Reason   string            `json:"reason"`
	ExitCode *int64            `json:"exitCode,omitempty"`
	Outputs  map[string]string `json:"outputs"`
}

func Task(newRuntime RuntimeFactory) common.TaskWithCommonFlag[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		_ common.CommonFlags,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		defPath := cl.Args()[ARG_DEFINITION][0]
		flags := cl.Flags()

		def, err := tasks.LoadDefinition(defPath)
		if err != nil {
			return fmt.Errorf("%w: %s", err, defPath)
		}

		options := []local.Option{local.WithLogger(logger)}
		if flags.OutputRoot != "" {
			options = append(options, local.WithOutputRoot(flags.OutputRoot))
		}
		if flags.Memory != "" {
			options = append(options, local.WithMemoryLimit(flags.Memory))
		}
		if flags.Command != "" {
			options = append(options, local.WithCommand(flags.Command))
		}
		task, err := local.New(def, options...)
		if err != nil {
			return fmt.Errorf("%w: %w", flarc.ErrUsage, err)
		}

		inputs, names := flags.Input.Map()
		for _, name := range names {
			if err := assign(task.Inputs(), name, inputs[name]); err != nil {
				return fmt.Errorf("%w: --input: %w", flarc.ErrUsage, err)
			}
		}
		outputs, names := flags.Output.Map()
		for _, name := range names {
			if err := task.Outputs().SetDir(name, outputs[name]); err != nil {
				return fmt.Errorf("%w: --output: %w", flarc.ErrUsage, err)
			}
		}

		rt, closeRuntime, err := newRuntime(logger)
		if err != nil {
			return fmt.Errorf("cannot connect to container runtime: %w", err)
		}
		defer closeRuntime()

		task, err = local.WithRuntime(rt)(task)
		if err != nil {
			return err
		}
		if err := task.Run(ctx); err != nil {
			return err
		}

		result := Result{
			TaskType: task.Type(),
			Success:  task.Success(),
			Reason:   task.Reason(),
			Outputs:  map[string]string{},
		}
		if code, ok := task.ExitCode(); ok {
			result.ExitCode = &code
		}
		for _, p := range task.Outputs().Ports() {
			if s, ok := p.Value().Text(); ok {
				result.Outputs[p.Name()] = s
			} else if path, ok := p.Value().Path(); ok {
				result.Outputs[p.Name()] = path
			}
		}

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("%w: %s: %s", ErrTaskFailed, task.Type(), result.Reason)
		}
		return nil
	}
}

// assign sets value to the input port, as a path for directory ports.
func assign(inputs *ports.List, name string, value string) error {
	p, err := inputs.Get(name)
	if err != nil {
		return err
	}
	if p.Kind() == ports.Directory {
		return p.Set(ports.Dir(value))
	}
	return p.Set(ports.Text(value))
}
