package local

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/opst/gbdxkit/pkg/ports"
	"github.com/opst/gbdxkit/pkg/tasks"
	kpath "github.com/opst/gbdxkit/pkg/utils/path"
)

// ErrTaskFailed is returned by Workflow.Run when a task does not report success.
var ErrTaskFailed = errors.New("local task failed")

// OutputRef points an output port of a local task.
type OutputRef struct {
	task *Task
	ref  tasks.OutputRef
}

func (r OutputRef) Task() *Task {
	return r.task
}

func (r OutputRef) Port() string {
	return r.ref.Port
}

// Output refers the output port of t, to be connected to inputs of other tasks.
func (t *Task) Output(port string) (OutputRef, error) {
	ref, err := t.node.Output(port)
	if err != nil {
		return OutputRef{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return OutputRef{task: t, ref: ref}, nil
}

// Connect feeds the input port of t from ref, when they run in a Workflow.
//
// The input is unset until the task of ref runs.
func (t *Task) Connect(input string, ref OutputRef) error {
	if err := t.node.Connect(input, ref.ref); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := t.inputs.Set(input, ports.Unset()); err != nil {
		return err
	}
	t.sources[input] = ref
	return nil
}

// feed copies values of upstream outputs into connected inputs.
func (t *Task) feed() error {
	for input, ref := range t.sources {
		v, err := ref.task.outputs.Value(ref.Port())
		if err != nil {
			return err
		}
		if err := t.inputs.Set(input, v); err != nil {
			return err
		}
	}
	return nil
}

// Workflow runs local tasks one by one, in the order of their connections.
type Workflow struct {
	Name string

	// Runtime is used for tasks which have no runtime of their own.
	Runtime Runtime

	// ScratchDir is where the temporary output root is created.
	// Empty means the default directory for temporary files.
	ScratchDir string

	Logger *log.Logger

	tasks []*Task
}

// NewWorkflow groups tasks. Empty name is replaced with a random one.
func NewWorkflow(name string, ts ...*Task) *Workflow {
	if name == "" {
		name = uuid.NewString()
	}
	return &Workflow{Name: name, Logger: log.Default(), tasks: ts}
}

func (w *Workflow) Tasks() []*Task {
	return append([]*Task{}, w.tasks...)
}

func (w *Workflow) has(t *Task) bool {
	for _, x := range w.tasks {
		if x == t {
			return true
		}
	}
	return false
}

// Order returns tasks in the order to run: each task comes after tasks it is connected from.
//
// A connection from a task not in the workflow is an error wrapping
// ErrConfiguration and tasks.ErrInvalidWiring.
func (w *Workflow) Order() ([]*Task, error) {
	nodes := make([]*tasks.Task, 0, len(w.tasks))
	byName := make(map[string]*Task, len(w.tasks))
	for _, t := range w.tasks {
		nodes = append(nodes, t.node)
		byName[t.Name()] = t
	}

	sorted, err := tasks.NewWorkflow(w.Name, nodes...).Order()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	ret := make([]*Task, 0, len(sorted))
	for _, n := range sorted {
		ret = append(ret, byName[n.Name])
	}
	return ret, nil
}

// SaveData sends the directory output of t to location, which is kept after Run.
//
// location should be an absolute path.
// When a directory exists there, it is removed and created again as an empty one.
// Otherwise, its parent directory should exist.
func (w *Workflow) SaveData(t *Task, output string, location string) error {
	if !w.has(t) {
		return fmt.Errorf("%w: task %s is not in workflow %s", ErrConfiguration, t.Name(), w.Name)
	}
	if location == "" || !filepath.IsAbs(location) {
		return fmt.Errorf("%w: save location of %s should be an absolute path: %q", ErrConfiguration, output, location)
	}
	p, err := t.outputs.Get(output)
	if err != nil {
		return err
	}
	if p.Kind() != ports.Directory {
		return fmt.Errorf("%w: output port %s is %s, not a directory", ErrConfiguration, output, p.Kind())
	}

	location = filepath.Clean(location)
	switch {
	case kpath.IsDir(location):
		if err := os.RemoveAll(location); err != nil {
			return fmt.Errorf("%w: save location of %s: %w", ErrConfiguration, output, err)
		}
	case !kpath.IsDir(filepath.Dir(location)):
		return fmt.Errorf(
			"%w: save location of %s does not exist: %s", ErrConfiguration, output, filepath.Dir(location),
		)
	}
	if err := os.Mkdir(location, os.FileMode(0777)); err != nil {
		return fmt.Errorf("%w: save location of %s: %w", ErrConfiguration, output, err)
	}
	return p.Set(ports.Dir(location))
}

// Run runs tasks in Order, under a new temporary output root.
//
// It stops at the first task which returns an error or does not succeed.
// For the latter, the error wraps ErrTaskFailed.
//
// The temporary output root is removed when Run returns.
// Outputs to be kept should be sent elsewhere with SaveData.
func (w *Workflow) Run(ctx context.Context) error {
	order, err := w.Order()
	if err != nil {
		return err
	}

	root, err := os.MkdirTemp(w.ScratchDir, "gbdx-workflow-")
	if err != nil {
		return fmt.Errorf("%w: output root: %w", ErrConfiguration, err)
	}
	defer func() {
		if err := os.RemoveAll(root); err != nil {
			w.Logger.Printf("cannot remove output root %s: %s", root, err)
		}
	}()
	w.Logger.Printf("workflow %s: output root: %s", w.Name, root)

	for _, t := range order {
		if err := t.feed(); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		if t.runtime == nil {
			t.runtime = w.Runtime
		}

		prev := t.outputRoot
		t.outputRoot = root
		err := t.Run(ctx)
		t.outputRoot = prev
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}

		if !t.Success() {
			w.Logger.Printf("task %s failed: %s", t.Name(), t.Reason())
			return fmt.Errorf("%w: %s: %s", ErrTaskFailed, t.Name(), t.Reason())
		}
		w.Logger.Printf("task %s succeeded", t.Name())
	}
	return nil
}
