package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opst/gbdxkit/pkg/ports"
)

// ErrInvalidWiring is returned when ports of tasks are wired inconsistently.
var ErrInvalidWiring = errors.New("invalid task wiring")

// OutputRef points an output port of a task. Inputs connected to it take the output as their value.
type OutputRef struct {
	Task string
	Port string
	kind ports.Kind
}

// Source is the notation of the reference in workflow documents.
func (r OutputRef) Source() string {
	return r.Task + ":" + r.Port
}

// Task is a task of the type Definition, to be put into a Workflow.
type Task struct {
	Name          string
	Impersonation bool
	Timeout       time.Duration

	def     Definition
	inputs  *ports.List
	outputs *ports.List

	sources map[string]OutputRef
	persist map[string]string
}

type TaskOption func(*Task) *Task

// WithName overrides the generated task name.
func WithName(name string) TaskOption {
	return func(t *Task) *Task {
		t.Name = name
		return t
	}
}

func WithImpersonation() TaskOption {
	return func(t *Task) *Task {
		t.Impersonation = true
		return t
	}
}

func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) *Task {
		t.Timeout = d
		return t
	}
}

// NewTask creates a Task of the type def.
//
// Unless WithName is given, name of the task is "<type>_<random>".
func NewTask(def Definition, options ...TaskOption) (*Task, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	in, err := ports.NewInputs(def.InputPortDescriptors)
	if err != nil {
		return nil, err
	}
	out, err := ports.NewOutputs(def.OutputPortDescriptors)
	if err != nil {
		return nil, err
	}

	t := &Task{
		Name:    def.Name + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Timeout: time.Duration(def.Properties.Timeout) * time.Second,
		def:     def,
		inputs:  in,
		outputs: out,
		sources: map[string]OutputRef{},
		persist: map[string]string{},
	}
	for _, o := range options {
		t = o(t)
	}
	return t, nil
}

// Type is the name of task type.
func (t *Task) Type() string {
	return t.def.Name
}

func (t *Task) Definition() Definition {
	return t.def
}

func (t *Task) Inputs() *ports.List {
	return t.inputs
}

func (t *Task) Outputs() *ports.List {
	return t.outputs
}

// Output refers an output port of t.
func (t *Task) Output(port string) (OutputRef, error) {
	p, err := t.outputs.Get(port)
	if err != nil {
		return OutputRef{}, err
	}
	return OutputRef{Task: t.Name, Port: port, kind: p.Kind()}, nil
}

// Connect feeds the input port of t from ref.
//
// An input cannot be connected and have a value at the same time;
// connecting clears the value.
func (t *Task) Connect(input string, ref OutputRef) error {
	p, err := t.inputs.Get(input)
	if err != nil {
		return err
	}
	if ref.Task == t.Name {
		return fmt.Errorf("%w: %s:%s is connected to its own output", ErrInvalidWiring, t.Name, input)
	}
	if ref.kind != "" && ref.kind != p.Kind() {
		return fmt.Errorf(
			"%w: %s:%s is %s, but %s is %s",
			ErrInvalidWiring, t.Name, input, p.Kind(), ref.Source(), ref.kind,
		)
	}
	if err := p.Set(ports.Unset()); err != nil {
		return err
	}
	t.sources[input] = ref
	return nil
}

// Persist marks the output port to be saved after the workflow completes.
//
// Empty location means the default location of the platform.
func (t *Task) Persist(output string, location string) error {
	if _, err := t.outputs.Get(output); err != nil {
		return err
	}
	t.persist[output] = location
	return nil
}

// Sources returns connected inputs.
func (t *Task) Sources() map[string]OutputRef {
	ret := make(map[string]OutputRef, len(t.sources))
	for k, v := range t.sources {
		ret[k] = v
	}
	return ret
}

// Document builds the workflow document of this task.
func (t *Task) Document() (TaskDocument, error) {
	doc := TaskDocument{
		Name:                 t.Name,
		TaskType:             t.def.Name,
		ImpersonationAllowed: t.Impersonation,
		Inputs:               []InputDocument{},
		Outputs:              []OutputDocument{},
	}
	if 0 < t.Timeout {
		doc.Timeout = int(t.Timeout / time.Second)
	}
	for _, cd := range t.def.ContainerDescriptors {
		if cd.Properties.Domain == "" {
			continue
		}
		doc.ContainerDescriptors = append(doc.ContainerDescriptors, ContainerDocument{
			Properties: ContainerProperties{Domain: cd.Properties.Domain},
		})
	}

	var missing []string
	for _, p := range t.inputs.Ports() {
		if ref, ok := t.sources[p.Name()]; ok {
			doc.Inputs = append(doc.Inputs, InputDocument{Name: p.Name(), Source: ref.Source()})
			continue
		}
		v := p.Value()
		if !v.IsSet() {
			if p.Required() {
				missing = append(missing, p.Name())
			}
			continue
		}
		s, _ := v.Text()
		if path, ok := v.Path(); ok {
			s = path
		}
		doc.Inputs = append(doc.Inputs, InputDocument{Name: p.Name(), Value: s})
	}
	if 0 < len(missing) {
		return TaskDocument{}, fmt.Errorf(
			"%w: %s: required inputs are not set: %s",
			ports.ErrConfiguration, t.Name, strings.Join(missing, ", "),
		)
	}

	for _, p := range t.outputs.Ports() {
		od := OutputDocument{Name: p.Name()}
		if loc, ok := t.persist[p.Name()]; ok {
			od.Persist = true
			od.PersistLocation = loc
		}
		doc.Outputs = append(doc.Outputs, od)
	}
	return doc, nil
}

// TaskDocument is a task in workflow documents.
type TaskDocument struct {
	Name                 string              `json:"name"`
	TaskType             string              `json:"taskType"`
	ImpersonationAllowed bool                `json:"impersonation_allowed"`
	Timeout              int                 `json:"timeout,omitempty"`
	Inputs               []InputDocument     `json:"inputs"`
	Outputs              []OutputDocument    `json:"outputs"`
	ContainerDescriptors []ContainerDocument `json:"containerDescriptors,omitempty"`
}

type InputDocument struct {
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
	Source string `json:"source,omitempty"`
}

type OutputDocument struct {
	Name            string `json:"name"`
	Persist         bool   `json:"persist,omitempty"`
	PersistLocation string `json:"persistLocation,omitempty"`
}

type ContainerDocument struct {
	Properties ContainerProperties `json:"properties"`
}
