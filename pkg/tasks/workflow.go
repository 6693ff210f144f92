package tasks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Workflow is a graph of tasks, which are connected by OutputRefs.
type Workflow struct {
	Name  string
	tasks []*Task
}

func NewWorkflow(name string, tasks ...*Task) *Workflow {
	return &Workflow{Name: name, tasks: tasks}
}

// Add appends tasks to the workflow.
func (w *Workflow) Add(tasks ...*Task) {
	w.tasks = append(w.tasks, tasks...)
}

func (w *Workflow) Tasks() []*Task {
	return append([]*Task{}, w.tasks...)
}

// Document is the workflow document to be submitted.
type Document struct {
	Name  string         `json:"name"`
	Tasks []TaskDocument `json:"tasks"`
}

// Document builds workflow document.
//
// It fails when
//
// - the workflow has no tasks,
//
// - two tasks share a name,
//
// - an input is connected to a task which is not in the workflow, or to an undeclared port,
//
// - a required input is neither set nor connected.
func (w *Workflow) Document() (Document, error) {
	if _, err := w.Order(); err != nil {
		return Document{}, err
	}

	doc := Document{Name: w.Name, Tasks: make([]TaskDocument, 0, len(w.tasks))}
	for _, t := range w.tasks {
		td, err := t.Document()
		if err != nil {
			return Document{}, err
		}
		doc.Tasks = append(doc.Tasks, td)
	}
	return doc, nil
}

// Order returns tasks sorted so that each task comes after tasks it is connected from.
// Tasks without mutual dependency keep the order they are added.
//
// It fails with ErrInvalidWiring when the workflow has no tasks, names are duplicated,
// connections point outside of the workflow, or tasks are connected circularly.
func (w *Workflow) Order() ([]*Task, error) {
	if len(w.tasks) == 0 {
		return nil, fmt.Errorf("%w: workflow %q has no tasks", ErrInvalidWiring, w.Name)
	}

	byName := make(map[string]*Task, len(w.tasks))
	for _, t := range w.tasks {
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("%w: task name %q is used twice", ErrInvalidWiring, t.Name)
		}
		byName[t.Name] = t
	}

	for _, t := range w.tasks {
		for _, input := range t.inputs.Names() {
			ref, ok := t.sources[input]
			if !ok {
				continue
			}
			src, ok := byName[ref.Task]
			if !ok {
				return nil, fmt.Errorf(
					"%w: %s:%s is connected to %s, but task %s is not in the workflow",
					ErrInvalidWiring, t.Name, input, ref.Source(), ref.Task,
				)
			}
			if !src.outputs.Has(ref.Port) {
				return nil, fmt.Errorf(
					"%w: %s:%s is connected to %s, but %s has no such output",
					ErrInvalidWiring, t.Name, input, ref.Source(), ref.Task,
				)
			}
		}
	}

	if cyc := w.cycle(byName); len(cyc) != 0 {
		return nil, fmt.Errorf(
			"%w: tasks are connected circularly: %s", ErrInvalidWiring, strings.Join(cyc, " -> "),
		)
	}

	sorted := make([]*Task, 0, len(w.tasks))
	done := map[string]bool{}
	var visit func(t *Task)
	visit = func(t *Task) {
		if done[t.Name] {
			return
		}
		done[t.Name] = true
		for _, input := range t.inputs.Names() {
			if ref, ok := t.sources[input]; ok {
				visit(byName[ref.Task])
			}
		}
		sorted = append(sorted, t)
	}
	for _, t := range w.tasks {
		visit(t)
	}
	return sorted, nil
}

// cycle returns task names forming a cycle, if any.
func (w *Workflow) cycle(byName map[string]*Task) []string {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := map[string]int{}
	var stack []string
	var found []string

	var visit func(t *Task) bool
	visit = func(t *Task) bool {
		state[t.Name] = visiting
		stack = append(stack, t.Name)
		for _, ref := range t.sources {
			up := byName[ref.Task]
			switch state[up.Name] {
			case visiting:
				for i, n := range stack {
					if n == up.Name {
						found = append(append([]string{}, stack[i:]...), up.Name)
						break
					}
				}
				return true
			case unvisited:
				if visit(up) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[t.Name] = visited
		return false
	}

	for _, t := range w.tasks {
		if state[t.Name] == unvisited && visit(t) {
			return found
		}
	}
	return nil
}

// Generate returns the workflow document in JSON.
func (w *Workflow) Generate() ([]byte, error) {
	doc, err := w.Document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
