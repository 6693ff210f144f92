// Package workflows is a client of the workflow-execution service and its task registry.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/opst/gbdxkit/pkg/api/rest"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/tasks"
	"github.com/opst/gbdxkit/pkg/utils/retry"
)

var ErrWorkflowFailed = errors.New("workflow is not succeeded")

const (
	StateComplete = "complete"

	EventSucceeded = "succeeded"
	EventFailed    = "failed"
	EventCanceled  = "canceled"
)

// State is the state of a workflow or a task, like {"state": "running", "event": "started"}.
type State struct {
	State string `json:"state"`
	Event string `json:"event"`
}

func (s State) Complete() bool {
	return strings.EqualFold(s.State, StateComplete)
}

func (s State) Succeeded() bool {
	return s.Complete() && strings.EqualFold(s.Event, EventSucceeded)
}

func (s State) String() string {
	if s.Event == "" {
		return s.State
	}
	return s.State + "/" + s.Event
}

type TaskState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"taskType"`
	State State  `json:"state"`
	Note  string `json:"note,omitempty"`
}

// Workflow is a workflow launched in the service.
type Workflow struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner,omitempty"`
	SubmittedAt string      `json:"submitted_time,omitempty"`
	State       State       `json:"state"`
	Tasks       []TaskState `json:"tasks,omitempty"`
}

// Event is a state transition of a task in a workflow.
type Event struct {
	Task      string `json:"task"`
	TaskID    string `json:"task_id"`
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	Event     string `json:"event"`
	Note      string `json:"note,omitempty"`
}

type Client struct {
	rest   *rest.Client
	logger *log.Logger
}

type Option func(*Client) *Client

func WithLogger(l *log.Logger) Option {
	return func(c *Client) *Client {
		c.logger = l
		return c
	}
}

// New creates a workflow client on the session.
func New(sess *auth.Session, options ...Option) *Client {
	return NewWithHTTPClient(sess.Profile().ApiRoot, sess.Client(), options...)
}

// NewWithHTTPClient creates a workflow client for the API root.
func NewWithHTTPClient(apiRoot string, hc *http.Client, options ...Option) *Client {
	c := &Client{rest: rest.New(apiRoot, hc), logger: log.Default()}
	for _, o := range options {
		c = o(c)
	}
	return c
}

// Describe fetches a task definition from the task registry.
func (c *Client) Describe(ctx context.Context, taskType string) (tasks.Definition, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, c.rest.URL("workflows/v1/tasks", taskType), nil)
	if err != nil {
		return tasks.Definition{}, err
	}
	def := tasks.Definition{}
	if err := rest.UnmarshalJSON(resp, &def, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("task %s is not found in the registry", taskType),
		rest.Status5xx: "task registry is in trouble",
	}); err != nil {
		return tasks.Definition{}, err
	}
	return def, nil
}

// Launch submits the workflow, and returns the id of the launched workflow.
func (c *Client) Launch(ctx context.Context, wf *tasks.Workflow) (string, error) {
	doc, err := wf.Document()
	if err != nil {
		return "", err
	}
	return c.LaunchDocument(ctx, doc)
}

// LaunchDocument submits a workflow document as is.
func (c *Client) LaunchDocument(ctx context.Context, doc tasks.Document) (string, error) {
	resp, err := c.rest.Do(ctx, http.MethodPost, c.rest.URL("workflows/v1/workflows"), doc)
	if err != nil {
		return "", err
	}
	launched := Workflow{}
	if err := rest.UnmarshalJSON(resp, &launched, rest.MessageFor{
		rest.Status4xx: "workflow is rejected",
		rest.Status5xx: "workflow service is in trouble",
	}); err != nil {
		return "", err
	}
	if launched.ID == "" {
		return "", rest.NewCuiError("workflow service returned no workflow id")
	}
	c.logger.Printf("workflow %s (%s) is launched", launched.ID, doc.Name)
	return launched.ID, nil
}

// Get fetches the workflow.
func (c *Client) Get(ctx context.Context, id string) (Workflow, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, c.rest.URL("workflows/v1/workflows", id), nil)
	if err != nil {
		return Workflow{}, err
	}
	wf := Workflow{}
	if err := rest.UnmarshalJSON(resp, &wf, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("workflow %s is not found", id),
		rest.Status5xx: "workflow service is in trouble",
	}); err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

// Status is the current state of the workflow.
func (c *Client) Status(ctx context.Context, id string) (State, error) {
	wf, err := c.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	return wf.State, nil
}

// Events lists state transitions of tasks in the workflow.
func (c *Client) Events(ctx context.Context, id string) ([]Event, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, c.rest.URL("workflows/v1/workflows", id, "events"), nil)
	if err != nil {
		return nil, err
	}
	body := struct {
		Events []Event `json:"Events"`
	}{}
	if err := rest.UnmarshalJSON(resp, &body, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("workflow %s is not found", id),
		rest.Status5xx: "workflow service is in trouble",
	}); err != nil {
		return nil, err
	}
	return body.Events, nil
}

// Cancel requests to stop the workflow.
func (c *Client) Cancel(ctx context.Context, id string) error {
	resp, err := c.rest.Do(ctx, http.MethodPost, c.rest.URL("workflows/v1/workflows", id, "cancel"), nil)
	if err != nil {
		return err
	}
	return rest.Discard(resp, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("workflow %s cannot be canceled", id),
		rest.Status5xx: "workflow service is in trouble",
	})
}

// DefaultBackoff polls from every 5 seconds, up to every minute.
func DefaultBackoff() retry.Backoff {
	return retry.ExponentialBackoff(5*time.Second, 1.5, time.Minute)
}

// Wait polls the workflow until it completes, or ctx is done.
//
// It returns the last state. If the workflow completes without success,
// the error wraps ErrWorkflowFailed.
func (c *Client) Wait(ctx context.Context, id string, backoff retry.Backoff) (State, error) {
	var last State
	state, err := retry.Blocking(ctx, backoff, func() (State, error) {
		s, err := c.Status(ctx, id)
		if err != nil {
			return s, err
		}
		if s != last {
			c.logger.Printf("workflow %s: %s", id, s)
			last = s
		}
		if !s.Complete() {
			return s, retry.ErrRetry
		}
		return s, nil
	})
	if err != nil {
		return state, err
	}
	if !state.Succeeded() {
		return state, fmt.Errorf("%w: %s: %s", ErrWorkflowFailed, id, state)
	}
	return state, nil
}
