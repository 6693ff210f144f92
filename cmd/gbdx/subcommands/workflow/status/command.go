package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/utils/retry"
	"github.com/opst/gbdxkit/pkg/workflows"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Wait   bool `flag:"wait" alias:"w" help:"Wait until the workflow completes."`
	Events bool `flag:"events" alias:"e" help:"Show events of tasks in the workflow instead."`
}

type Option struct {
	backoff func() retry.Backoff
}

// WithBackoff sets the interval of polling with --wait.
func WithBackoff(b func() retry.Backoff) func(*Option) *Option {
	return func(o *Option) *Option {
		o.backoff = b
		return o
	}
}

const ARG_WORKFLOW_ID = "WORKFLOW_ID"

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{backoff: workflows.DefaultBackoff}
	for _, o := range options {
		option = o(option)
	}

	return flarc.NewCommand(
		"Show the state of a workflow.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_WORKFLOW_ID, Required: true,
				Help: "Id of the workflow.",
			},
		},
		common.NewTask(Task(option.backoff)),
		flarc.WithDescription(`
Show the state of a workflow and its tasks, as JSON.

With --wait, it waits until the workflow completes, and then shows it.
The command fails when the workflow completes without success.

With --events, it shows events of tasks in the workflow.
`),
	)
}

func Task(backoff func() retry.Backoff) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		sess *auth.Session,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		id := cl.Args()[ARG_WORKFLOW_ID][0]
		flags := cl.Flags()
		client := workflows.New(sess, workflows.WithLogger(logger))

		enc := json.NewEncoder(cl.Stdout())
		enc.SetIndent("", "    ")

		if flags.Events {
			events, err := client.Events(ctx, id)
			if err != nil {
				return err
			}
			return enc.Encode(events)
		}

		var waitErr error
		if flags.Wait {
			_, waitErr = client.Wait(ctx, id, backoff())
			if waitErr != nil && !errors.Is(waitErr, workflows.ErrWorkflowFailed) {
				return waitErr
			}
		}
		wf, err := client.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := enc.Encode(wf); err != nil {
			return err
		}
		return waitErr
	}
}
