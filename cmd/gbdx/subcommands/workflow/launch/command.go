package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/tasks"
	"github.com/opst/gbdxkit/pkg/utils/retry"
	"github.com/opst/gbdxkit/pkg/workflows"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Wait bool `flag:"wait" alias:"w" help:"Wait until the workflow completes."`
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

const ARG_WORKFLOW_FILE = "WORKFLOW_FILE"

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{backoff: workflows.DefaultBackoff}
	for _, o := range options {
		option = o(option)
	}

	return flarc.NewCommand(
		"Launch a workflow.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_WORKFLOW_FILE, Required: true,
				Help: "Path to the workflow document (json).",
			},
		},
		common.NewTask(Task(option.backoff)),
		flarc.WithDescription(`
Launch a workflow described in a workflow document, and print its id.

With --wait, it waits until the workflow completes. The command fails
when the workflow completes without success.
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
		path := cl.Args()[ARG_WORKFLOW_FILE][0]
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc := tasks.Document{}
		if err := json.Unmarshal(buf, &doc); err != nil {
			return fmt.Errorf("%w: %s is not a workflow document: %w", flarc.ErrUsage, path, err)
		}
		if len(doc.Tasks) == 0 {
			return fmt.Errorf("%w: %s has no tasks", flarc.ErrUsage, path)
		}

		client := workflows.New(sess, workflows.WithLogger(logger))
		id, err := client.LaunchDocument(ctx, doc)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cl.Stdout(), id); err != nil {
			return err
		}

		if !cl.Flags().Wait {
			return nil
		}
		_, err = client.Wait(ctx, id, backoff())
		return err
	}
}
