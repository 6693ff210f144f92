package cancel

import (
	"context"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/workflows"
	"github.com/youta-t/flarc"
)

const ARG_WORKFLOW_ID = "WORKFLOW_ID"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Cancel a workflow.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_WORKFLOW_ID, Required: true, Repeatable: true,
				Help: "Id of the workflow to be canceled.",
			},
		},
		common.NewTask(Task),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	sess *auth.Session,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	client := workflows.New(sess, workflows.WithLogger(logger))
	for _, id := range cl.Args()[ARG_WORKFLOW_ID] {
		if err := client.Cancel(ctx, id); err != nil {
			return err
		}
		logger.Printf("workflow %s is canceled", id)
	}
	return nil
}
