package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/workflows"
	"github.com/youta-t/flarc"
)

const ARG_TASK_TYPE = "TASK_TYPE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show the definition of a registered task.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_TASK_TYPE, Required: true,
				Help: "Name of the task, like AOP_Strip_Processor.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Show the definition of a task registered in the workflow service, as JSON.

The output can be given to "gbdx task run-local" to run the task on your machine.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	sess *auth.Session,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	taskType := cl.Args()[ARG_TASK_TYPE][0]

	client := workflows.New(sess, workflows.WithLogger(logger))
	def, err := client.Describe(ctx, taskType)
	if err != nil {
		return fmt.Errorf("%w: task type: %s", err, taskType)
	}

	enc := json.NewEncoder(cl.Stdout())
	enc.SetIndent("", "    ")
	return enc.Encode(def)
}
