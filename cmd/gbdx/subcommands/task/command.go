package task

import (
	task_describe "github.com/opst/gbdxkit/cmd/gbdx/subcommands/task/describe"
	task_runlocal "github.com/opst/gbdxkit/cmd/gbdx/subcommands/task/runlocal"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	describe, err := task_describe.New()
	if err != nil {
		return nil, err
	}
	runlocal, err := task_runlocal.New()
	if err != nil {
		return nil, err
	}
	return flarc.NewCommandGroup(
		"Inspect task definitions, and run them locally.",
		struct{}{},
		flarc.WithSubcommand("describe", describe),
		flarc.WithSubcommand("run-local", runlocal),
	)
}
