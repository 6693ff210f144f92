package workflow

import (
	wf_cancel "github.com/opst/gbdxkit/cmd/gbdx/subcommands/workflow/cancel"
	wf_launch "github.com/opst/gbdxkit/cmd/gbdx/subcommands/workflow/launch"
	wf_status "github.com/opst/gbdxkit/cmd/gbdx/subcommands/workflow/status"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	launch, err := wf_launch.New()
	if err != nil {
		return nil, err
	}
	status, err := wf_status.New()
	if err != nil {
		return nil, err
	}
	cancel, err := wf_cancel.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Launch and watch workflows on the platform.",
		struct{}{},
		flarc.WithSubcommand("launch", launch),
		flarc.WithSubcommand("status", status),
		flarc.WithSubcommand("cancel", cancel),
	)
}
