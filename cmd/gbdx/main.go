package main

import (
	"context"
	"os"
	"os/signal"
	"path"

	subcatalog "github.com/opst/gbdxkit/cmd/gbdx/subcommands/catalog"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	subidaho "github.com/opst/gbdxkit/cmd/gbdx/subcommands/idaho"
	subinit "github.com/opst/gbdxkit/cmd/gbdx/subcommands/init"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/logger"
	subtask "github.com/opst/gbdxkit/cmd/gbdx/subcommands/task"
	subver "github.com/opst/gbdxkit/cmd/gbdx/subcommands/version"
	subworkflow "github.com/opst/gbdxkit/cmd/gbdx/subcommands/workflow"
	"github.com/opst/gbdxkit/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	logger := logger.For(os.Stderr, path.Base(os.Args[0]))

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	cf := try.To(common.Flags(".")).OrFatal(logger)
	init := try.To(subinit.New()).OrFatal(logger)
	task := try.To(subtask.New()).OrFatal(logger)
	workflow := try.To(subworkflow.New()).OrFatal(logger)
	catalog := try.To(subcatalog.New()).OrFatal(logger)
	idaho := try.To(subidaho.New()).OrFatal(logger)
	version := try.To(subver.New()).OrFatal(logger)

	gbdx := try.To(
		flarc.NewCommandGroup(
			"Commandline interface of the satellite imagery platform",
			cf,
			flarc.WithSubcommand("init", init),
			flarc.WithSubcommand("task", task),
			flarc.WithSubcommand("workflow", workflow),
			flarc.WithSubcommand("catalog", catalog),
			flarc.WithSubcommand("idaho", idaho),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, gbdx, flarc.WithHelp(true)))
}
