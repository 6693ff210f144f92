package idaho

import (
	idaho_chip "github.com/opst/gbdxkit/cmd/gbdx/subcommands/idaho/chip"
	idaho_images "github.com/opst/gbdxkit/cmd/gbdx/subcommands/idaho/images"
	idaho_tiles "github.com/opst/gbdxkit/cmd/gbdx/subcommands/idaho/tiles"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	images, err := idaho_images.New()
	if err != nil {
		return nil, err
	}
	chip, err := idaho_chip.New()
	if err != nil {
		return nil, err
	}
	tiles, err := idaho_tiles.New()
	if err != nil {
		return nil, err
	}
	return flarc.NewCommandGroup(
		"Find IDAHO images, and download chips of them.",
		struct{}{},
		flarc.WithSubcommand("images", images),
		flarc.WithSubcommand("chip", chip),
		flarc.WithSubcommand("tiles", tiles),
	)
}
