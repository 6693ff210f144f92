package tiles

import (
	"context"
	"fmt"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/idaho"
	kpath "github.com/opst/gbdxkit/pkg/utils/path"
	"github.com/youta-t/flarc"
)

type Flags struct {
	BBox       string  `flag:"bbox" metavar:"W,S,E,N" help:"Bounding box to find parts of the strip in. Required."`
	Resolution float64 `flag:"resolution" metavar:"METERS" help:"Resolution of tiles. Default: native resolution."`
}

const (
	ARG_CATALOG_ID = "CATALOG_ID"
	ARG_DEST       = "DEST"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Download a tile for each part of a strip in a bounding box.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_CATALOG_ID, Required: true,
				Help: "Catalog id of the strip.",
			},
			{
				Name: ARG_DEST, Required: true,
				Help: "Directory where tiles are saved.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
For each part of the strip overlapping the bounding box, download a GeoTIFF tile
centered on the part, as "<image id>.tif" in DEST.

A part with PAN and multispectral images gives the multispectral one.

Example
-------

	{{ .Command }} --bbox -105.1,39.6,-104.9,39.8 --resolution 2 103001004F2B5500 ./tiles
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	sess *auth.Session,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	flags := cl.Flags()
	catid := cl.Args()[ARG_CATALOG_ID][0]
	dest := cl.Args()[ARG_DEST][0]

	if flags.BBox == "" {
		return fmt.Errorf("%w: --bbox is required", flarc.ErrUsage)
	}
	bbox, err := common.ParseBBox(flags.BBox)
	if err != nil {
		return fmt.Errorf("%w: --bbox: %w", flarc.ErrUsage, err)
	}
	if !kpath.IsDir(dest) {
		return fmt.Errorf("%w: %s is not a directory", flarc.ErrUsage, dest)
	}

	client := idaho.New(sess, idaho.WithLogger(logger))
	saved, err := client.DownloadTiles(ctx, catid, bbox, flags.Resolution, dest)
	for _, s := range saved {
		fmt.Fprintln(cl.Stdout(), s)
	}
	return err
}
