package images

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/catalog"
	"github.com/opst/gbdxkit/pkg/idaho"
	"github.com/youta-t/flarc"
)

type Flags struct {
	BBox string `flag:"bbox" metavar:"W,S,E,N" help:"Find images only in this bounding box. Default: whole of the strip."`
}

const ARG_CATALOG_ID = "CATALOG_ID"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Find IDAHO images of a strip.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_CATALOG_ID, Required: true,
				Help: "Catalog id of the strip.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Find IDAHO images of a strip, and print them grouped by part and color interpretation.
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
	catid := cl.Args()[ARG_CATALOG_ID][0]
	client := idaho.New(sess, idaho.WithLogger(logger))

	var records []catalog.Record
	if b := cl.Flags().BBox; b != "" {
		bbox, err := common.ParseBBox(b)
		if err != nil {
			return fmt.Errorf("%w: --bbox: %w", flarc.ErrUsage, err)
		}
		aoi, err := bbox.WKT()
		if err != nil {
			return err
		}
		if records, err = client.ImagesByCatalogIDAndAOI(ctx, catid, aoi); err != nil {
			return err
		}
	} else {
		var err error
		if records, err = client.ImagesByCatalogID(ctx, catid); err != nil {
			return err
		}
	}

	desc, ok := idaho.Describe(records)[catid]
	if !ok {
		return fmt.Errorf("%w: catalog id %s", idaho.ErrNoImage, catid)
	}
	enc := json.NewEncoder(cl.Stdout())
	enc.SetIndent("", "    ")
	return enc.Encode(desc)
}
