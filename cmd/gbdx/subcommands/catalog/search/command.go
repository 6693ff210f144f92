package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/catalog"
	kflag "github.com/opst/gbdxkit/pkg/commandline/flag"
	"github.com/opst/gbdxkit/pkg/idaho"
	"github.com/youta-t/flarc"
)

type Flags struct {
	WKT    string          `flag:"wkt" metavar:"WKT" help:"Area to search, in WKT."`
	BBox   string          `flag:"bbox" metavar:"W,S,E,N" help:"Area to search, as a bounding box. Exclusive with --wkt."`
	Since  *kflag.Date     `flag:"since" metavar:"DATE" help:"Find records acquired at this time or later."`
	Until  *kflag.Date     `flag:"until" metavar:"DATE" help:"Find records acquired before this time."`
	Type   *kflag.Argslice `flag:"type" alias:"t" help:"Type of records to be found. Repeatable."`
	Filter *kflag.Argslice `flag:"filter" alias:"f" metavar:"EXPR" help:"Filter on properties, like \"cloudCover < 10\". Repeatable."`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Search records in the catalog.",
		Flags{
			Since:  &kflag.Date{},
			Until:  &kflag.Date{},
			Type:   &kflag.Argslice{},
			Filter: &kflag.Argslice{},
		},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Search records in the catalog, and print them as JSON.

Example
-------

Finding acquisitions over a point in 2016 with less than 10% clouds:

	{{ .Command }} --wkt "POINT (-105 39.7)" --since 2016-01-01 --until 2017-01-01 \
		--type DigitalGlobeAcquisition --filter "cloudCover < 10"

Finding IDAHO images of a strip in a box:

	{{ .Command }} --bbox -105.1,39.6,-104.9,39.8 --type IDAHOImage \
		--filter "vendorDatasetIdentifier3 = '1030010045539700'"
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

	area := flags.WKT
	if flags.BBox != "" {
		if area != "" {
			return fmt.Errorf("%w: --wkt and --bbox are exclusive", flarc.ErrUsage)
		}
		bbox, err := common.ParseBBox(flags.BBox)
		if err != nil {
			return fmt.Errorf("%w: --bbox: %w", flarc.ErrUsage, err)
		}
		if area, err = bbox.WKT(); err != nil {
			return err
		}
	} else if area != "" {
		if _, err := idaho.ParseBBox(area); err != nil {
			return fmt.Errorf("%w: --wkt: %w", flarc.ErrUsage, err)
		}
	}

	q := catalog.Query{
		SearchAreaWKT: area,
		StartDate:     flags.Since.Time(),
		EndDate:       flags.Until.Time(),
	}
	if flags.Type != nil {
		q.Types = *flags.Type
	}
	if flags.Filter != nil {
		q.Filters = *flags.Filter
	}

	records, err := catalog.New(sess, catalog.WithLogger(logger)).Search(ctx, q)
	if err != nil {
		return err
	}
	logger.Printf("%d records found", len(records))

	enc := json.NewEncoder(cl.Stdout())
	enc.SetIndent("", "    ")
	return enc.Encode(records)
}
