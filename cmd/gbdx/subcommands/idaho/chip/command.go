package chip

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/auth"
	kflag "github.com/opst/gbdxkit/pkg/commandline/flag"
	"github.com/opst/gbdxkit/pkg/idaho"
	kpath "github.com/opst/gbdxkit/pkg/utils/path"
	"github.com/youta-t/flarc"
)

type Flags struct {
	BBox       string        `flag:"bbox" metavar:"W,S,E,N" help:"Bounding box of the chip. Required."`
	Type       *kflag.Choice `flag:"type" alias:"t" metavar:"PS|PAN|MS" help:"Pansharpened, panchromatic or multispectral."`
	Format     *kflag.Choice `flag:"format" metavar:"TIF|PNG|JPG" help:"Image format of the chip."`
	Bands      string        `flag:"bands" metavar:"0,1,2" help:"Bands to be in the chip. Default depends on --type."`
	Resolution float64       `flag:"resolution" metavar:"METERS" help:"Resolution of the chip. Default: native resolution."`
	URL        bool          `flag:"url" help:"Print the URL of the chip instead of downloading it."`
}

const (
	ARG_CATALOG_ID = "CATALOG_ID"
	ARG_DEST       = "DEST"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Download a chip of a strip from IDAHO.",
		Flags{
			Type:   kflag.OneOf(idaho.Pansharpened, idaho.Panchromatic, idaho.Multispectral),
			Format: kflag.OneOf(idaho.FormatTIF, idaho.FormatPNG, idaho.FormatJPG),
		},
		flarc.Args{
			{
				Name: ARG_CATALOG_ID, Required: true,
				Help: "Catalog id of the strip.",
			},
			{
				Name: ARG_DEST, Required: false,
				Help: `
File where the chip is written. If "-", the chip is written to stdout.
Default: <CATALOG_ID>.<format> in the current directory.
`,
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Download a chip in the bounding box, from IDAHO images of the strip.

Example
-------

Download a pansharpened chip into ./chip.tif:

	{{ .Command }} --bbox -105.1,39.6,-104.9,39.8 1030010045539700 ./chip.tif

Download a panchromatic chip in PNG to stdout:

	{{ .Command }} --bbox -105.1,39.6,-104.9,39.8 --type PAN --format PNG 1030010045539700 -
`),
	)
}

const noBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{with string . "suffix"}} {{.}}{{end}}`

func Task(
	ctx context.Context,
	logger *log.Logger,
	sess *auth.Session,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	flags := cl.Flags()
	catid := cl.Args()[ARG_CATALOG_ID][0]

	if flags.BBox == "" {
		return fmt.Errorf("%w: --bbox is required", flarc.ErrUsage)
	}
	bbox, err := common.ParseBBox(flags.BBox)
	if err != nil {
		return fmt.Errorf("%w: --bbox: %w", flarc.ErrUsage, err)
	}

	client := idaho.New(sess, idaho.WithLogger(logger))
	req, err := client.ChipOf(ctx, catid, bbox, flags.Type.Value(), flags.Format.Value())
	if err != nil {
		return err
	}
	if flags.Bands != "" {
		req.Bands = flags.Bands
	}
	req.Resolution = flags.Resolution
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %w", flarc.ErrUsage, err)
	}

	if flags.URL {
		u, err := client.ChipURL(req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cl.Stdout(), u)
		return err
	}

	dest := "."
	if d := cl.Args()[ARG_DEST]; 0 < len(d) {
		dest = d[0]
	}
	if dest == "-" {
		_, err := client.Chip(ctx, req, cl.Stdout())
		return err
	}

	dest, err = kpath.Resolve(dest)
	if err != nil {
		return fmt.Errorf("path resolving error for '%s': %w", dest, err)
	}
	if kpath.IsDir(dest) {
		dest = filepath.Join(dest, catid+"."+extension(flags.Format.Value()))
	}
	if err := os.MkdirAll(filepath.Dir(dest), os.FileMode(0777)); err != nil {
		return err
	}

	body, size, err := client.ChipStream(ctx, req)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(0666))
	if err != nil {
		return err
	}
	defer f.Close()

	bar := noBar.New(int(size))
	bar.SetWriter(cl.Stderr())
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", fmt.Sprintf("Downloading to %s:", ellipsis(dest, 60)))
	bar.Start()
	w := bar.NewProxyWriter(f)
	defer w.Close()

	if _, err := io.Copy(w, body); err != nil {
		return err
	}
	logger.Printf("chip of %s is saved to %s", catid, dest)
	return nil
}

func extension(format string) string {
	switch format {
	case idaho.FormatPNG:
		return "png"
	case idaho.FormatJPG:
		return "jpg"
	default:
		return "tif"
	}
}

func ellipsis(s string, length int) string {
	if len(s) <= length {
		return s
	}
	l := len(s)
	return "[...]" + s[l-length+5:]
}
