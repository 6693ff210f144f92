package tiles_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/idaho/tiles"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/internal/commandline"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/logger"
	"github.com/opst/gbdxkit/internal/testutils/fakegbdx"
	"github.com/opst/gbdxkit/pkg/catalog"
	"github.com/opst/gbdxkit/pkg/idaho"
	"github.com/youta-t/flarc"
)

func TestTiles(t *testing.T) {
	ctx := context.Background()
	svr := fakegbdx.New(t)
	svr.Chip = []byte("fake tiff")
	svr.Records = []catalog.Record{
		{
			Identifier: "CAT1",
			Type:       catalog.TypeDigitalGlobeAcquisition,
			Properties: map[string]any{catalog.PropFootprintWKT: "POLYGON ((0 0, 0 1, 1 1, 1 0, 0 0))"},
		},
		{
			Identifier: "pan-1",
			Type:       catalog.TypeIDAHOImage,
			Properties: map[string]any{
				catalog.PropVendorDatasetID3:    "CAT1",
				catalog.PropVendorDatasetID2:    "103001-P001",
				catalog.PropColorInterpretation: idaho.ColorPAN,
				catalog.PropImageBucketName:     "idaho-images",
				catalog.PropImageBoundsWGS84:    "POLYGON ((0 0, 0 1, 1 1, 1 0, 0 0))",
			},
		},
	}
	sess := svr.Session(t)

	type When struct {
		flags tiles.Flags
		dest  string
	}
	theory := func(when When, wantErr error) func(*testing.T) {
		return func(t *testing.T) {
			dir := t.TempDir()
			dest := dir
			if when.dest != "" {
				dest = filepath.Join(dir, when.dest)
			}
			cl, stdout, _ := commandline.New("gbdx idaho tiles", when.flags, map[string][]string{
				tiles.ARG_CATALOG_ID: {"CAT1"},
				tiles.ARG_DEST:       {dest},
			})
			err := tiles.Task(ctx, logger.Null(), sess, cl, []any{})
			if wantErr != nil {
				if !errors.Is(err, wantErr) {
					t.Errorf("expected %v, but: %v", wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got, want := stdout.String(), filepath.Join(dir, "pan-1.tif")+"\n"; got != want {
				t.Errorf("output: (actual, expected) = (%q, %q)", got, want)
			}
		}
	}

	t.Run("it downloads tiles", theory(When{flags: tiles.Flags{BBox: "0.2,0.2,0.4,0.4", Resolution: 2}}, nil))
	t.Run("bbox is required", theory(When{}, flarc.ErrUsage))
	t.Run("broken bbox", theory(When{flags: tiles.Flags{BBox: "1,1,0,0"}}, flarc.ErrUsage))
	t.Run("destination is not a directory", theory(
		When{flags: tiles.Flags{BBox: "0.2,0.2,0.4,0.4"}, dest: "missing"}, flarc.ErrUsage,
	))
	t.Run("no parts overlap", theory(When{flags: tiles.Flags{BBox: "5,5,6,6"}}, idaho.ErrNoImage))
}
