package search_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/catalog/search"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/internal/commandline"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/logger"
	"github.com/opst/gbdxkit/internal/testutils/fakegbdx"
	"github.com/opst/gbdxkit/pkg/catalog"
	kflag "github.com/opst/gbdxkit/pkg/commandline/flag"
	"github.com/youta-t/flarc"
)

func flags(t *testing.T, f func(*search.Flags) error) search.Flags {
	t.Helper()
	ret := search.Flags{
		Since:  &kflag.Date{},
		Until:  &kflag.Date{},
		Type:   &kflag.Argslice{},
		Filter: &kflag.Argslice{},
	}
	if err := f(&ret); err != nil {
		t.Fatal(err)
	}
	return ret
}

func TestSearch(t *testing.T) {
	type Then struct {
		err   error
		found []string
		sent  map[string]any
	}

	theory := func(when search.Flags, then Then) func(*testing.T) {
		return func(t *testing.T) {
			svr := fakegbdx.New(t)
			svr.Records = []catalog.Record{
				{Identifier: "A", Type: "DigitalGlobeAcquisition", Properties: map[string]any{"sensorPlatformName": "WORLDVIEW02"}},
				{Identifier: "B", Type: "DigitalGlobeAcquisition", Properties: map[string]any{"sensorPlatformName": "WORLDVIEW03"}},
				{Identifier: "C", Type: "IDAHOImage", Properties: map[string]any{"sensorPlatformName": "WORLDVIEW03"}},
			}

			cl, stdout, _ := commandline.New("gbdx catalog search", when, nil)
			err := search.Task(context.Background(), logger.Null(), svr.Session(t), cl, []any{})
			if then.err != nil {
				if !errors.Is(err, then.err) {
					t.Errorf("expected %v, but: %v", then.err, err)
				}
				if len(svr.Searched) != 0 {
					t.Error("search is sent")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			got := []catalog.Record{}
			if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
				t.Fatalf("output is not json: %s\n%s", err, stdout)
			}
			ids := []string{}
			for _, r := range got {
				ids = append(ids, r.Identifier)
			}
			if len(ids) != len(then.found) {
				t.Fatalf("found: (actual, expected) = (%v, %v)", ids, then.found)
			}
			for i := range ids {
				if ids[i] != then.found[i] {
					t.Errorf("found: (actual, expected) = (%v, %v)", ids, then.found)
				}
			}

			sent := map[string]any{}
			if err := json.Unmarshal(svr.Searched[0], &sent); err != nil {
				t.Fatal(err)
			}
			for k, v := range then.sent {
				if sent[k] != v {
					t.Errorf("sent %s: (actual, expected) = (%v, %v)", k, sent[k], v)
				}
			}
		}
	}

	t.Run("it searches with type and filter", theory(
		flags(t, func(f *search.Flags) error {
			f.WKT = "POINT (-105 39.7)"
			if err := f.Since.Set("2016-01-01"); err != nil {
				return err
			}
			if err := f.Type.Set("DigitalGlobeAcquisition"); err != nil {
				return err
			}
			return f.Filter.Set("sensorPlatformName = 'WORLDVIEW03'")
		}),
		Then{
			found: []string{"B"},
			sent: map[string]any{
				"searchAreaWkt": "POINT (-105 39.7)",
				"startDate":     "2016-01-01T00:00:00.000Z",
			},
		},
	))

	t.Run("it searches in a bbox", theory(
		flags(t, func(f *search.Flags) error {
			f.BBox = "-105.1,39.6,-104.9,39.8"
			return nil
		}),
		Then{
			found: []string{"A", "B", "C"},
			sent: map[string]any{
				"searchAreaWkt": "POLYGON ((-105.1 39.6, -105.1 39.8, -104.9 39.8, -104.9 39.6, -105.1 39.6))",
			},
		},
	))

	t.Run("it rejects both of wkt and bbox", theory(
		flags(t, func(f *search.Flags) error {
			f.WKT = "POINT (1 2)"
			f.BBox = "0,0,1,1"
			return nil
		}),
		Then{err: flarc.ErrUsage},
	))

	t.Run("it rejects broken wkt", theory(
		flags(t, func(f *search.Flags) error {
			f.WKT = "POLYGON ((1 2"
			return nil
		}),
		Then{err: flarc.ErrUsage},
	))
}
