package idaho_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opst/gbdxkit/internal/testutils/fakegbdx"
	"github.com/opst/gbdxkit/pkg/catalog"
	"github.com/opst/gbdxkit/pkg/idaho"
	"github.com/opst/gbdxkit/pkg/utils/try"
)

func record(id string, catid string, part string, color string) catalog.Record {
	return catalog.Record{
		Identifier: id,
		Type:       catalog.TypeIDAHOImage,
		Properties: map[string]any{
			catalog.PropVendorDatasetID3:    catid,
			catalog.PropVendorDatasetID2:    part,
			catalog.PropColorInterpretation: color,
			catalog.PropImageBucketName:     "idaho-images",
			catalog.PropSensorPlatformName:  "WORLDVIEW03",
			catalog.PropImageBoundsWGS84:    "POLYGON ((10 20, 10 21, 11 21, 11 20, 10 20))",
		},
	}
}

func TestChipURL(t *testing.T) {
	type Then struct {
		path  string
		query url.Values
	}

	theory := func(when idaho.ChipRequest, then Then) func(*testing.T) {
		return func(t *testing.T) {
			got := try.To(idaho.ChipURL("https://idaho.example.com/", when, "TOKEN")).OrFatal(t)
			u := try.To(url.Parse(got)).OrFatal(t)
			if u.Host != "idaho.example.com" || u.Path != then.path {
				t.Errorf("url: %s", got)
			}
			q := u.Query()
			if len(q) != len(then.query) {
				t.Errorf("query: (actual, expected) = (%v, %v)", q, then.query)
			}
			for k := range then.query {
				if q.Get(k) != then.query.Get(k) {
					t.Errorf("query %s: (actual, expected) = (%s, %s)", k, q.Get(k), then.query.Get(k))
				}
			}
		}
	}

	t.Run("bbox", theory(
		idaho.ChipRequest{
			Bucket: "idaho-images", ImageID: "ms-1",
			BBox:  &idaho.BBox{West: -105.5, South: 39.25, East: -105, North: 39.75},
			Bands: "4,2,1", PanID: "pan-1", Format: "png",
		},
		Then{
			path: "/v1/chip/bbox/idaho-images/ms-1",
			query: url.Values{
				"upperLeft":  {"-105.5,39.75"},
				"lowerRight": {"-105,39.25"},
				"bands":      {"4,2,1"},
				"panId":      {"pan-1"},
				"format":     {"PNG"},
				"token":      {"TOKEN"},
			},
		},
	))

	t.Run("centroid", theory(
		idaho.ChipRequest{
			Bucket: "idaho-images", ImageID: "pan-1",
			Center:     &idaho.Point{Lat: 39.5, Lon: -105.25},
			Resolution: 0.5,
		},
		Then{
			path: "/v1/chip/centroid/idaho-images/pan-1",
			query: url.Values{
				"lat":        {"39.5"},
				"long":       {"-105.25"},
				"resolution": {"0.5"},
				"format":     {"TIF"},
				"token":      {"TOKEN"},
			},
		},
	))

	t.Run("invalid requests", func(t *testing.T) {
		bbox := &idaho.BBox{West: 0, South: 0, East: 1, North: 1}
		for name, req := range map[string]idaho.ChipRequest{
			"no image":            {Bucket: "b", BBox: bbox},
			"no location":         {Bucket: "b", ImageID: "i"},
			"both locations":      {Bucket: "b", ImageID: "i", BBox: bbox, Center: &idaho.Point{}},
			"flipped bbox":        {Bucket: "b", ImageID: "i", BBox: &idaho.BBox{West: 1, South: 0, East: 0, North: 1}},
			"unknown format":      {Bucket: "b", ImageID: "i", BBox: bbox, Format: "gif"},
			"negative resolution": {Bucket: "b", ImageID: "i", BBox: bbox, Resolution: -1},
		} {
			if _, err := idaho.ChipURL("https://idaho.example.com", req, "T"); !errors.Is(err, idaho.ErrInvalidRequest) {
				t.Errorf("%s: expected ErrInvalidRequest, but: %v", name, err)
			}
		}
	})
}

func TestDescribe(t *testing.T) {
	got := idaho.Describe([]catalog.Record{
		record("pan-1", "CAT1", "103001-P001", "PAN"),
		record("ms-1", "CAT1", "103001-P001", "WORLDVIEW_8_BAND"),
		record("pan-2", "CAT1", "103001-P002", "PAN"),
		record("pan-3", "CAT2", "103002-P001", "PAN"),
		record("broken", "CAT2", "P", "PAN"),
		{Identifier: "not-idaho", Type: "Acquisition"},
	})

	if len(got) != 2 {
		t.Fatalf("descriptions: %+v", got)
	}
	cat1 := got["CAT1"]
	if cat1.SensorPlatform != "WORLDVIEW03" || len(cat1.Parts) != 2 {
		t.Errorf("CAT1: %+v", cat1)
	}
	if img := cat1.Parts[1][idaho.Color8Bands]; img.ID != "ms-1" || img.Bucket != "idaho-images" {
		t.Errorf("CAT1 part 1: %+v", cat1.Parts[1])
	}
	if img := cat1.Parts[2][idaho.ColorPAN]; img.ID != "pan-2" {
		t.Errorf("CAT1 part 2: %+v", cat1.Parts[2])
	}
	if len(got["CAT2"].Parts) != 1 {
		t.Errorf("CAT2: %+v", got["CAT2"])
	}
}

func TestBBox(t *testing.T) {
	b := idaho.BBox{West: 10, South: 20, East: 11, North: 21}
	s := try.To(b.WKT()).OrFatal(t)
	if !strings.HasPrefix(s, "POLYGON") {
		t.Errorf("wkt: %s", s)
	}
	back := try.To(idaho.ParseBBox(s)).OrFatal(t)
	if back != b {
		t.Errorf("(actual, expected) = (%+v, %+v)", back, b)
	}
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	svr := fakegbdx.New(t)
	svr.Chip = []byte("fake tiff")
	svr.Records = []catalog.Record{
		record("pan-1", "CAT1", "103001-P001", "PAN"),
		record("ms-1", "CAT1", "103001-P001", "RGBN"),
		{
			Identifier: "CAT1",
			Type:       catalog.TypeDigitalGlobeAcquisition,
			Properties: map[string]any{catalog.PropFootprintWKT: "POLYGON ((10 20, 10 21, 11 21, 11 20, 10 20))"},
		},
		{Identifier: "CAT9", Type: catalog.TypeDigitalGlobeAcquisition, Properties: map[string]any{}},
	}
	testee := idaho.New(svr.Session(t), idaho.WithLogger(log.New(io.Discard, "", 0)))

	t.Run("images by catalog id", func(t *testing.T) {
		got := try.To(testee.ImagesByCatalogID(ctx, "CAT1")).OrFatal(t)
		if len(got) != 2 {
			t.Errorf("images: %+v", got)
		}
		if !bytes.Contains(svr.Searched[len(svr.Searched)-1], []byte(`"searchAreaWkt":"POLYGON ((10 20`)) {
			t.Errorf("search: %s", svr.Searched[len(svr.Searched)-1])
		}
	})

	t.Run("strip without footprint", func(t *testing.T) {
		_, err := testee.ImagesByCatalogID(ctx, "CAT9")
		if !errors.Is(err, idaho.ErrNoFootprint) {
			t.Errorf("expected ErrNoFootprint, but: %v", err)
		}
	})

	t.Run("pansharpened chip", func(t *testing.T) {
		bbox := idaho.BBox{West: 10.2, South: 20.2, East: 10.4, North: 20.4}
		req := try.To(testee.ChipOf(ctx, "CAT1", bbox, idaho.Pansharpened, "TIF")).OrFatal(t)
		if req.ImageID != "ms-1" || req.PanID != "pan-1" || req.Bands != "0,1,2" {
			t.Errorf("request: %+v", req)
		}

		buf := new(bytes.Buffer)
		n := try.To(testee.Chip(ctx, req, buf)).OrFatal(t)
		if n != int64(len("fake tiff")) || buf.String() != "fake tiff" {
			t.Errorf("chip: %d, %q", n, buf.String())
		}

		call := svr.Chips[len(svr.Chips)-1]
		if call.Mode != "bbox" || call.Bucket != "idaho-images" || call.ImageID != "ms-1" {
			t.Errorf("call: %+v", call)
		}
		if call.Query["token"] != svr.AccessToken || call.Query["panId"] != "pan-1" {
			t.Errorf("query: %v", call.Query)
		}
	})

	t.Run("missing images", func(t *testing.T) {
		bbox := idaho.BBox{West: 10.2, South: 20.2, East: 10.4, North: 20.4}
		_, err := testee.ChipOf(ctx, "CAT2", bbox, idaho.Panchromatic, "")
		if !errors.Is(err, idaho.ErrNoImage) {
			t.Errorf("expected ErrNoImage, but: %v", err)
		}
	})

	t.Run("rejected chip", func(t *testing.T) {
		svr.AccessToken = "rotated"
		defer func() { svr.AccessToken = "fake-access-token" }()

		_, err := testee.Chip(ctx, idaho.ChipRequest{
			Bucket: "idaho-images", ImageID: "pan-1", Center: &idaho.Point{Lat: 20.5, Lon: 10.5},
		}, io.Discard)
		if err == nil {
			t.Error("expected error, but nil")
		}
	})
}

func TestTiles(t *testing.T) {
	image := func(id string, bounds string) idaho.Image {
		return idaho.Image{ID: id, Bucket: "idaho-images", Bounds: bounds}
	}
	descs := map[string]idaho.Description{
		"CAT1": {
			CatalogID: "CAT1",
			Parts: map[int]idaho.Part{
				1: {
					idaho.ColorPAN:  image("pan-1", "POLYGON ((10 20, 10 21, 11 21, 11 20, 10 20))"),
					idaho.ColorRGBN: image("ms-1", "POLYGON ((10 20, 10 21, 11 21, 11 20, 10 20))"),
				},
				2: {idaho.ColorPAN: image("pan-2", "POLYGON ((30 40, 30 41, 31 41, 31 40, 30 40))")},
				3: {idaho.ColorPAN: image("pan-3", "POLYGON ((11.5 21, 11.5 22, 12 22, 12 21, 11.5 21))")},
				4: {idaho.ColorRGBN: image("ms-4", "POLYGON ((10 20, 10 21, 11 21, 11 20, 10 20))")},
				5: {idaho.ColorPAN: image("pan-5", "")},
			},
		},
	}
	bbox := idaho.BBox{West: 10.5, South: 20.5, East: 11.5, North: 21.5}

	got := idaho.Tiles(descs, bbox, 0.5, log.New(io.Discard, "", 0))

	want := []struct {
		id     string
		center idaho.Point
	}{
		{id: "ms-1", center: idaho.Point{Lat: 20.5, Lon: 10.5}},
		{id: "pan-3", center: idaho.Point{Lat: 21.5, Lon: 11.75}},
	}
	if len(got) != len(want) {
		t.Fatalf("tiles: %+v", got)
	}
	for i, w := range want {
		g := got[i]
		if g.ImageID != w.id || g.Center == nil || *g.Center != w.center {
			t.Errorf("tile %d: (actual, expected) = (%+v, %+v)", i, g, w)
		}
		if g.Bucket != "idaho-images" || g.Resolution != 0.5 || g.BBox != nil || g.PanID != "" {
			t.Errorf("tile %d: %+v", i, g)
		}
	}
}

func TestClient_DownloadTiles(t *testing.T) {
	ctx := context.Background()
	svr := fakegbdx.New(t)
	svr.Chip = []byte("fake tiff")
	far := record("pan-2", "CAT1", "103001-P002", "PAN")
	far.Properties[catalog.PropImageBoundsWGS84] = "POLYGON ((30 40, 30 41, 31 41, 31 40, 30 40))"
	svr.Records = []catalog.Record{
		record("pan-1", "CAT1", "103001-P001", "PAN"),
		record("ms-1", "CAT1", "103001-P001", "RGBN"),
		far,
		{
			Identifier: "CAT1",
			Type:       catalog.TypeDigitalGlobeAcquisition,
			Properties: map[string]any{catalog.PropFootprintWKT: "POLYGON ((10 20, 10 41, 31 41, 31 20, 10 20))"},
		},
	}
	testee := idaho.New(svr.Session(t), idaho.WithLogger(log.New(io.Discard, "", 0)))

	t.Run("it downloads chips of overlapping parts", func(t *testing.T) {
		dir := t.TempDir()
		bbox := idaho.BBox{West: 10.2, South: 20.2, East: 10.4, North: 20.4}

		got := try.To(testee.DownloadTiles(ctx, "CAT1", bbox, 2, dir)).OrFatal(t)

		want := filepath.Join(dir, "ms-1.tif")
		if len(got) != 1 || got[0] != want {
			t.Fatalf("downloaded: %v", got)
		}
		content := try.To(os.ReadFile(want)).OrFatal(t)
		if string(content) != "fake tiff" {
			t.Errorf("content: %q", content)
		}
		call := svr.Chips[len(svr.Chips)-1]
		if call.Mode != "centroid" || call.ImageID != "ms-1" {
			t.Errorf("call: %+v", call)
		}
		if call.Query["lat"] != "20.5" || call.Query["long"] != "10.5" || call.Query["resolution"] != "2" {
			t.Errorf("query: %v", call.Query)
		}
	})

	t.Run("it fails when no parts overlap", func(t *testing.T) {
		bbox := idaho.BBox{West: 50, South: 50, East: 51, North: 51}
		_, err := testee.DownloadTiles(ctx, "CAT1", bbox, 0, t.TempDir())
		if !errors.Is(err, idaho.ErrNoImage) {
			t.Errorf("expected ErrNoImage, but: %v", err)
		}
	})

	t.Run("it rejects a broken bbox", func(t *testing.T) {
		bbox := idaho.BBox{West: 11, South: 20, East: 10, North: 21}
		_, err := testee.DownloadTiles(ctx, "CAT1", bbox, 0, t.TempDir())
		if !errors.Is(err, idaho.ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, but: %v", err)
		}
	})
}
