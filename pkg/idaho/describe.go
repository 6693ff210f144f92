package idaho

import (
	"fmt"
	"math"

	"github.com/opst/gbdxkit/pkg/catalog"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Color interpretations of IDAHO images.
const (
	ColorPAN    = "PAN"
	ColorRGBN   = "RGBN"
	Color8Bands = "WORLDVIEW_8_BAND"
)

// Image is an IDAHO image in a strip.
type Image struct {
	ID     string `json:"id"`
	Bucket string `json:"bucket"`

	// Bounds is imageBoundsWGS84 in WKT.
	Bounds string `json:"bounds,omitempty"`
}

// Part is images of a part of a strip, by color interpretation.
type Part map[string]Image

// Description is a strip described by its IDAHO images.
type Description struct {
	CatalogID      string       `json:"catalogId"`
	SensorPlatform string       `json:"sensorPlatform,omitempty"`
	Parts          map[int]Part `json:"parts"`
}

// Describe groups IDAHO image records by their catalog id, part number and color interpretation.
//
// Records which are not IDAHO images, or have no part number, are skipped.
func Describe(records []catalog.Record) map[string]Description {
	ret := map[string]Description{}
	for _, r := range records {
		if r.Type != catalog.TypeIDAHOImage {
			continue
		}
		part, err := r.Part()
		if err != nil {
			continue
		}
		catid := r.CatalogID()
		d, ok := ret[catid]
		if !ok {
			d = Description{CatalogID: catid, Parts: map[int]Part{}}
		}
		d.SensorPlatform = r.SensorPlatform()
		if _, ok := d.Parts[part]; !ok {
			d.Parts[part] = Part{}
		}
		bounds, _ := r.Property(catalog.PropImageBoundsWGS84)
		d.Parts[part][r.ColorInterpretation()] = Image{
			ID:     r.Identifier,
			Bucket: r.Bucket(),
			Bounds: bounds,
		}
		ret[catid] = d
	}
	return ret
}

// BBox is a rectangle in WGS84 degrees.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// BBoxOf is the bounding box of geom.Bounds in XY layout.
func BBoxOf(b *geom.Bounds) BBox {
	return BBox{West: b.Min(0), South: b.Min(1), East: b.Max(0), North: b.Max(1)}
}

// ParseBBox parses WKT geometry, and returns its bounding box.
func ParseBBox(s string) (BBox, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return BBox{}, err
	}
	return BBoxOf(g.Bounds()), nil
}

func (b BBox) Validate() error {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bbox has non-finite value: %+v", ErrInvalidRequest, b)
		}
	}
	if b.East <= b.West {
		return fmt.Errorf("%w: bbox: east (%g) should be greater than west (%g)", ErrInvalidRequest, b.East, b.West)
	}
	if b.North <= b.South {
		return fmt.Errorf("%w: bbox: north (%g) should be greater than south (%g)", ErrInvalidRequest, b.North, b.South)
	}
	return nil
}

// WKT is the bounding box as a polygon in WKT.
func (b BBox) WKT() (string, error) {
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{b.West, b.South},
		{b.West, b.North},
		{b.East, b.North},
		{b.East, b.South},
		{b.West, b.South},
	}})
	if err != nil {
		return "", err
	}
	return wkt.Marshal(poly)
}
