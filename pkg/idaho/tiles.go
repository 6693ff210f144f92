package idaho

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/twpayne/go-geom"
)

// Bounds is the bounding box as geom.Bounds in XY layout.
func (b BBox) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.West, b.South, b.East, b.North)
}

// Overlaps reports whether b and o share any point. Touching edges count.
func (b BBox) Overlaps(o BBox) bool {
	return b.Bounds().Overlaps(geom.XY, o.Bounds())
}

// Center is the center of the bounding box.
func (b BBox) Center() Point {
	return Point{Lat: b.South + (b.North-b.South)/2, Lon: b.West + (b.East-b.West)/2}
}

// Tiles builds one centroid chip request for each part of strips which overlaps bbox.
//
// A part with only one image uses its PAN image, and a part with two images uses
// the other one. Other parts, and parts without valid bounds, are skipped.
// Each chip is centered on the part.
func Tiles(descs map[string]Description, bbox BBox, resolution float64, logger *log.Logger) []ChipRequest {
	ret := []ChipRequest{}

	catids := make([]string, 0, len(descs))
	for k := range descs {
		catids = append(catids, k)
	}
	sort.Strings(catids)
	for _, catid := range catids {
		d := descs[catid]
		parts := make([]int, 0, len(d.Parts))
		for n := range d.Parts {
			parts = append(parts, n)
		}
		sort.Ints(parts)

		for _, n := range parts {
			img, ok := tileImage(d.Parts[n])
			if !ok {
				logger.Printf("%s part %d: cannot choose an image. skipped.", catid, n)
				continue
			}
			bounds, err := ParseBBox(img.Bounds)
			if err != nil {
				logger.Printf("%s part %d: image %s has no valid bounds. skipped: %s", catid, n, img.ID, err)
				continue
			}
			if !bbox.Overlaps(bounds) {
				continue
			}
			center := bounds.Center()
			ret = append(ret, ChipRequest{
				Bucket:     img.Bucket,
				ImageID:    img.ID,
				Center:     &center,
				Resolution: resolution,
			})
		}
	}
	return ret
}

func tileImage(part Part) (Image, bool) {
	switch len(part) {
	case 1:
		img, ok := part[ColorPAN]
		return img, ok
	case 2:
		for color, img := range part {
			if !strings.EqualFold(color, ColorPAN) {
				return img, true
			}
		}
	}
	return Image{}, false
}

// DownloadTiles downloads chips of the strip in bbox into dir, one for each part, as "<image id>.tif".
//
// It returns paths of downloaded files.
func (c *Client) DownloadTiles(ctx context.Context, catalogID string, bbox BBox, resolution float64, dir string) ([]string, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	if resolution < 0 {
		return nil, fmt.Errorf("%w: resolution should not be negative: %g", ErrInvalidRequest, resolution)
	}
	records, err := c.ImagesByCatalogID(ctx, catalogID)
	if err != nil {
		return nil, err
	}
	reqs := Tiles(Describe(records), bbox, resolution, c.logger)
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no parts of %s overlap the bbox", ErrNoImage, catalogID)
	}

	saved := []string{}
	for _, req := range reqs {
		dest := filepath.Join(dir, req.ImageID+".tif")
		if err := c.downloadTo(ctx, req, dest); err != nil {
			return saved, err
		}
		saved = append(saved, dest)
	}
	c.logger.Printf("%d IDAHO images overlapping the bbox are downloaded", len(saved))
	return saved, nil
}

func (c *Client) downloadTo(ctx context.Context, req ChipRequest, dest string) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()
	_, err = c.Chip(ctx, req, f)
	return err
}
