// Package idaho finds IDAHO images of strips, and downloads chips of them.
package idaho

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/opst/gbdxkit/pkg/api/rest"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/catalog"
)

var (
	ErrInvalidRequest = errors.New("invalid chip request")
	ErrNoFootprint    = errors.New("strip has no footprint")
	ErrNoImage        = errors.New("no IDAHO image is found")
)

// Chip formats.
const (
	FormatTIF = "TIF"
	FormatPNG = "PNG"
	FormatJPG = "JPG"
)

// Point is a location in WGS84 degrees.
type Point struct {
	Lat float64
	Lon float64
}

// ChipRequest is parameters of a chip.
//
// Exactly one of BBox or Center should be given.
type ChipRequest struct {
	Bucket  string
	ImageID string

	BBox   *BBox
	Center *Point

	// PanID is the PAN image to pansharpen a multispectral image with.
	PanID string

	// Bands like "0,1,2". Empty means all bands.
	Bands string

	// Resolution in meters. Zero means the native resolution.
	Resolution float64

	// Format is one of FormatTIF (default), FormatPNG or FormatJPG.
	Format string
}

func (r ChipRequest) format() (string, error) {
	switch f := strings.ToUpper(r.Format); f {
	case "":
		return FormatTIF, nil
	case FormatTIF, FormatPNG, FormatJPG:
		return f, nil
	case "TIFF":
		return FormatTIF, nil
	case "JPEG":
		return FormatJPG, nil
	default:
		return "", fmt.Errorf("%w: unknown format: %s", ErrInvalidRequest, r.Format)
	}
}

func (r ChipRequest) Validate() error {
	if r.Bucket == "" || r.ImageID == "" {
		return fmt.Errorf("%w: bucket and image id are required", ErrInvalidRequest)
	}
	if (r.BBox == nil) == (r.Center == nil) {
		return fmt.Errorf("%w: give either of bbox or center", ErrInvalidRequest)
	}
	if r.BBox != nil {
		if err := r.BBox.Validate(); err != nil {
			return err
		}
	}
	if r.Resolution < 0 {
		return fmt.Errorf("%w: resolution should not be negative: %g", ErrInvalidRequest, r.Resolution)
	}
	_, err := r.format()
	return err
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ChipURL builds the URL of the chip on the IDAHO service at root.
//
// The token is put in the query.
func ChipURL(root string, req ChipRequest, token string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	format, _ := req.format()

	q := url.Values{}
	mode := "bbox"
	if b := req.BBox; b != nil {
		q.Set("upperLeft", ftoa(b.West)+","+ftoa(b.North))
		q.Set("lowerRight", ftoa(b.East)+","+ftoa(b.South))
	} else {
		mode = "centroid"
		q.Set("lat", ftoa(req.Center.Lat))
		q.Set("long", ftoa(req.Center.Lon))
	}
	if req.Bands != "" {
		q.Set("bands", req.Bands)
	}
	if req.PanID != "" {
		q.Set("panId", req.PanID)
	}
	if req.Resolution != 0 {
		q.Set("resolution", ftoa(req.Resolution))
	}
	q.Set("format", format)
	q.Set("token", token)

	u := rest.New(root, nil).URL("v1/chip", mode, req.Bucket, req.ImageID)
	return u + "?" + q.Encode(), nil
}

type Client struct {
	catalog *catalog.Client
	root    string
	hc      *http.Client
	token   func() (string, error)
	logger  *log.Logger
}

type Option func(*Client) *Client

func WithLogger(l *log.Logger) Option {
	return func(c *Client) *Client {
		c.logger = l
		return c
	}
}

// New creates an IDAHO client on the session.
func New(sess *auth.Session, options ...Option) *Client {
	profile := sess.Profile()
	c := &Client{
		root:   profile.Idaho(),
		hc:     sess.Client(),
		token:  sess.AccessToken,
		logger: log.Default(),
	}
	for _, o := range options {
		c = o(c)
	}
	c.catalog = catalog.New(sess, catalog.WithLogger(c.logger))
	return c
}

// ImagesByCatalogID finds IDAHO images in the footprint of the strip.
func (c *Client) ImagesByCatalogID(ctx context.Context, catalogID string) ([]catalog.Record, error) {
	footprint, err := c.catalog.StripFootprint(ctx, catalogID)
	if err != nil {
		return nil, err
	}
	if footprint == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoFootprint, catalogID)
	}
	return c.ImagesByCatalogIDAndAOI(ctx, catalogID, footprint)
}

// ImagesByCatalogIDAndAOI finds IDAHO images of the strip in the area of interest (WKT).
func (c *Client) ImagesByCatalogIDAndAOI(ctx context.Context, catalogID string, aoi string) ([]catalog.Record, error) {
	records, err := c.catalog.Search(ctx, catalog.Query{
		SearchAreaWKT: aoi,
		Filters:       []string{fmt.Sprintf("%s = '%s'", catalog.PropVendorDatasetID3, catalogID)},
		Types:         []string{catalog.TypeIDAHOImage},
	})
	if err != nil {
		return nil, err
	}
	c.logger.Printf("%d IDAHO images found associated with catalog id %s", len(records), catalogID)
	return records, nil
}

// ChipURL builds the URL of the chip, with the current access token.
func (c *Client) ChipURL(req ChipRequest) (string, error) {
	token, err := c.token()
	if err != nil {
		return "", err
	}
	return ChipURL(c.root, req, token)
}

// ChipStream starts downloading the chip.
//
// It returns the body and its size (-1 if unknown). The caller should close the body.
func (c *Client) ChipStream(ctx context.Context, req ChipRequest) (io.ReadCloser, int64, error) {
	u, err := c.ChipURL(req)
	if err != nil {
		return nil, 0, err
	}
	resp, err := rest.New(c.root, c.hc).Do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	body, err := rest.Stream(resp, rest.MessageFor{
		rest.Status4xx: fmt.Sprintf("chip of %s is rejected", req.ImageID),
		rest.Status5xx: "IDAHO service is in trouble",
	})
	if err != nil {
		return nil, 0, err
	}
	return body, resp.ContentLength, nil
}

// Chip downloads the chip into w, and returns its size.
func (c *Client) Chip(ctx context.Context, req ChipRequest, w io.Writer) (int64, error) {
	body, _, err := c.ChipStream(ctx, req)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return io.Copy(w, body)
}

// Chip types for ChipOf.
const (
	Panchromatic  = "PAN"
	Multispectral = "MS"
	Pansharpened  = "PS"
)

// ChipOf builds a chip request for the strip in the bbox, choosing images from the catalog.
//
// chipType is one of Panchromatic, Multispectral or Pansharpened.
func (c *Client) ChipOf(ctx context.Context, catalogID string, bbox BBox, chipType string, format string) (ChipRequest, error) {
	if err := bbox.Validate(); err != nil {
		return ChipRequest{}, err
	}
	aoi, err := bbox.WKT()
	if err != nil {
		return ChipRequest{}, err
	}
	records, err := c.ImagesByCatalogIDAndAOI(ctx, catalogID, aoi)
	if err != nil {
		return ChipRequest{}, err
	}
	req, err := chipOf(Describe(records), chipType)
	if err != nil {
		return ChipRequest{}, fmt.Errorf("%w: %s", err, catalogID)
	}
	req.BBox = &bbox
	req.Format = format
	return req, nil
}

func chipOf(descs map[string]Description, chipType string) (ChipRequest, error) {
	var pan, ms *Image
	bands := 0

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
			part := d.Parts[n]
			if img, ok := part[ColorPAN]; ok {
				pan = &img
			}
			if img, ok := part[Color8Bands]; ok {
				ms, bands = &img, 8
			} else if img, ok := part[ColorRGBN]; ok {
				ms, bands = &img, 4
			}
		}
	}

	switch strings.ToUpper(chipType) {
	case Panchromatic:
		if pan == nil {
			return ChipRequest{}, fmt.Errorf("%w: no PAN image", ErrNoImage)
		}
		return ChipRequest{Bucket: pan.Bucket, ImageID: pan.ID, Bands: "0"}, nil
	case Multispectral:
		if ms == nil {
			return ChipRequest{}, fmt.Errorf("%w: no multispectral image", ErrNoImage)
		}
		return ChipRequest{Bucket: ms.Bucket, ImageID: ms.ID}, nil
	case Pansharpened:
		if pan == nil || ms == nil {
			return ChipRequest{}, fmt.Errorf("%w: pansharpening needs both of PAN and multispectral images", ErrNoImage)
		}
		rgb := "0,1,2"
		if bands == 8 {
			rgb = "4,2,1"
		}
		return ChipRequest{Bucket: ms.Bucket, ImageID: ms.ID, Bands: rgb, PanID: pan.ID}, nil
	default:
		return ChipRequest{}, fmt.Errorf("%w: unknown chip type: %s", ErrInvalidRequest, chipType)
	}
}
