package catalog

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Record types in the catalog.
const (
	TypeIDAHOImage              = "IDAHOImage"
	TypeDigitalGlobeAcquisition = "DigitalGlobeAcquisition"
)

// Properties of records.
const (
	PropColorInterpretation = "colorInterpretation"
	PropImageBucketName     = "imageBucketName"
	PropImageBoundsWGS84    = "imageBoundsWGS84"
	PropFootprintWKT        = "footprintWkt"
	PropVendorDatasetID2    = "vendorDatasetIdentifier2"
	PropVendorDatasetID3    = "vendorDatasetIdentifier3"
	PropSensorPlatformName  = "sensorPlatformName"
)

var ErrNoProperty = errors.New("property is not found")

// Record is an entry of the catalog.
type Record struct {
	Identifier string         `json:"identifier"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Property returns a property as a string.
//
// Numbers and booleans are formatted. Other values, or missing properties, are not found.
func (r Record) Property(name string) (string, bool) {
	v, ok := r.Properties[name]
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

func (r Record) prop(name string) string {
	s, _ := r.Property(name)
	return s
}

// ColorInterpretation is like "PAN", "RGBN" or "WORLDVIEW_8_BAND".
func (r Record) ColorInterpretation() string {
	return r.prop(PropColorInterpretation)
}

func (r Record) Bucket() string {
	return r.prop(PropImageBucketName)
}

// CatalogID is the catalog id of the strip which the record belongs to.
func (r Record) CatalogID() string {
	return r.prop(PropVendorDatasetID3)
}

func (r Record) SensorPlatform() string {
	return r.prop(PropSensorPlatformName)
}

// Part is the part number of the image in its strip, taken from the last 3
// digits of vendorDatasetIdentifier2 (like "...-P001").
func (r Record) Part() (int, error) {
	s, ok := r.Property(PropVendorDatasetID2)
	if !ok {
		return 0, fmt.Errorf("%w: %s of %s", ErrNoProperty, PropVendorDatasetID2, r.Identifier)
	}
	if len(s) < 3 {
		return 0, fmt.Errorf("%s of %s is too short: %q", PropVendorDatasetID2, r.Identifier, s)
	}
	n, err := strconv.Atoi(s[len(s)-3:])
	if err != nil {
		return 0, fmt.Errorf("%s of %s does not end with part number: %q", PropVendorDatasetID2, r.Identifier, s)
	}
	return n, nil
}

// Bounds is the bounding box of imageBoundsWGS84.
func (r Record) Bounds() (*geom.Bounds, error) {
	return r.geometryBounds(PropImageBoundsWGS84)
}

// Footprint is the bounding box of footprintWkt.
func (r Record) Footprint() (*geom.Bounds, error) {
	return r.geometryBounds(PropFootprintWKT)
}

func (r Record) geometryBounds(name string) (*geom.Bounds, error) {
	s, ok := r.Property(name)
	if !ok || s == "" {
		return nil, fmt.Errorf("%w: %s of %s", ErrNoProperty, name, r.Identifier)
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", name, r.Identifier, err)
	}
	return g.Bounds(), nil
}
