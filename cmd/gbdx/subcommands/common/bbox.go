package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opst/gbdxkit/pkg/idaho"
)

// ParseBBox parses a bounding box in the form of "WEST,SOUTH,EAST,NORTH".
func ParseBBox(s string) (idaho.BBox, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return idaho.BBox{}, fmt.Errorf("bbox should be WEST,SOUTH,EAST,NORTH: %s", s)
	}
	vs := make([]float64, 0, 4)
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return idaho.BBox{}, fmt.Errorf("bbox has non-number: %s", f)
		}
		vs = append(vs, v)
	}
	b := idaho.BBox{West: vs[0], South: vs[1], East: vs[2], North: vs[3]}
	if err := b.Validate(); err != nil {
		return idaho.BBox{}, err
	}
	return b, nil
}
