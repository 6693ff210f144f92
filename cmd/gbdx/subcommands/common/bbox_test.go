package common_test

import (
	"errors"
	"testing"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/idaho"
	"github.com/opst/gbdxkit/pkg/utils/try"
)

func TestParseBBox(t *testing.T) {
	got := try.To(common.ParseBBox("-105.1, 39.6,-104.9,39.8")).OrFatal(t)
	want := idaho.BBox{West: -105.1, South: 39.6, East: -104.9, North: 39.8}
	if got != want {
		t.Errorf("(actual, expected) = (%+v, %+v)", got, want)
	}

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := common.ParseBBox(bad); err == nil {
			t.Errorf("%q: expected error, but nil", bad)
		}
	}
	if _, err := common.ParseBBox("1,0,0,1"); !errors.Is(err, idaho.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, but: %v", err)
	}
}
