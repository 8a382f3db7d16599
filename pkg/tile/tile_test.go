package tile

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestQuadkeyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		tile maptile.Tile
	}{
		{"World", maptile.New(0, 0, 0)},
		{"Zoom1", maptile.New(1, 0, 1)},
		{"London", maptile.At(orb.Point{-0.1278, 51.5074}, 12)},
		{"Seychelles", maptile.At(orb.Point{55.4528, -4.6228}, 12)},
		{"DeepZoom", maptile.At(orb.Point{139.752768, 35.685323}, 17)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qk := Quadkey(tt.tile)
			if len(qk) != int(tt.tile.Z) {
				t.Fatalf("Quadkey() length = %d, want zoom %d", len(qk), tt.tile.Z)
			}
			got, err := ParseQuadkey(qk)
			if err != nil {
				t.Fatalf("ParseQuadkey(%q) error: %v", qk, err)
			}
			if got != tt.tile {
				t.Errorf("round trip = %v, want %v", got, tt.tile)
			}
		})
	}
}

func TestQuadkeyZeroPadding(t *testing.T) {
	// Tile 0/0 at zoom 3 sits in quadrant 0 three times over; naive base-4
	// formatting would collapse the leading zeros.
	qk := Quadkey(maptile.New(0, 0, 3))
	if qk != "000" {
		t.Errorf("Quadkey(0,0,3) = %q, want %q", qk, "000")
	}
}

func TestParseQuadkeyInvalid(t *testing.T) {
	tests := []struct {
		name string
		qk   string
	}{
		{"BadDigit", "0124"},
		{"Letters", "abc"},
		{"TooLong", strings.Repeat("3", MaxQuadkeyLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseQuadkey(tt.qk); err == nil {
				t.Errorf("ParseQuadkey(%q) expected error", tt.qk)
			}
		})
	}
}

func TestCoveringFixture(t *testing.T) {
	// Observed value for the Seychelles AOI.
	b := orb.Bound{
		Min: orb.Point{55.45280573412927, -4.623440862045413},
		Max: orb.Point{55.453376761871795, -4.6227964300457245},
	}
	if got := Covering(b); got != "301001330310" {
		t.Errorf("Covering() = %q, want %q", got, "301001330310")
	}
}

func TestCoveringContainsBound(t *testing.T) {
	bounds := []orb.Bound{
		{Min: orb.Point{-0.2, 51.4}, Max: orb.Point{0.1, 51.6}},
		{Min: orb.Point{13.2, 52.4}, Max: orb.Point{13.6, 52.7}},
		{Min: orb.Point{-122.5, 37.7}, Max: orb.Point{-122.4, 37.8}},
		{Min: orb.Point{-179.9, -80}, Max: orb.Point{179.9, 80}},
	}
	for _, b := range bounds {
		qk := Covering(b)
		tb, err := Bound(qk)
		if err != nil {
			t.Fatalf("Bound(%q) error: %v", qk, err)
		}
		if !tb.Contains(b.Min) || !tb.Contains(b.Max) {
			t.Errorf("tile %q bound %v does not contain %v", qk, tb, b)
		}
	}
}

func TestCoveringMonotonic(t *testing.T) {
	// A smaller bound nested in a larger one never yields a shorter quadkey.
	outer := orb.Bound{Min: orb.Point{13.0, 52.3}, Max: orb.Point{13.8, 52.8}}
	inner := orb.Bound{Min: orb.Point{13.3, 52.45}, Max: orb.Point{13.5, 52.55}}
	innermost := orb.Bound{Min: orb.Point{13.40, 52.500}, Max: orb.Point{13.41, 52.505}}

	a, b, c := Covering(outer), Covering(inner), Covering(innermost)
	if len(b) < len(a) {
		t.Errorf("inner quadkey %q shorter than outer %q", b, a)
	}
	if len(c) < len(b) {
		t.Errorf("innermost quadkey %q shorter than inner %q", c, b)
	}
}

func TestCoveringBoundaryStraddle(t *testing.T) {
	// Greenwich meridian splits the world at every zoom; a box across it
	// can only be covered by the zoom 0 tile.
	b := orb.Bound{Min: orb.Point{-0.1, 51.0}, Max: orb.Point{0.1, 51.1}}
	if got := Covering(b); got != "" {
		// Latitude range keeps it within the northern half, so zoom 0 it is
		// unless the y split also passes through; either way the result must
		// be a prefix of any point inside the box.
		pt := At(51.05, 0.05, len(got))
		if pt != got {
			t.Errorf("Covering() = %q is not the tile of an interior point %q", got, pt)
		}
	}
}

func TestBoundFixture(t *testing.T) {
	// Observed tile bounds for a central London quadkey.
	b, err := Bound("031313131112")
	if err != nil {
		t.Fatal(err)
	}
	want := orb.Bound{
		Min: orb.Point{-0.17578125, 51.50874245880333},
		Max: orb.Point{-0.087890625, 51.56341232867588},
	}
	if b.Min != want.Min || b.Max != want.Max {
		t.Errorf("Bound() = %v, want %v", b, want)
	}
}

func TestAt(t *testing.T) {
	if got := At(35.685323, 139.752768, 17); got != "13300211231022032" {
		t.Errorf("At() = %q, want %q", got, "13300211231022032")
	}
}
