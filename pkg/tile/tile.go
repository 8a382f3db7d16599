// Package tile provides quadkey math on top of orb/maptile.
//
// Quadkeys are base-4 strings, one digit per zoom level, most significant
// tile first. A string p addresses the union of every tile whose quadkey
// starts with p, which makes prefix matching a cheap spatial filter.
package tile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// MaxZoom is the deepest zoom considered when covering an AOI.
	// Matches the level at which the remote archives are indexed.
	MaxZoom = 12

	// MaxQuadkeyLen bounds quadkey strings accepted from input data.
	MaxQuadkeyLen = 30
)

// Nudge applied to the max corner of a bound before tiling, so a bound
// whose edge sits exactly on a tile boundary does not spill into the
// neighboring tile.
const boundEpsilon = 1e-11

// Quadkey returns the base-4 quadkey string for a tile. The zoom 0 tile
// has the empty quadkey.
func Quadkey(t maptile.Tile) string {
	if t.Z == 0 {
		return ""
	}
	s := strconv.FormatUint(t.Quadkey(), 4)
	if pad := int(t.Z) - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return s
}

// ParseQuadkey decodes a quadkey string into a tile. The empty string
// decodes to the zoom 0 world tile.
func ParseQuadkey(qk string) (maptile.Tile, error) {
	if len(qk) > MaxQuadkeyLen {
		return maptile.Tile{}, fmt.Errorf("quadkey %q longer than %d digits", qk, MaxQuadkeyLen)
	}
	if qk == "" {
		return maptile.New(0, 0, 0), nil
	}
	v, err := strconv.ParseUint(qk, 4, 64)
	if err != nil {
		return maptile.Tile{}, fmt.Errorf("invalid quadkey %q: digits must be 0-3", qk)
	}
	return maptile.FromQuadkey(v, maptile.Zoom(len(qk))), nil
}

// Covering returns the quadkey of the smallest single tile, at any zoom
// from MaxZoom down to 0, whose footprint fully contains b. Deeper zooms
// are tried first; an AOI straddling a tile boundary falls back to a
// coarser quadkey automatically. Zoom 0 always yields a single tile, so
// the empty return is only reachable for degenerate bounds.
func Covering(b orb.Bound) string {
	for z := MaxZoom; z >= 0; z-- {
		zoom := maptile.Zoom(z)
		ul := maptile.At(orb.Point{b.Min[0], b.Max[1]}, zoom)
		lr := maptile.At(orb.Point{b.Max[0] - boundEpsilon, b.Min[1] + boundEpsilon}, zoom)
		if ul == lr {
			return Quadkey(ul)
		}
	}
	return ""
}

// At returns the quadkey of the tile containing the given coordinate at
// the given zoom.
func At(lat, lon float64, zoom int) string {
	return Quadkey(maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom)))
}

// Bound returns the geographic bounding box of the tile addressed by a
// quadkey. The corners are computed from the spherical-mercator tile
// formulas directly, matching mercantile's bounds digit for digit.
func Bound(qk string) (orb.Bound, error) {
	t, err := ParseQuadkey(qk)
	if err != nil {
		return orb.Bound{}, err
	}
	n := math.Exp2(float64(t.Z))
	west := float64(t.X)/n*360 - 180
	east := float64(t.X+1)/n*360 - 180
	north := tileLat(float64(t.Y), n)
	south := tileLat(float64(t.Y+1), n)
	return orb.Bound{
		Min: orb.Point{west, south},
		Max: orb.Point{east, north},
	}, nil
}

func tileLat(y, n float64) float64 {
	return 180 / math.Pi * math.Atan(math.Sinh(math.Pi*(1-2*y/n)))
}
