package convert

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// WGS84 ellipsoid and the standard parallel of the EASE-Grid 2.0 global
// projection (EPSG 6933), a cylindrical equal-area mapping. Planar
// areas computed after this projection are true surface areas in square
// meters.
const (
	semiMajorAxis    = 6378137.0
	eccentricitySq   = 0.00669437999014
	standardParallel = 30.0 * math.Pi / 180.0
)

var (
	eccentricity = math.Sqrt(eccentricitySq)
	scaleFactor  = math.Cos(standardParallel) /
		math.Sqrt(1-eccentricitySq*math.Sin(standardParallel)*math.Sin(standardParallel))
)

func equalAreaProject(p orb.Point) orb.Point {
	lambda := p[0] * math.Pi / 180.0
	phi := p[1] * math.Pi / 180.0
	return orb.Point{
		semiMajorAxis * scaleFactor * lambda,
		semiMajorAxis * authalicQ(phi) / (2 * scaleFactor),
	}
}

// authalicQ is Snyder's q function, proportional to the area swept from
// the equator to latitude phi on the ellipsoid.
func authalicQ(phi float64) float64 {
	s := math.Sin(phi)
	es := eccentricity * s
	return (1 - eccentricitySq) *
		(s/(1-eccentricitySq*s*s) - math.Log((1-es)/(1+es))/(2*eccentricity))
}

// EqualAreaM2 returns the surface area of a WGS84 polygon in square
// meters.
func EqualAreaM2(poly orb.Polygon) float64 {
	projected := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		pr := make(orb.Ring, len(ring))
		for j, pt := range ring {
			pr[j] = equalAreaProject(pt)
		}
		projected[i] = pr
	}
	return planar.Area(projected)
}
