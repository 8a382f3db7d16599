package aoi

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample AOI over Seychelles, same fixture the archive publishes.
const seychellesAOI = `{
  "type": "Feature",
  "properties": {},
  "geometry": {
    "coordinates": [
      [
        [55.45280573412927, -4.6227964300457245],
        [55.45280573412927, -4.623440862045413],
        [55.453376761871795, -4.623440862045413],
        [55.453376761871795, -4.6227964300457245],
        [55.45280573412927, -4.6227964300457245]
      ]
    ],
    "type": "Polygon"
  }
}`

func TestQuadkeyFixture(t *testing.T) {
	f, err := Read(strings.NewReader(seychellesAOI))
	require.NoError(t, err)

	qk, err := Quadkey(f)
	require.NoError(t, err)
	assert.Equal(t, "301001330310", qk)
}

func TestWKTFixture(t *testing.T) {
	f, err := Read(strings.NewReader(seychellesAOI))
	require.NoError(t, err)

	wkt, err := WKT(f)
	require.NoError(t, err)
	assert.Equal(t,
		"POLYGON ((55.45280573412927 -4.6227964300457245, 55.45280573412927 -4.623440862045413, "+
			"55.453376761871795 -4.623440862045413, 55.453376761871795 -4.6227964300457245, "+
			"55.45280573412927 -4.6227964300457245))",
		wkt)
}

func TestBoundExplicitBBox(t *testing.T) {
	f, err := Read(strings.NewReader(`{
	  "type": "Feature",
	  "bbox": [-1.5, 50.0, 2.5, 52.0],
	  "geometry": {"type": "Polygon", "coordinates": [[[0,51],[1,51],[1,51.5],[0,51.5],[0,51]]]}
	}`))
	require.NoError(t, err)

	b, err := Bound(f)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-1.5, 50.0}, b.Min)
	assert.Equal(t, orb.Point{2.5, 52.0}, b.Max)
}

func TestBoundIgnoresHoles(t *testing.T) {
	// The hole extends past the exterior ring on purpose; only the
	// exterior contributes to the bbox.
	f, err := Read(strings.NewReader(`{
	  "type": "Feature",
	  "geometry": {"type": "Polygon", "coordinates": [
	    [[0,0],[4,0],[4,4],[0,4],[0,0]],
	    [[-1,-1],[5,-1],[5,5],[-1,5],[-1,-1]]
	  ]}
	}`))
	require.NoError(t, err)

	b, err := Bound(f)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{0, 0}, b.Min)
	assert.Equal(t, orb.Point{4, 4}, b.Max)
}

func TestBoundRejectsNonPolygon(t *testing.T) {
	f, err := Read(strings.NewReader(`{
	  "type": "Feature",
	  "geometry": {"type": "Point", "coordinates": [0, 51]}
	}`))
	require.NoError(t, err)

	_, err = Bound(f)
	assert.Error(t, err)
}

func TestQuadkeyGeoJSONFixture(t *testing.T) {
	f, err := QuadkeyGeoJSON("031313131112")
	require.NoError(t, err)

	poly, ok := f.Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	require.Len(t, poly[0], 5)

	assert.Equal(t, orb.Point{-0.17578125, 51.50874245880333}, poly[0][0])
	assert.Equal(t, orb.Point{-0.087890625, 51.50874245880333}, poly[0][1])
	assert.Equal(t, orb.Point{-0.087890625, 51.56341232867588}, poly[0][2])
	assert.Equal(t, orb.Point{-0.17578125, 51.56341232867588}, poly[0][3])
	assert.Equal(t, poly[0][0], poly[0][4])
}

func TestMarshalWKTMultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{2, 2}, {3, 2}, {3, 3}, {2, 2}}},
	}
	wkt, err := MarshalWKT(mp)
	require.NoError(t, err)
	assert.Equal(t, "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)), ((2 2, 3 2, 3 3, 2 2)))", wkt)
}
