package convert

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/gogama/flatgeobuf/flatgeobuf/flat"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// fgbMagic is the FlatGeobuf signature: "fgb", spec major version 3,
// "fgb", patch 0.
var fgbMagic = [8]byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}

// fgbColumns fixes the property schema and its encoding order.
var fgbColumns = []struct {
	name string
	typ  flat.ColumnType
}{
	{"area_in_meters", flat.ColumnTypeDouble},
	{"confidence", flat.ColumnTypeDouble},
	{"full_plus_code", flat.ColumnTypeString},
}

// writeFlatGeobuf streams the footprints without a spatial index, the
// same layout the archive extraction pipeline produces.
func writeFlatGeobuf(path string, buildings []Building) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create flatgeobuf: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(fgbMagic[:]); err != nil {
		return err
	}
	if _, err := f.Write(fgbHeader(buildings)); err != nil {
		return err
	}
	for i := range buildings {
		data, err := fgbFeature(&buildings[i])
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func fgbHeader(buildings []Building) []byte {
	b := flatbuffers.NewBuilder(256)
	name := b.CreateString("buildings")

	cols := make([]flatbuffers.UOffsetT, len(fgbColumns))
	for i, def := range fgbColumns {
		n := b.CreateString(def.name)
		flat.ColumnStart(b)
		flat.ColumnAddName(b, n)
		flat.ColumnAddType(b, def.typ)
		cols[i] = flat.ColumnEnd(b)
	}
	flat.HeaderStartColumnsVector(b, len(cols))
	for i := len(cols) - 1; i >= 0; i-- {
		b.PrependUOffsetT(cols[i])
	}
	colVec := b.EndVector(len(cols))

	env := envelope(buildings)
	flat.HeaderStartEnvelopeVector(b, 4)
	for i := 3; i >= 0; i-- {
		b.PrependFloat64(env[i])
	}
	envVec := b.EndVector(4)

	flat.HeaderStart(b)
	flat.HeaderAddName(b, name)
	flat.HeaderAddEnvelope(b, envVec)
	flat.HeaderAddGeometryType(b, headerGeometryType(buildings))
	flat.HeaderAddColumns(b, colVec)
	flat.HeaderAddFeaturesCount(b, uint64(len(buildings)))
	// Zero disables the packed R-tree index.
	flat.HeaderAddIndexNodeSize(b, 0)
	b.FinishSizePrefixed(flat.HeaderEnd(b))
	return b.FinishedBytes()
}

func headerGeometryType(buildings []Building) flat.GeometryType {
	t := flat.GeometryTypeUnknown
	for _, bld := range buildings {
		var ft flat.GeometryType
		switch bld.Geometry.(type) {
		case orb.Polygon:
			ft = flat.GeometryTypePolygon
		case orb.MultiPolygon:
			ft = flat.GeometryTypeMultiPolygon
		default:
			return flat.GeometryTypeUnknown
		}
		if t == flat.GeometryTypeUnknown {
			t = ft
		} else if t != ft {
			return flat.GeometryTypeUnknown
		}
	}
	return t
}

func envelope(buildings []Building) [4]float64 {
	if len(buildings) == 0 {
		return [4]float64{}
	}
	bound := buildings[0].Geometry.Bound()
	for _, b := range buildings[1:] {
		bound = bound.Union(b.Geometry.Bound())
	}
	return [4]float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
}

func fgbFeature(bld *Building) ([]byte, error) {
	b := flatbuffers.NewBuilder(1024)

	props := encodeProperties(bld)
	flat.FeatureStartPropertiesVector(b, len(props))
	for i := len(props) - 1; i >= 0; i-- {
		b.PrependByte(props[i])
	}
	propVec := b.EndVector(len(props))

	geom, err := fgbGeometry(b, bld.Geometry)
	if err != nil {
		return nil, err
	}

	flat.FeatureStart(b)
	flat.FeatureAddGeometry(b, geom)
	flat.FeatureAddProperties(b, propVec)
	b.FinishSizePrefixed(flat.FeatureEnd(b))
	return b.FinishedBytes(), nil
}

// encodeProperties renders the column values in the binary property
// layout: a little-endian column index, then the raw value; strings
// carry a length prefix.
func encodeProperties(bld *Building) []byte {
	buf := make([]byte, 0, 32+len(bld.FullPlusCode))
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(bld.AreaInMeters))
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(bld.Confidence))
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bld.FullPlusCode)))
	buf = append(buf, bld.FullPlusCode...)
	return buf
}

func fgbGeometry(b *flatbuffers.Builder, g orb.Geometry) (flatbuffers.UOffsetT, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return fgbPolygon(b, v), nil
	case orb.MultiPolygon:
		parts := make([]flatbuffers.UOffsetT, len(v))
		for i, poly := range v {
			parts[i] = fgbPolygon(b, poly)
		}
		flat.GeometryStartPartsVector(b, len(parts))
		for i := len(parts) - 1; i >= 0; i-- {
			b.PrependUOffsetT(parts[i])
		}
		partsVec := b.EndVector(len(parts))
		flat.GeometryStart(b)
		flat.GeometryAddParts(b, partsVec)
		flat.GeometryAddType(b, flat.GeometryTypeMultiPolygon)
		return flat.GeometryEnd(b), nil
	default:
		return 0, fmt.Errorf("unsupported flatgeobuf geometry %q", g.GeoJSONType())
	}
}

func fgbPolygon(b *flatbuffers.Builder, poly orb.Polygon) flatbuffers.UOffsetT {
	var vertices int
	for _, ring := range poly {
		vertices += len(ring)
	}

	flat.GeometryStartXyVector(b, vertices*2)
	for i := len(poly) - 1; i >= 0; i-- {
		ring := poly[i]
		for j := len(ring) - 1; j >= 0; j-- {
			b.PrependFloat64(ring[j][1])
			b.PrependFloat64(ring[j][0])
		}
	}
	xy := b.EndVector(vertices * 2)

	var endsVec flatbuffers.UOffsetT
	if len(poly) > 1 {
		ends := make([]uint32, len(poly))
		var total uint32
		for i, ring := range poly {
			total += uint32(len(ring))
			ends[i] = total
		}
		flat.GeometryStartEndsVector(b, len(ends))
		for i := len(ends) - 1; i >= 0; i-- {
			b.PrependUint32(ends[i])
		}
		endsVec = b.EndVector(len(ends))
	}

	flat.GeometryStart(b)
	if endsVec != 0 {
		flat.GeometryAddEnds(b, endsVec)
	}
	flat.GeometryAddXy(b, xy)
	flat.GeometryAddType(b, flat.GeometryTypePolygon)
	return flat.GeometryEnd(b)
}
