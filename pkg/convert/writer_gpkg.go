package convert

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

// GeoPackage constants from the OGC spec: the application id spells
// GPKG, the user version encodes spec 1.3.0.
const (
	gpkgApplicationID = 0x47504B47
	gpkgUserVersion   = 10300
	gpkgSRID          = 4326
)

var gpkgSchema = []string{
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	);`,
	`INSERT INTO gpkg_spatial_ref_sys VALUES
		('Undefined Cartesian', -1, 'NONE', -1, 'undefined', NULL),
		('Undefined Geographic', 0, 'NONE', 0, 'undefined', NULL),
		('WGS 84', 4326, 'EPSG', 4326,
		 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]',
		 NULL);`,
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	);`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
	);`,
	`CREATE TABLE buildings (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		geom BLOB,
		area_in_meters DOUBLE,
		confidence DOUBLE,
		full_plus_code TEXT
	);`,
}

func writeGeoPackage(path string, buildings []Building) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to create geopackage: %w", err)
	}
	defer db.Close()

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id = %d;", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d;", gpkgUserVersion),
	} {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}
	for _, stmt := range gpkgSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create geopackage schema: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var envelope *orb.Bound
	geomType := "POLYGON"
	for _, b := range buildings {
		if _, ok := b.Geometry.(orb.MultiPolygon); ok {
			geomType = "GEOMETRY"
		}
		blob, err := gpkgBlob(b.Geometry)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO buildings (geom, area_in_meters, confidence, full_plus_code) VALUES (?, ?, ?, ?);",
			blob, b.AreaInMeters, b.Confidence, b.FullPlusCode); err != nil {
			return err
		}
		bound := b.Geometry.Bound()
		if envelope == nil {
			envelope = &bound
		} else {
			union := envelope.Union(bound)
			envelope = &union
		}
	}

	if envelope == nil {
		empty := orb.Bound{}
		envelope = &empty
	}
	if _, err := tx.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES ('buildings', 'features', 'buildings', ?, ?, ?, ?, ?);`,
		envelope.Min[0], envelope.Min[1], envelope.Max[0], envelope.Max[1], gpkgSRID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO gpkg_geometry_columns VALUES ('buildings', 'geom', ?, ?, 0, 0);",
		geomType, gpkgSRID); err != nil {
		return err
	}
	return tx.Commit()
}

// gpkgBlob wraps WKB in the GeoPackage binary header: magic GP, version
// 0, little-endian flags without envelope, then the SRS id.
func gpkgBlob(g orb.Geometry) ([]byte, error) {
	data, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteByte('G')
	buf.WriteByte('P')
	buf.WriteByte(0x00)
	buf.WriteByte(0x01)
	if err := binary.Write(&buf, binary.LittleEndian, int32(gpkgSRID)); err != nil {
		return nil, err
	}
	buf.Write(data)
	return buf.Bytes(), nil
}
