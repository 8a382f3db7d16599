package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testAOI = `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[55.45,-4.66],[55.47,-4.66],[55.47,-4.61],[55.45,-4.61],[55.45,-4.66]]]}}`

func writeAOI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aoi.json")
	if err := os.WriteFile(path, []byte(testAOI), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDispatchUnknownVerb(t *testing.T) {
	if err := dispatch(context.Background(), "frobnicate", nil); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestCmdQuadkey(t *testing.T) {
	if err := cmdQuadkey([]string{writeAOI(t)}); err != nil {
		t.Fatal(err)
	}
}

func TestCmdWKT(t *testing.T) {
	if err := cmdWKT([]string{writeAOI(t)}); err != nil {
		t.Fatal(err)
	}
}

func TestCmdSQL(t *testing.T) {
	if err := cmdSQL([]string{"-only-quadkey", writeAOI(t)}); err != nil {
		t.Fatal(err)
	}
}

func TestCmdQuad2JSON(t *testing.T) {
	if err := cmdQuad2JSON([]string{"031313131112"}); err != nil {
		t.Fatal(err)
	}
	if err := cmdQuad2JSON(nil); err == nil {
		t.Fatal("expected an error without a quadkey argument")
	}
	if err := cmdQuad2JSON([]string{"not-a-quadkey"}); err == nil {
		t.Fatal("expected an error for an invalid quadkey")
	}
}
