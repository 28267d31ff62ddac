// Package testutil builds on-disk fixtures and loggers for tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// WGS84 is the .prj body written for lon/lat fixtures.
const WGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`

// Row is one fixture record: a polygon (outer ring plus optional holes)
// and its attribute values in field order.
type Row struct {
	Rings  [][]shp.Point
	Values []interface{}
}

// Rect returns a closed clockwise ring for the given box.
func Rect(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX, Y: maxY},
		{X: maxX, Y: maxY},
		{X: maxX, Y: minY},
		{X: minX, Y: minY},
	}
}

// RectPolygon is Rect as a geometry.
func RectPolygon(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: minX, Y: maxY},
		{X: maxX, Y: maxY},
		{X: maxX, Y: minY},
		{X: minX, Y: minY},
	}}
}

// WriteShapefile writes a polygon shapefile to dir/name.shp with a .prj
// holding prj (skipped when empty) and returns the .shp path.
func WriteShapefile(t testing.TB, dir, name, prj string, fields []shp.Field, rows []Row) string {
	t.Helper()

	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := w.SetFields(fields); err != nil {
		t.Fatalf("set fields: %v", err)
	}
	for _, row := range rows {
		poly := shp.Polygon(*shp.NewPolyLine(row.Rings))
		n := int(w.Write(&poly))
		for i, v := range row.Values {
			if err := w.WriteAttribute(n, i, v); err != nil {
				t.Fatalf("write attribute %d of row %d: %v", i, n, err)
			}
		}
	}
	w.Close()

	if prj != "" {
		prjPath := strings.TrimSuffix(path, ".shp") + ".prj"
		if err := os.WriteFile(prjPath, []byte(prj), 0o644); err != nil {
			t.Fatalf("write %s: %v", prjPath, err)
		}
	}
	return path
}

// WriteWardCountyFixture writes the two-county sample used across packages:
// county A (wards A1=200, A2=300) and county B (ward B1=1500), plus ward X
// (999) lying outside both counties. Returns the wards and counties paths.
func WriteWardCountyFixture(t testing.TB, dir string) (wards, counties string) {
	t.Helper()

	counties = WriteShapefile(t, dir, "Counties", WGS84,
		[]shp.Field{shp.StringField("CountyName", 32)},
		[]Row{
			{Rings: [][]shp.Point{Rect(-7.0, 54.0, -6.5, 54.5)}, Values: []interface{}{"A"}},
			{Rings: [][]shp.Point{Rect(-6.5, 54.0, -6.0, 54.5)}, Values: []interface{}{"B"}},
		})

	wards = WriteShapefile(t, dir, "NI_Wards", WGS84,
		[]shp.Field{shp.StringField("Ward", 32), shp.NumberField("Population", 10)},
		[]Row{
			{Rings: [][]shp.Point{Rect(-6.99, 54.01, -6.76, 54.49)}, Values: []interface{}{"A1", 200}},
			{Rings: [][]shp.Point{Rect(-6.74, 54.01, -6.51, 54.49)}, Values: []interface{}{"A2", 300}},
			{Rings: [][]shp.Point{Rect(-6.49, 54.01, -6.01, 54.49)}, Values: []interface{}{"B1", 1500}},
			{Rings: [][]shp.Point{Rect(-5.2, 54.6, -5.1, 54.7)}, Values: []interface{}{"X", 999}},
		})

	return wards, counties
}

// NewLogger returns a zap logger writing through t.Log.
func NewLogger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel))
}
