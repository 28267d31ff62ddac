package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardmap/internal/domain/model"
	"wardmap/internal/testutil"
)

func TestShapefileRepository_Load(t *testing.T) {
	wards, counties := testutil.WriteWardCountyFixture(t, t.TempDir())

	ds, err := NewShapefileRepository("wards", wards, "Ward", "Population").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "wards", ds.Name)
	assert.Equal(t, "EPSG:4326", ds.CRS)
	assert.NotNil(t, ds.SR)
	assert.Equal(t, []string{"Ward", "Population"}, ds.Fields)
	require.Len(t, ds.Features, 4)

	first := ds.Features[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "A1", first.Attrs["Ward"])
	assert.Equal(t, "200", first.Attrs["Population"])
	assert.InDelta(t, 0.23*0.48, first.Geometry.Area(), 1e-9)

	cs, err := NewShapefileRepository("counties", counties, "CountyName").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cs.Features, 2)
	assert.Equal(t, "B", cs.Features[1].Attrs["CountyName"])
}

func TestShapefileRepository_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	fields := []shp.Field{shp.StringField("Ward", 16)}
	rows := []testutil.Row{{Rings: [][]shp.Point{testutil.Rect(0, 0, 1, 1)}, Values: []interface{}{"W"}}}

	noPrj := testutil.WriteShapefile(t, dir, "noprj", "", fields, rows)
	withPrj := testutil.WriteShapefile(t, dir, "withprj", testutil.WGS84, fields, rows)

	tests := []struct {
		name      string
		path      string
		required  []string
		errSubstr string
		sentinel  error
	}{
		{"missing file", filepath.Join(dir, "absent.shp"), nil, "absent.shp", nil},
		{"missing prj", noPrj, nil, "coordinate reference system", model.ErrMissingCRS},
		{"missing column", withPrj, []string{"Population"}, "missing attribute column Population", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewShapefileRepository("wards", tt.path, tt.required...).Load(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrLoad)
			assert.Contains(t, err.Error(), tt.errSubstr)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestShapefileRepository_RejectsNonPolygonLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("Ward", 8)}))
	w.Write(&shp.Point{X: 1, Y: 1})
	w.Close()
	require.NoError(t, os.WriteFile(strings.TrimSuffix(path, ".shp")+".prj", []byte(testutil.WGS84), 0o644))

	_, err = NewShapefileRepository("wards", path).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrLoad)
	assert.Contains(t, err.Error(), "not a polygon layer")
}

func TestShapefileRepository_EmptyLayerLoads(t *testing.T) {
	path := testutil.WriteShapefile(t, t.TempDir(), "empty", testutil.WGS84,
		[]shp.Field{shp.StringField("Ward", 8), shp.NumberField("Population", 8)}, nil)

	ds, err := NewShapefileRepository("wards", path, "Ward", "Population").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ds.Features)
}

func TestCRSLabel(t *testing.T) {
	tests := []struct {
		wkt  string
		want string
	}{
		{testutil.WGS84, "EPSG:4326"},
		{`PROJCS["IRENET95_Irish_Transverse_Mercator",GEOGCS["GCS_IRENET95"],PROJECTION["Transverse_Mercator"]]`, "IRENET95_Irish_Transverse_Mercator"},
		{"garbage", "custom (7 bytes WKT)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, crsLabel(tt.wkt))
	}
}
