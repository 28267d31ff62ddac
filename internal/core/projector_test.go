package core

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wardmap/internal/domain/model"
	"wardmap/internal/testutil"
)

func lonLatDataset(t *testing.T, polys ...geom.Polygon) *model.Dataset {
	t.Helper()
	sr, err := ParseEPSG(4326)
	require.NoError(t, err)
	ds := &model.Dataset{Name: "wards", SR: sr, CRS: "EPSG:4326", Fields: []string{"Ward"}}
	for i, p := range polys {
		ds.Features = append(ds.Features, model.Feature{
			Index:    i,
			Geometry: p,
			Attrs:    map[string]string{"Ward": string(rune('A' + i))},
		})
	}
	return ds
}

func TestProjector_ITMOrigin(t *testing.T) {
	// The ITM false origin sits at 8°W 53.5°N.
	ds := lonLatDataset(t, geom.Polygon{{{X: -8, Y: 53.5}, {X: -8, Y: 53.6}, {X: -7.9, Y: 53.6}, {X: -8, Y: 53.5}}})

	out, err := NewProjector(zap.NewNop()).Reproject(ds, 2157)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:2157", out.CRS)
	assert.True(t, IsMetric(out.SR))

	origin := out.Features[0].Geometry.Polygons()[0][0][0]
	assert.InDelta(t, 600000, origin.X, 1e-3)
	assert.InDelta(t, 750000, origin.Y, 1e-3)
}

func TestProjector_RoundTrip(t *testing.T) {
	in := testutil.RectPolygon(-6.99, 54.01, -6.76, 54.49)
	ds := lonLatDataset(t, in)
	p := NewProjector(zap.NewNop())

	itm, err := p.Reproject(ds, 2157)
	require.NoError(t, err)
	back, err := p.Reproject(itm, 4326)
	require.NoError(t, err)

	got := back.Features[0].Geometry.Polygons()[0][0]
	require.Len(t, got, len(in[0]))
	for i, pt := range in[0] {
		assert.InDelta(t, pt.X, got[i].X, 1e-6)
		assert.InDelta(t, pt.Y, got[i].Y, 1e-6)
	}
	assert.Equal(t, "A", back.Features[0].Attrs["Ward"])
}

func TestProjector_DoesNotModifyInput(t *testing.T) {
	ds := lonLatDataset(t, testutil.RectPolygon(-7, 54, -6.5, 54.5))
	_, err := NewProjector(zap.NewNop()).Reproject(ds, 2157)
	require.NoError(t, err)

	assert.Equal(t, "EPSG:4326", ds.CRS)
	assert.InDelta(t, -7, ds.Features[0].Geometry.Bounds().Min.X, 1e-12)
}

func TestProjector_Errors(t *testing.T) {
	p := NewProjector(zap.NewNop())

	_, err := p.Reproject(lonLatDataset(t), 9999)
	assert.ErrorIs(t, err, model.ErrProjection)

	noCRS := &model.Dataset{Name: "wards"}
	_, err = p.Reproject(noCRS, 2157)
	assert.ErrorIs(t, err, model.ErrProjection)
	assert.ErrorIs(t, err, model.ErrMissingCRS)
}

func TestSupportedEPSG(t *testing.T) {
	codes := SupportedEPSG()
	require.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1].Code, codes[i].Code)
	}
	for _, e := range codes {
		_, err := ParseEPSG(e.Code)
		assert.NoError(t, err, e.Code)
	}

	wgs, _ := ParseEPSG(4326)
	assert.False(t, IsMetric(wgs))
	assert.False(t, IsMetric(nil))
}
