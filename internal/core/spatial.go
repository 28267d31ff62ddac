package core

import (
	"math"

	"github.com/ctessum/geom"

	"wardmap/internal/domain/model"
)

type SpatialAnalyzer struct{}

// Analyze computes the area of every region named in agg and, when the
// dataset is in a metric CRS, its population density. Regions made of
// several features are summed.
func (a *SpatialAnalyzer) Analyze(ds *model.Dataset, nameField string, agg *model.Aggregate) map[string]model.RegionStats {
	metric := IsMetric(ds.SR)

	areas := make(map[string]float64)
	for _, f := range ds.Features {
		name := f.Attrs[nameField]
		if metric {
			areas[name] += math.Abs(f.Geometry.Area()) / 1e6
		} else {
			areas[name] += calculateArea(f.Geometry)
		}
	}

	stats := make(map[string]model.RegionStats, len(agg.Keys))
	for _, key := range agg.Keys {
		st := model.RegionStats{Name: key, AreaKm2: areas[key]}
		if metric && st.AreaKm2 > 0 {
			st.Density = float64(agg.Sums[key]) / st.AreaKm2
			st.HasDensity = true
		}
		stats[key] = st
	}
	return stats
}

// calculateArea approximates the area in km² of a lon/lat polygon by scaling
// its planar area at the mid latitude of its bounds.
func calculateArea(p geom.Polygonal) float64 {
	b := p.Bounds()
	// Более точный расчет площади с учетом кривизны Земли
	latMid := (b.Min.Y + b.Max.Y) / 2 * math.Pi / 180

	// Коэффициенты перевода градусов в метры
	kx := 111132.92 - 559.82*math.Cos(2*latMid)
	ky := 111412.84 * math.Cos(latMid)

	return math.Abs(p.Area()*kx*ky) / 1000000
}
