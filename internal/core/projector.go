package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"go.uber.org/zap"

	"wardmap/internal/domain/model"
)

type EPSGEntry struct {
	Code int
	Name string
	Def  string
}

// epsgRegistry holds the PROJ.4 definitions of the supported target systems.
var epsgRegistry = map[int]EPSGEntry{
	4326:  {4326, "WGS 84", "+proj=longlat +datum=WGS84 +no_defs"},
	4258:  {4258, "ETRS89", "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs"},
	3857:  {3857, "WGS 84 / Pseudo-Mercator", "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"},
	2157:  {2157, "IRENET95 / Irish Transverse Mercator", "+proj=tmerc +lat_0=53.5 +lon_0=-8 +k=0.99982 +x_0=600000 +y_0=750000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"},
	2158:  {2158, "IRENET95 / UTM zone 29N", "+proj=utm +zone=29 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"},
	29902: {29902, "TM65 / Irish Grid", "+proj=tmerc +lat_0=53.5 +lon_0=-8 +k=1.000035 +x_0=200000 +y_0=250000 +ellps=mod_airy +towgs84=482.5,-130.6,564.6,-1.042,-0.214,-0.631,8.15 +units=m +no_defs"},
	29903: {29903, "TM75 / Irish Grid", "+proj=tmerc +lat_0=53.5 +lon_0=-8 +k=1.000035 +x_0=200000 +y_0=250000 +ellps=mod_airy +towgs84=482.5,-130.6,564.6,-1.042,-0.214,-0.631,8.15 +units=m +no_defs"},
	32629: {32629, "WGS 84 / UTM zone 29N", "+proj=utm +zone=29 +datum=WGS84 +units=m +no_defs"},
	32630: {32630, "WGS 84 / UTM zone 30N", "+proj=utm +zone=30 +datum=WGS84 +units=m +no_defs"},
}

// SupportedEPSG lists the registry sorted by code.
func SupportedEPSG() []EPSGEntry {
	out := make([]EPSGEntry, 0, len(epsgRegistry))
	for _, e := range epsgRegistry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func EPSGLabel(code int) string { return fmt.Sprintf("EPSG:%d", code) }

// ParseEPSG resolves an EPSG code to a spatial reference.
func ParseEPSG(code int) (*proj.SR, error) {
	e, ok := epsgRegistry[code]
	if !ok {
		return nil, model.ProjectionError("unsupported EPSG code %d", code)
	}
	sr, err := proj.Parse(e.Def)
	if err != nil {
		return nil, model.ProjectionError("parsing EPSG:%d: %w", code, err)
	}
	return sr, nil
}

// IsMetric reports whether sr has metre units, so areas are in m².
func IsMetric(sr *proj.SR) bool {
	if sr == nil {
		return false
	}
	return !(sr.ToMeter > 1.0000001 || sr.ToMeter < 0.999999 || sr.Name == "longlat")
}

type Projector struct {
	logger *zap.Logger
}

func NewProjector(logger *zap.Logger) *Projector {
	return &Projector{logger: logger}
}

// Reproject returns a copy of ds with every geometry transformed into the
// target EPSG system. ds is not modified.
func (p *Projector) Reproject(ds *model.Dataset, epsg int) (*model.Dataset, error) {
	if ds.SR == nil {
		return nil, model.ProjectionError("%s: %w", ds.Name, model.ErrMissingCRS)
	}
	target, err := ParseEPSG(epsg)
	if err != nil {
		return nil, err
	}
	trans, err := ds.SR.NewTransform(target)
	if err != nil {
		return nil, model.ProjectionError("%s: %s -> EPSG:%d: %w", ds.Name, ds.CRS, epsg, err)
	}

	out := &model.Dataset{
		Name:     ds.Name,
		Source:   ds.Source,
		SR:       target,
		CRS:      EPSGLabel(epsg),
		Fields:   append([]string(nil), ds.Fields...),
		Features: make([]model.Feature, 0, len(ds.Features)),
	}
	for _, f := range ds.Features {
		g, err := transformPolygonal(f.Geometry, trans)
		if err != nil {
			return nil, model.ProjectionError("%s: row %d: %w", ds.Name, f.Index, err)
		}
		attrs := make(map[string]string, len(f.Attrs))
		for k, v := range f.Attrs {
			attrs[k] = v
		}
		out.Features = append(out.Features, model.Feature{Index: f.Index, Geometry: g, Attrs: attrs})
	}

	p.logger.Debug("reprojected dataset",
		zap.String("dataset", ds.Name),
		zap.String("from", ds.CRS),
		zap.String("to", out.CRS),
		zap.Int("rows", len(out.Features)),
	)
	return out, nil
}

func transformPolygonal(g geom.Polygonal, trans proj.Transformer) (geom.Polygonal, error) {
	gg, err := g.Transform(trans)
	if err != nil {
		return nil, err
	}
	poly, ok := gg.(geom.Polygonal)
	if !ok {
		return nil, errors.New("transform did not return a polygon")
	}
	return poly, nil
}
