package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ctessum/geom"
	ctshp "github.com/ctessum/geom/encoding/shp"
	"github.com/jonas-p/go-shp"

	"wardmap/internal/domain/model"
)

var (
	wktName      = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS|PROJCRS|GEOGCRS)\["([^"]+)"`)
	wktAuthority = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\]\s*$`)
)

// ShapefileRepository reads a polygon shapefile (.shp/.shx/.dbf/.prj).
type ShapefileRepository struct {
	name     string
	path     string
	required []string
}

// NewShapefileRepository returns a source for the shapefile at path. Load
// fails if any of the required attribute columns is absent.
func NewShapefileRepository(name, path string, required ...string) *ShapefileRepository {
	return &ShapefileRepository{name: name, path: path, required: required}
}

func (r *ShapefileRepository) Load(ctx context.Context) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.path); err != nil {
		return nil, model.LoadError("%s: %w", r.name, err)
	}

	base := strings.TrimSuffix(r.path, ".shp")
	prj, err := os.ReadFile(base + ".prj")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.LoadError("%s: %s.prj: %w", r.name, base, model.ErrMissingCRS)
		}
		return nil, model.LoadError("%s: reading projection: %w", r.name, err)
	}

	fields, err := r.readSchema()
	if err != nil {
		return nil, err
	}
	for _, req := range r.required {
		if !contains(fields, req) {
			return nil, model.LoadError("%s: missing attribute column %s", r.name, req)
		}
	}

	dec, err := ctshp.NewDecoder(r.path)
	if err != nil {
		return nil, model.LoadError("%s: %w", r.name, err)
	}
	defer dec.Close()

	sr, err := dec.SR()
	if err != nil {
		return nil, model.LoadError("%s: parsing projection: %w", r.name, err)
	}

	ds := &model.Dataset{
		Name:   r.name,
		Source: r.path,
		SR:     sr,
		CRS:    crsLabel(string(prj)),
		Fields: fields,
	}

	for i := 0; ; i++ {
		g, attrs, more := dec.DecodeRowFields(fields...)
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, model.LoadError("%s: row %d: geometry is %T, want polygon", r.name, i, g)
		}
		for k, v := range attrs {
			attrs[k] = strings.Trim(v, "\x00 ")
		}
		ds.Features = append(ds.Features, model.Feature{Index: i, Geometry: poly, Attrs: attrs})
	}
	if err := dec.Error(); err != nil {
		return nil, model.LoadError("%s: %w", r.name, err)
	}

	return ds, nil
}

// readSchema returns the DBF column names and rejects non-polygon layers.
func (r *ShapefileRepository) readSchema() ([]string, error) {
	rd, err := shp.Open(r.path)
	if err != nil {
		return nil, model.LoadError("%s: %w", r.name, err)
	}
	defer rd.Close()

	switch rd.GeometryType {
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
	default:
		return nil, model.LoadError("%s: shape type %d is not a polygon layer", r.name, rd.GeometryType)
	}

	var fields []string
	for _, f := range rd.Fields() {
		fields = append(fields, f.String())
	}
	return fields, nil
}

// crsLabel derives a short label from .prj WKT: "EPSG:<code>" when the
// top-level authority is given, otherwise the CRS name.
func crsLabel(wkt string) string {
	if m := wktAuthority.FindStringSubmatch(wkt); m != nil {
		return "EPSG:" + m[1]
	}
	if m := wktName.FindStringSubmatch(wkt); m != nil {
		return m[1]
	}
	return fmt.Sprintf("custom (%d bytes WKT)", len(wkt))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
