package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/twpayne/go-geom/encoding/wkb"

	"wardmap/internal/domain/model"
)

// WGS84 is the definition PostGIS and Overpass geometries are returned in.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

type PostGISRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(ctx context.Context, connStr string) (*PostGISRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostGISRepository{db: db}, nil
}

// NewPostGISRepositoryFromDB wraps an existing handle.
func NewPostGISRepositoryFromDB(db *sqlx.DB) *PostGISRepository {
	return &PostGISRepository{db: db}
}

func (r *PostGISRepository) DB() *sqlx.DB { return r.db }

func (r *PostGISRepository) Close() error { return r.db.Close() }

// BoundaryQuery selects polygons from a PostGIS table. Fields are read as
// text; BBox ("lat1,lon1,lat2,lon2") is optional.
type BoundaryQuery struct {
	Name       string
	Table      string
	GeomColumn string
	Fields     []string
	BBox       string
}

// Source binds q to r.
func (r *PostGISRepository) Source(q BoundaryQuery) DatasetSource {
	return SourceFunc(func(ctx context.Context) (*model.Dataset, error) {
		return r.GetBoundaries(ctx, q)
	})
}

func (r *PostGISRepository) GetBoundaries(ctx context.Context, q BoundaryQuery) (*model.Dataset, error) {
	query, args, err := buildBoundaryQuery(q)
	if err != nil {
		return nil, model.LoadError("%s: %w", q.Name, err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.LoadError("%s: failed to query boundaries: %w", q.Name, err)
	}
	defer rows.Close()

	sr, err := proj.Parse(WGS84)
	if err != nil {
		return nil, model.LoadError("%s: %w", q.Name, err)
	}
	ds := &model.Dataset{
		Name:   q.Name,
		Source: "postgis:" + q.Table,
		SR:     sr,
		CRS:    "EPSG:4326",
		Fields: q.Fields,
	}

	for i := 0; rows.Next(); i++ {
		values := make([]sql.NullString, len(q.Fields))
		dest := make([]interface{}, 0, len(q.Fields)+1)
		for j := range values {
			dest = append(dest, &values[j])
		}
		var raw []byte
		dest = append(dest, &raw)
		if err := rows.Scan(dest...); err != nil {
			return nil, model.LoadError("%s: row %d: %w", q.Name, i, err)
		}

		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, model.LoadError("%s: row %d: decoding geometry: %w", q.Name, i, err)
		}
		poly, err := model.FromGoGeom(g)
		if err != nil {
			return nil, model.LoadError("%s: row %d: %w", q.Name, i, err)
		}

		attrs := make(map[string]string, len(q.Fields))
		for j, f := range q.Fields {
			attrs[f] = strings.TrimSpace(values[j].String)
		}
		ds.Features = append(ds.Features, model.Feature{Index: i, Geometry: poly, Attrs: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, model.LoadError("%s: %w", q.Name, err)
	}

	return ds, nil
}

func buildBoundaryQuery(q BoundaryQuery) (string, []interface{}, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("table is required")
	}
	geomCol := q.GeomColumn
	if geomCol == "" {
		geomCol = "geom"
	}
	g := pq.QuoteIdentifier(geomCol)

	cols := make([]string, 0, len(q.Fields)+1)
	for _, f := range q.Fields {
		cols = append(cols, pq.QuoteIdentifier(f)+"::text")
	}
	cols = append(cols, fmt.Sprintf("ST_AsBinary(ST_Transform(%s, 4326))", g))

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), quoteTable(q.Table))

	var args []interface{}
	if q.BBox != "" {
		minLat, minLon, maxLat, maxLon, err := parseBBox(q.BBox)
		if err != nil {
			return "", nil, fmt.Errorf("invalid bbox format: %w", err)
		}
		fmt.Fprintf(&sb, " WHERE ST_Intersects(ST_Transform(%s, 4326), ST_MakeEnvelope($1, $2, $3, $4, 4326))", g)
		args = append(args, minLon, minLat, maxLon, maxLat)
	}
	if len(q.Fields) > 0 {
		sb.WriteString(" ORDER BY 1")
	}

	return sb.String(), args, nil
}

// quoteTable quotes an optionally schema-qualified table name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// parseBBox parses a bbox string in format "lat1,lon1,lat2,lon2" into minLat, minLon, maxLat, maxLon.
func parseBBox(bbox string) (minLat, minLon, maxLat, maxLon float64, err error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("bbox must have 4 components, got %d", len(parts))
	}

	minLat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid minLat: %w", err)
	}
	minLon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid minLon: %w", err)
	}
	maxLat, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid maxLat: %w", err)
	}
	maxLon, err = strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid maxLon: %w", err)
	}

	if minLat < -90 || minLat > 90 || maxLat < -90 || maxLat > 90 {
		return 0, 0, 0, 0, fmt.Errorf("latitude out of range [-90, 90]")
	}
	if minLon < -180 || minLon > 180 || maxLon < -180 || maxLon > 180 {
		return 0, 0, 0, 0, fmt.Errorf("longitude out of range [-180, 180]")
	}
	if minLat > maxLat || minLon > maxLon {
		return 0, 0, 0, 0, fmt.Errorf("minLat must be <= maxLat and minLon must be <= maxLon")
	}

	return minLat, minLon, maxLat, maxLon, nil
}

// ParseBounds is parseBBox returning model.Bounds.
func ParseBounds(bbox string) (model.Bounds, error) {
	minLat, minLon, maxLat, maxLon, err := parseBBox(bbox)
	if err != nil {
		return model.Bounds{}, err
	}
	return model.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}
