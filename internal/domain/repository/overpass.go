package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/serjvanilla/go-overpass"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"wardmap/internal/domain/model"
)

type OverpassRepository struct {
	client  *overpass.Client
	timeout time.Duration
}

func NewOverpassRepository(endpoint string, maxParallel int, timeout time.Duration) *OverpassRepository {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	if maxParallel <= 0 {
		maxParallel = 2
	}
	client := overpass.NewWithSettings(endpoint, maxParallel, httpClient)
	return &OverpassRepository{
		client:  &client,
		timeout: timeout,
	}
}

// BoundarySource returns a source of administrative areas inside bbox. The
// OSM name tag is copied into nameField so the layer looks like any other
// counties dataset.
func (r *OverpassRepository) BoundarySource(name string, bbox model.Bounds, adminLevel int, nameField string) DatasetSource {
	return SourceFunc(func(ctx context.Context) (*model.Dataset, error) {
		boundaries, err := r.GetAdminBoundaries(ctx, bbox, adminLevel)
		if err != nil {
			return nil, model.LoadError("%s: %w", name, err)
		}
		ds, err := boundariesToDataset(name, nameField, boundaries)
		if err != nil {
			return nil, model.LoadError("%s: %w", name, err)
		}
		return ds, nil
	})
}

func (r *OverpassRepository) GetAdminBoundaries(ctx context.Context, bbox model.Bounds, adminLevel int) ([]model.OSMBoundary, error) {
	secs := int(r.timeout.Seconds())
	if secs <= 0 {
		secs = 180
	}
	query := fmt.Sprintf(`
		[out:json][timeout:%d];
		(
			relation["boundary"="administrative"]["admin_level"="%d"](%s);
		);
		out body;
		>;
		out skel qt;
	`, secs, adminLevel, bbox.OverpassBBox())

	result, err := r.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute boundary query: %w", err)
	}

	return convertToBoundaries(result)
}

func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := r.client.Query(query)
	if err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}

	return &result, ctx.Err()
}

func convertToBoundaries(result *overpass.Result) ([]model.OSMBoundary, error) {
	ids := make([]int64, 0, len(result.Relations))
	for id := range result.Relations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var boundaries []model.OSMBoundary
	for _, id := range ids {
		rel := result.Relations[id]
		if rel.Tags["boundary"] != "administrative" {
			continue
		}

		var outerWays, innerWays [][]*overpass.Node
		for _, m := range rel.Members {
			if m.Type != overpass.ElementTypeWay || m.Way == nil || len(m.Way.Nodes) == 0 {
				continue
			}
			switch m.Role {
			case "inner":
				innerWays = append(innerWays, m.Way.Nodes)
			case "outer", "":
				outerWays = append(outerWays, m.Way.Nodes)
			}
		}

		outer, err := stitchRings(outerWays)
		if err != nil {
			return nil, fmt.Errorf("relation %d: outer: %w", id, err)
		}
		if len(outer) == 0 {
			continue
		}
		inner, err := stitchRings(innerWays)
		if err != nil {
			return nil, fmt.Errorf("relation %d: inner: %w", id, err)
		}

		boundaries = append(boundaries, model.OSMBoundary{
			ID:         id,
			Name:       rel.Tags["name"],
			AdminLevel: rel.Tags["admin_level"],
			Tags:       rel.Tags,
			Outer:      outer,
			Inner:      inner,
		})
	}

	return boundaries, nil
}

// stitchRings joins way segments end to end into closed rings. Segments may
// arrive in any order and direction.
func stitchRings(ways [][]*overpass.Node) ([][]model.LonLat, error) {
	used := make([]bool, len(ways))
	var rings [][]model.LonLat

	for start := range ways {
		if used[start] {
			continue
		}
		used[start] = true
		ring := append([]*overpass.Node(nil), ways[start]...)

		for ring[0].ID != ring[len(ring)-1].ID {
			tail := ring[len(ring)-1].ID
			found := false
			for i, w := range ways {
				if used[i] {
					continue
				}
				switch {
				case w[0].ID == tail:
					ring = append(ring, w[1:]...)
				case w[len(w)-1].ID == tail:
					for j := len(w) - 2; j >= 0; j-- {
						ring = append(ring, w[j])
					}
				default:
					continue
				}
				used[i] = true
				found = true
				break
			}
			if !found {
				return nil, fmt.Errorf("ring starting at node %d does not close", ring[0].ID)
			}
		}

		if len(ring) < 4 {
			return nil, fmt.Errorf("ring starting at node %d has %d nodes", ring[0].ID, len(ring))
		}
		coords := make([]model.LonLat, len(ring))
		for i, n := range ring {
			coords[i] = model.LonLat{Lon: n.Lon, Lat: n.Lat}
		}
		rings = append(rings, coords)
	}

	return rings, nil
}

// boundariesToDataset builds polygons from stitched rings. Each inner ring
// becomes a hole of the first outer ring containing its first vertex.
func boundariesToDataset(name, nameField string, boundaries []model.OSMBoundary) (*model.Dataset, error) {
	sr, err := proj.Parse(WGS84)
	if err != nil {
		return nil, err
	}
	ds := &model.Dataset{
		Name:   name,
		Source: "overpass",
		SR:     sr,
		CRS:    "EPSG:4326",
		Fields: []string{nameField, "osm_id", "admin_level"},
	}

	for i, b := range boundaries {
		polys := make(geom.MultiPolygon, len(b.Outer))
		flat := make([][]float64, len(b.Outer))
		for j, ring := range b.Outer {
			polys[j] = geom.Polygon{toPath(ring)}
			flat[j] = toFlat(ring)
		}
		for _, hole := range b.Inner {
			p := gogeom.Coord{hole[0].Lon, hole[0].Lat}
			for j := range b.Outer {
				if xy.LocatePointInRing(gogeom.XY, p, flat[j]) != location.Exterior {
					polys[j] = append(polys[j], toPath(hole))
					break
				}
			}
		}

		var g geom.Polygonal = polys
		if len(polys) == 1 {
			g = polys[0]
		}
		ds.Features = append(ds.Features, model.Feature{
			Index:    i,
			Geometry: g,
			Attrs: map[string]string{
				nameField:     b.Name,
				"osm_id":      strconv.FormatInt(b.ID, 10),
				"admin_level": b.AdminLevel,
			},
		})
	}

	return ds, nil
}

func toPath(ring []model.LonLat) geom.Path {
	path := make(geom.Path, len(ring))
	for i, c := range ring {
		path[i] = geom.Point{X: c.Lon, Y: c.Lat}
	}
	return path
}

func toFlat(ring []model.LonLat) []float64 {
	flat := make([]float64, 0, 2*len(ring))
	for _, c := range ring {
		flat = append(flat, c.Lon, c.Lat)
	}
	return flat
}
