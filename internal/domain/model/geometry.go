package model

import (
	"fmt"

	"github.com/ctessum/geom"
	gogeom "github.com/twpayne/go-geom"
)

// ToMultiPolygon converts a polygonal geometry into a go-geom MultiPolygon.
// Rings are closed if the source left them open.
func ToMultiPolygon(p geom.Polygonal) *gogeom.MultiPolygon {
	polys := p.Polygons()
	coords := make([][][]gogeom.Coord, 0, len(polys))
	for _, poly := range polys {
		rings := make([][]gogeom.Coord, 0, len(poly))
		for _, path := range poly {
			if len(path) == 0 {
				continue
			}
			ring := make([]gogeom.Coord, 0, len(path)+1)
			for _, pt := range path {
				ring = append(ring, gogeom.Coord{pt.X, pt.Y})
			}
			if first, last := path[0], path[len(path)-1]; first != last {
				ring = append(ring, gogeom.Coord{first.X, first.Y})
			}
			rings = append(rings, ring)
		}
		if len(rings) > 0 {
			coords = append(coords, rings)
		}
	}
	return gogeom.NewMultiPolygon(gogeom.XY).MustSetCoords(coords)
}

// FromGoGeom converts a go-geom Polygon or MultiPolygon back into a
// polygonal geometry. Other geometry types are rejected.
func FromGoGeom(g gogeom.T) (geom.Polygonal, error) {
	switch t := g.(type) {
	case *gogeom.Polygon:
		return polygonFromCoords(t.Coords()), nil
	case *gogeom.MultiPolygon:
		mp := make(geom.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, polygonFromCoords(t.Polygon(i).Coords()))
		}
		if len(mp) == 1 {
			return mp[0], nil
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T, want polygon or multipolygon", g)
	}
}

func polygonFromCoords(rings [][]gogeom.Coord) geom.Polygon {
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		path := make(geom.Path, 0, len(ring))
		for _, c := range ring {
			path = append(path, geom.Point{X: c.X(), Y: c.Y()})
		}
		poly = append(poly, path)
	}
	return poly
}
