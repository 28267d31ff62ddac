package core

import (
	"context"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
	"go.uber.org/zap"

	"wardmap/internal/domain/model"
)

type Predicate string

const (
	// PredicateIntersects matches when interiors overlap; touching edges do not count.
	PredicateIntersects Predicate = "intersects"
	// PredicateWithin matches when the left polygon lies entirely inside the right one.
	PredicateWithin Predicate = "within"
	// PredicateCentroid matches when the left centroid lies inside the right
	// polygon. A centroid on a boundary goes to the lowest-index polygon it touches.
	PredicateCentroid Predicate = "centroid"
	// PredicateDominant assigns each left polygon to the single right
	// polygon it overlaps most.
	PredicateDominant Predicate = "dominant"
)

// areaTolerance is the overlap, relative to the smaller polygon, below which
// two polygons are treated as only touching.
const areaTolerance = 1e-9

func ParsePredicate(s string) (Predicate, error) {
	switch p := Predicate(s); p {
	case PredicateIntersects, PredicateWithin, PredicateCentroid, PredicateDominant:
		return p, nil
	}
	return "", model.JoinError("unknown predicate %q", s)
}

type JoinOptions struct {
	Predicate   Predicate
	LeftSuffix  string
	RightSuffix string
}

type SpatialJoiner struct {
	logger *zap.Logger
}

func NewSpatialJoiner(logger *zap.Logger) *SpatialJoiner {
	return &SpatialJoiner{logger: logger}
}

type indexedPolygon struct {
	geom.Polygonal
	index int
}

// Join performs an inner spatial join of left onto right. Every matching
// pair yields one row, ordered by left index then right index. Attribute
// names present on both sides get "_<suffix>" appended.
func (j *SpatialJoiner) Join(
	ctx context.Context,
	left, right *model.Dataset,
	opts JoinOptions,
) (*model.JoinedTable, model.PartitionReport, error) {
	report := model.PartitionReport{LeftTotal: len(left.Features)}

	if left.CRS != right.CRS {
		return nil, report, model.JoinError("datasets are in different CRS: %s is %s, %s is %s",
			left.Name, left.CRS, right.Name, right.CRS)
	}
	if _, err := ParsePredicate(string(opts.Predicate)); err != nil {
		return nil, report, err
	}

	leftNames, rightNames, err := joinColumns(left.Fields, right.Fields, opts)
	if err != nil {
		return nil, report, err
	}
	table := &model.JoinedTable{}
	for _, f := range left.Fields {
		table.Columns = append(table.Columns, leftNames[f])
	}
	for _, f := range right.Fields {
		table.Columns = append(table.Columns, rightNames[f])
	}

	tree := rtree.NewTree(25, 50)
	for i, f := range right.Features {
		tree.Insert(&indexedPolygon{Polygonal: f.Geometry, index: i})
	}

	for _, lf := range left.Features {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		var candidates []int
		for _, s := range tree.SearchIntersect(lf.Geometry.Bounds()) {
			candidates = append(candidates, s.(*indexedPolygon).index)
		}
		sort.Ints(candidates)

		matches := match(lf.Geometry, right, candidates, opts.Predicate)
		switch len(matches) {
		case 0:
			report.Dropped = append(report.Dropped, lf.Index)
			continue
		case 1:
		default:
			report.FanOut = append(report.FanOut, lf.Index)
		}
		report.Matched++

		for _, ri := range matches {
			rf := right.Features[ri]
			attrs := make(map[string]string, len(table.Columns))
			for k, v := range lf.Attrs {
				attrs[leftNames[k]] = v
			}
			for k, v := range rf.Attrs {
				attrs[rightNames[k]] = v
			}
			table.Rows = append(table.Rows, model.JoinedRow{
				LeftIndex:  lf.Index,
				RightIndex: rf.Index,
				Geometry:   lf.Geometry,
				Attrs:      attrs,
			})
		}
	}

	j.logger.Debug("spatial join finished",
		zap.String("predicate", string(opts.Predicate)),
		zap.Int("left", len(left.Features)),
		zap.Int("right", len(right.Features)),
		zap.Int("rows", len(table.Rows)),
		zap.Int("dropped", len(report.Dropped)),
		zap.Int("fan_out", len(report.FanOut)),
	)
	return table, report, nil
}

// joinColumns maps source attribute names to output column names.
func joinColumns(left, right []string, opts JoinOptions) (map[string]string, map[string]string, error) {
	inRight := make(map[string]bool, len(right))
	for _, f := range right {
		inRight[f] = true
	}
	collide := make(map[string]bool)
	for _, f := range left {
		if inRight[f] {
			collide[f] = true
		}
	}

	if len(collide) > 0 {
		if opts.LeftSuffix == "" || opts.RightSuffix == "" {
			return nil, nil, model.JoinError("columns collide but a suffix is empty")
		}
		if opts.LeftSuffix == opts.RightSuffix {
			return nil, nil, model.JoinError("left and right suffix are both %q", opts.LeftSuffix)
		}
	}

	leftNames := make(map[string]string, len(left))
	for _, f := range left {
		leftNames[f] = f
		if collide[f] {
			leftNames[f] = f + "_" + opts.LeftSuffix
		}
	}
	rightNames := make(map[string]string, len(right))
	for _, f := range right {
		rightNames[f] = f
		if collide[f] {
			rightNames[f] = f + "_" + opts.RightSuffix
		}
	}
	return leftNames, rightNames, nil
}

// match returns the right indices (ascending) that satisfy pred for g.
func match(g geom.Polygonal, right *model.Dataset, candidates []int, pred Predicate) []int {
	var out []int
	switch pred {
	case PredicateIntersects:
		for _, ri := range candidates {
			if overlaps(g, right.Features[ri].Geometry) {
				out = append(out, ri)
			}
		}
	case PredicateWithin:
		area := g.Area()
		for _, ri := range candidates {
			if area > 0 && overlapArea(g, right.Features[ri].Geometry) >= area*(1-1e-6) {
				out = append(out, ri)
			}
		}
	case PredicateCentroid:
		c := xy.MultiPolygonCentroid(model.ToMultiPolygon(g))
		edge := -1
		for _, ri := range candidates {
			switch locatePoint(right.Features[ri].Geometry, c) {
			case location.Interior:
				out = append(out, ri)
			case location.Boundary:
				if edge < 0 {
					edge = ri
				}
			}
		}
		if len(out) == 0 && edge >= 0 {
			out = append(out, edge)
		}
	case PredicateDominant:
		best, bestArea := -1, 0.0
		for _, ri := range candidates {
			rg := right.Features[ri].Geometry
			a := overlapArea(g, rg)
			if a > bestArea && a > areaTolerance*minArea(g, rg) {
				best, bestArea = ri, a
			}
		}
		if best >= 0 {
			out = append(out, best)
		}
	}
	return out
}

func overlapArea(a, b geom.Polygonal) float64 {
	inter := a.Intersection(b)
	if inter == nil {
		return 0
	}
	return inter.Area()
}

func overlaps(a, b geom.Polygonal) bool {
	if !a.Bounds().Overlaps(b.Bounds()) {
		return false
	}
	return overlapArea(a, b) > areaTolerance*minArea(a, b)
}

func minArea(a, b geom.Polygonal) float64 {
	aa, ba := a.Area(), b.Area()
	if aa < ba {
		return aa
	}
	return ba
}

// locatePoint places c relative to g. Points strictly inside a hole are
// exterior; points on a hole ring are on the boundary.
func locatePoint(g geom.Polygonal, c gogeom.Coord) location.Type {
	mp := model.ToMultiPolygon(g)
	loc := location.Exterior
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		shell := xy.LocatePointInRing(gogeom.XY, c, poly.LinearRing(0).FlatCoords())
		if shell == location.Exterior {
			continue
		}
		for h := 1; h < poly.NumLinearRings() && shell == location.Interior; h++ {
			switch xy.LocatePointInRing(gogeom.XY, c, poly.LinearRing(h).FlatCoords()) {
			case location.Interior:
				shell = location.Exterior
			case location.Boundary:
				shell = location.Boundary
			}
		}
		switch shell {
		case location.Interior:
			return location.Interior
		case location.Boundary:
			loc = location.Boundary
		}
	}
	return loc
}
