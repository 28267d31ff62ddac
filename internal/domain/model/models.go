package model

import (
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Dataset is an in-memory polygon layer: geometry plus string attributes.
type Dataset struct {
	Name     string
	Source   string
	SR       *proj.SR
	CRS      string // человекочитаемая метка, например "EPSG:2157"
	Fields   []string
	Features []Feature
}

type Feature struct {
	Index    int
	Geometry geom.Polygonal
	Attrs    map[string]string
}

// HasField reports whether name is one of the dataset's attribute columns.
func (d *Dataset) HasField(name string) bool {
	for _, f := range d.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Bounds returns the union of all feature bounds, or nil for an empty dataset.
func (d *Dataset) Bounds() *geom.Bounds {
	if len(d.Features) == 0 {
		return nil
	}
	b := geom.NewBounds()
	for _, f := range d.Features {
		b.Extend(f.Geometry.Bounds())
	}
	return b
}

type JoinedRow struct {
	LeftIndex  int
	RightIndex int
	Geometry   geom.Polygonal
	Attrs      map[string]string
}

type JoinedTable struct {
	Columns []string
	Rows    []JoinedRow
}

// PartitionReport describes how far the join is from a clean one-to-one
// assignment of wards to counties.
type PartitionReport struct {
	LeftTotal int
	Matched   int
	Dropped   []int // left indices with no match
	FanOut    []int // left indices with more than one match
}

func (r PartitionReport) Clean() bool {
	return len(r.Dropped) == 0 && len(r.FanOut) == 0
}

type Aggregate struct {
	Key    string
	Value  string
	Sums   map[string]int64
	Keys   []string // sorted ascending
	Total  int64
	Extent Extremes
}

// Extremes holds max/min keys. Ties resolve to the lexicographically
// smallest key; every tied key is listed.
type Extremes struct {
	MaxKey   string
	MaxValue int64
	MaxTies  []string
	MinKey   string
	MinValue int64
	MinTies  []string
}

type RegionStats struct {
	Name       string
	AreaKm2    float64
	Density    float64 // people per km²
	HasDensity bool
}

type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	TargetEPSG  int
	WardsCRS    string
	CountiesCRS string
	CRSMatch    bool
	JoinedRows  int
	Partition   PartitionReport
	Dropped     []string // names of wards with no county
	FannedOut   []string // names of wards matched to several counties
	ByCounty    *Aggregate
	ByWard      *Aggregate
	CountyStats map[string]RegionStats
	OutputPath  string
}
