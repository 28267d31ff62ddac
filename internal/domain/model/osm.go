package model

import "strconv"

// OSMBoundary is an administrative boundary relation after its member ways
// have been stitched into closed rings (lon/lat, WGS84).
type OSMBoundary struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	AdminLevel string            `json:"admin_level"`
	Tags       map[string]string `json:"tags"`
	Outer      [][]LonLat        `json:"outer"`
	Inner      [][]LonLat        `json:"inner"`
}

type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// OverpassBBox formats b as Overpass expects it: south,west,north,east.
func (b Bounds) OverpassBBox() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.MinLat) + "," + f(b.MinLon) + "," + f(b.MaxLat) + "," + f(b.MaxLon)
}
