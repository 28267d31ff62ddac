package mapplot

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const wgs84 = "+proj=longlat +datum=WGS84 +no_defs"

// graticuleSteps is the number of samples along each meridian or parallel.
const graticuleSteps = 64

// graticule is a plot.Plotter drawing meridians and parallels given in
// degrees over a map in a projected CRS, labelled on the selected edges.
type graticule struct {
	meridians [][]geom.Point // lon constant, in map coordinates
	parallels [][]geom.Point // lat constant, in map coordinates
	lons      []float64
	lats      []float64
	sides     sides

	line  draw.LineStyle
	label draw.TextStyle
}

type sides struct {
	top, bottom, left, right bool
}

// newGraticule projects every grid line into dst. Lines span one grid step
// past the outermost configured values, so they reach the map edges.
func newGraticule(dst *proj.SR, lons, lats []float64, s sides) (*graticule, error) {
	if len(lons) == 0 && len(lats) == 0 {
		return nil, nil
	}
	lons = sortedCopy(lons)
	lats = sortedCopy(lats)

	src, err := proj.Parse(wgs84)
	if err != nil {
		return nil, err
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("graticule transform: %w", err)
	}

	lonLo, lonHi := span(lons)
	latLo, latHi := span(lats)

	g := &graticule{
		lons:  lons,
		lats:  lats,
		sides: s,
		line: draw.LineStyle{
			Color:  color.Gray{Y: 0x80},
			Width:  vg.Points(0.5),
			Dashes: []vg.Length{vg.Points(2), vg.Points(2)},
		},
		label: draw.TextStyle{
			Color:   color.Black,
			Font:    font.From(plot.DefaultFont, vg.Points(9)),
			Handler: plot.DefaultTextHandler,
		},
	}
	for _, lon := range lons {
		l, err := projectLine(trans, lon, latLo, lon, latHi)
		if err != nil {
			return nil, err
		}
		g.meridians = append(g.meridians, l)
	}
	for _, lat := range lats {
		l, err := projectLine(trans, lonLo, lat, lonHi, lat)
		if err != nil {
			return nil, err
		}
		g.parallels = append(g.parallels, l)
	}
	return g, nil
}

func projectLine(trans proj.Transformer, x0, y0, x1, y1 float64) ([]geom.Point, error) {
	ls := make(geom.LineString, 0, graticuleSteps+1)
	for i := 0; i <= graticuleSteps; i++ {
		f := float64(i) / graticuleSteps
		ls = append(ls, geom.Point{X: x0 + (x1-x0)*f, Y: y0 + (y1-y0)*f})
	}
	out, err := ls.Transform(trans)
	if err != nil {
		return nil, fmt.Errorf("graticule line (%g,%g)-(%g,%g): %w", x0, y0, x1, y1, err)
	}
	projected, ok := out.(geom.LineString)
	if !ok {
		return nil, fmt.Errorf("graticule line: unexpected %T", out)
	}
	return projected, nil
}

// Plot implements plot.Plotter.
func (g *graticule) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	toCanvas := func(pts []geom.Point) []vg.Point {
		out := make([]vg.Point, len(pts))
		for i, p := range pts {
			out[i] = vg.Point{X: trX(p.X), Y: trY(p.Y)}
		}
		return out
	}

	pad := vg.Points(3)
	for i, m := range g.meridians {
		line := toCanvas(m)
		c.StrokeLines(g.line, c.ClipLinesXY(line)...)
		text := formatLon(g.lons[i])
		if g.sides.top {
			if x, ok := crossY(line, c.Max.Y); ok && c.ContainsX(x) {
				sty := g.label
				sty.XAlign, sty.YAlign = draw.XCenter, draw.YBottom
				c.FillText(sty, vg.Point{X: x, Y: c.Max.Y + pad}, text)
			}
		}
		if g.sides.bottom {
			if x, ok := crossY(line, c.Min.Y); ok && c.ContainsX(x) {
				sty := g.label
				sty.XAlign, sty.YAlign = draw.XCenter, draw.YTop
				c.FillText(sty, vg.Point{X: x, Y: c.Min.Y - pad}, text)
			}
		}
	}
	for i, p := range g.parallels {
		line := toCanvas(p)
		c.StrokeLines(g.line, c.ClipLinesXY(line)...)
		text := formatLat(g.lats[i])
		if g.sides.left {
			if y, ok := crossX(line, c.Min.X); ok && c.ContainsY(y) {
				sty := g.label
				sty.XAlign, sty.YAlign = draw.XRight, draw.YCenter
				c.FillText(sty, vg.Point{X: c.Min.X - pad, Y: y}, text)
			}
		}
		if g.sides.right {
			if y, ok := crossX(line, c.Max.X); ok && c.ContainsY(y) {
				sty := g.label
				sty.XAlign, sty.YAlign = draw.XLeft, draw.YCenter
				c.FillText(sty, vg.Point{X: c.Max.X + pad, Y: y}, text)
			}
		}
	}
}

// crossY returns the x where the polyline first crosses the horizontal y.
func crossY(line []vg.Point, y vg.Length) (vg.Length, bool) {
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		if (a.Y-y)*(b.Y-y) > 0 || a.Y == b.Y {
			continue
		}
		f := (y - a.Y) / (b.Y - a.Y)
		return a.X + (b.X-a.X)*f, true
	}
	return 0, false
}

// crossX returns the y where the polyline first crosses the vertical x.
func crossX(line []vg.Point, x vg.Length) (vg.Length, bool) {
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		if (a.X-x)*(b.X-x) > 0 || a.X == b.X {
			continue
		}
		f := (x - a.X) / (b.X - a.X)
		return a.Y + (b.Y-a.Y)*f, true
	}
	return 0, false
}

func formatLon(v float64) string { return formatDeg(v, "E", "W") }
func formatLat(v float64) string { return formatDeg(v, "N", "S") }

func formatDeg(v float64, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
	} else if v == 0 {
		hemi = ""
	}
	return strconv.FormatFloat(math.Abs(v), 'f', -1, 64) + "°" + hemi
}

// span pads the range of sorted vals by one grid step on each side.
func span(vals []float64) (lo, hi float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	lo, hi = vals[0], vals[len(vals)-1]
	step := 1.0
	if len(vals) > 1 {
		step = (hi - lo) / float64(len(vals)-1)
	}
	return lo - step, hi + step
}

func sortedCopy(v []float64) []float64 {
	out := append([]float64(nil), v...)
	sort.Float64s(out)
	return out
}
