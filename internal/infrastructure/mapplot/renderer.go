// Package mapplot draws the ward population choropleth with county outlines,
// a graticule and a colour bar, and writes it as a PNG.
package mapplot

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"wardmap/internal/config"
	"wardmap/internal/domain/model"
)

var countyColor = color.NRGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}

type Renderer struct {
	logger *zap.Logger
}

func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render draws wards filled by valueField and counties as outlines, then
// writes the image to cfg.Output. The file is written next to its final
// location and renamed into place, so a failed render never leaves a
// partial image behind.
func (r *Renderer) Render(ctx context.Context, wards, counties *model.Dataset, valueField string, cfg config.RenderConfig) error {
	if err := cfg.Validate(); err != nil {
		return model.RenderError("%w", err)
	}
	cm, err := newColorMap(cfg.ColorMap, cfg.ColorMin, cfg.ColorMax)
	if err != nil {
		return model.RenderError("%w", err)
	}
	if len(wards.Features) == 0 {
		return model.RenderError("%s: %w", wards.Name, model.ErrEmptyDataset)
	}
	if !wards.HasField(valueField) {
		return model.RenderError("%s has no %s attribute", wards.Name, valueField)
	}

	wardPlots, err := wardPolygons(wards, valueField, cm, cfg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img := vgimg.NewWith(
		vgimg.UseWH(vg.Length(cfg.WidthIn)*vg.Inch, vg.Length(cfg.HeightIn)*vg.Inch),
		vgimg.UseDPI(cfg.DPI),
	)
	dc := draw.New(img)
	width := dc.Max.X - dc.Min.X
	height := dc.Max.Y - dc.Min.Y

	strip := width * 0.16
	margin := vg.Inch * 0.4
	mapArea := draw.Crop(dc, margin, -(strip + margin/2), margin, -margin)
	barArea := draw.Crop(dc, width-strip+margin/2, -margin*1.5, height*0.15, -height*0.15)

	mp := plot.New()
	mp.HideAxes()
	for _, p := range wardPlots {
		mp.Add(p)
	}

	outline := outlineStyle()
	var legendThumb plot.Thumbnailer
	for _, f := range counties.Features {
		p, err := plotter.NewPolygon(rings(f.Geometry)...)
		if err != nil {
			return model.RenderError("county %d: %w", f.Index, err)
		}
		p.LineStyle = outline
		mp.Add(p)
		if legendThumb == nil {
			legendThumb = p
		}
	}

	if counties.SR != nil {
		grid, err := newGraticule(counties.SR, cfg.GridLons, cfg.GridLats, sides{
			top: cfg.Labels.Top, bottom: cfg.Labels.Bottom,
			left: cfg.Labels.Left, right: cfg.Labels.Right,
		})
		if err != nil {
			return model.RenderError("%w", err)
		}
		if grid != nil {
			mp.Add(grid)
		}
	}

	if legendThumb != nil && cfg.LegendLabel != "" {
		mp.Legend.Top = true
		mp.Legend.Left = true
		mp.Legend.TextStyle.Font = font.From(plot.DefaultFont, vg.Points(11))
		mp.Legend.Add(cfg.LegendLabel, legendThumb)
	}

	b := wards.Bounds()
	if cb := counties.Bounds(); cb != nil {
		b.Extend(cb)
	}
	fitEqualAspect(mp, b, mp.DataCanvas(mapArea))

	bar := plot.New()
	bar.HideX()
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	bar.Y.Label.Text = cfg.ColorbarLabel
	bar.Y.Min, bar.Y.Max = cfg.ColorMin, cfg.ColorMax

	mp.Draw(mapArea)
	bar.Draw(barArea)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writePNG(img, cfg.Output); err != nil {
		return model.RenderError("%w", err)
	}

	r.logger.Debug("map rendered",
		zap.String("path", cfg.Output),
		zap.Int("wards", len(wards.Features)),
		zap.Int("counties", len(counties.Features)),
		zap.Int("dpi", cfg.DPI),
	)
	return nil
}

func wardPolygons(wards *model.Dataset, valueField string, cm palette.ColorMap, cfg config.RenderConfig) ([]*plotter.Polygon, error) {
	out := make([]*plotter.Polygon, 0, len(wards.Features))
	for _, f := range wards.Features {
		raw, ok := f.Attrs[valueField]
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, model.RenderError("ward %d has no %s value", f.Index, valueField)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) {
			return nil, model.RenderError("ward %d: %s=%q is not a number", f.Index, valueField, raw)
		}
		fill, err := cm.At(clamp(v, cfg.ColorMin, cfg.ColorMax))
		if err != nil {
			return nil, model.RenderError("ward %d: %w", f.Index, err)
		}

		p, err := plotter.NewPolygon(rings(f.Geometry)...)
		if err != nil {
			return nil, model.RenderError("ward %d: %w", f.Index, err)
		}
		p.Color = fill
		p.LineStyle = draw.LineStyle{Color: color.Gray{Y: 0x40}, Width: vg.Points(0.1)}
		out = append(out, p)
	}
	return out, nil
}

func outlineStyle() draw.LineStyle {
	return draw.LineStyle{Color: countyColor, Width: vg.Points(1)}
}

// rings flattens every ring of every polygon part into plotter input.
func rings(g geom.Polygonal) []plotter.XYer {
	var out []plotter.XYer
	for _, poly := range g.Polygons() {
		for _, path := range poly {
			xys := make(plotter.XYs, len(path))
			for i, pt := range path {
				xys[i].X, xys[i].Y = pt.X, pt.Y
			}
			out = append(out, xys)
		}
	}
	return out
}

// fitEqualAspect sets the axis ranges so one data unit has the same length
// on both axes of dc, with b centred and a small margin.
func fitEqualAspect(p *plot.Plot, b *geom.Bounds, dc draw.Canvas) {
	if b == nil {
		return
	}
	cw := float64(dc.Max.X - dc.Min.X)
	ch := float64(dc.Max.Y - dc.Min.Y)
	dx := (b.Max.X - b.Min.X) * 1.04
	dy := (b.Max.Y - b.Min.Y) * 1.04
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}
	scale := math.Max(dx/cw, dy/ch)
	cx, cy := (b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2
	p.X.Min, p.X.Max = cx-scale*cw/2, cx+scale*cw/2
	p.Y.Min, p.Y.Max = cy-scale*ch/2, cy+scale*ch/2
}

func writePNG(img *vgimg.Canvas, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wardmap-*.png")
	if err != nil {
		return fmt.Errorf("create image in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(tmp); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move image to %s: %w", path, err)
	}
	return nil
}
