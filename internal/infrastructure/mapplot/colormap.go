package mapplot

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// viridis control points, dark to light.
var viridis = []color.Color{
	color.NRGBA{R: 0x44, G: 0x01, B: 0x54, A: 0xff},
	color.NRGBA{R: 0x46, G: 0x32, B: 0x7e, A: 0xff},
	color.NRGBA{R: 0x36, G: 0x5c, B: 0x8d, A: 0xff},
	color.NRGBA{R: 0x27, G: 0x7f, B: 0x8e, A: 0xff},
	color.NRGBA{R: 0x1f, G: 0xa1, B: 0x87, A: 0xff},
	color.NRGBA{R: 0x4a, G: 0xc1, B: 0x6d, A: 0xff},
	color.NRGBA{R: 0xa0, G: 0xda, B: 0x39, A: 0xff},
	color.NRGBA{R: 0xfd, G: 0xe7, B: 0x25, A: 0xff},
}

var colorMaps = map[string]func() (palette.ColorMap, error){
	"viridis":            func() (palette.ColorMap, error) { return moreland.NewLuminance(viridis) },
	"blackbody":          func() (palette.ColorMap, error) { return moreland.BlackBody(), nil },
	"extended_blackbody": func() (palette.ColorMap, error) { return moreland.ExtendedBlackBody(), nil },
	"kindlmann":          func() (palette.ColorMap, error) { return moreland.Kindlmann(), nil },
	"extended_kindlmann": func() (palette.ColorMap, error) { return moreland.ExtendedKindlmann(), nil },
}

// ColorMapNames lists the accepted render.colormap values.
func ColorMapNames() []string {
	names := make([]string, 0, len(colorMaps))
	for n := range colorMaps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// newColorMap returns the named map scaled to [min, max].
func newColorMap(name string, min, max float64) (palette.ColorMap, error) {
	ctor, ok := colorMaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (known: %v)", name, ColorMapNames())
	}
	cm, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("building colormap %s: %w", name, err)
	}
	cm.SetMin(min)
	cm.SetMax(max)
	return cm, nil
}

// clamp pins v to [min, max] so values outside the colour range take the
// end colours.
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
