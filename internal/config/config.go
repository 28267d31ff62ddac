// Package config holds the wardmap run configuration and its loader.
package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	SourceShapefile = "shapefile"
	SourcePostGIS   = "postgis"
	SourceOverpass  = "overpass"

	PartitionOff   = "off"
	PartitionWarn  = "warn"
	PartitionError = "error"

	DefaultConfigFile = "wardmap.yaml"
	EnvPrefix         = "WARDMAP_"
)

// Config is the full set of recognised options. Every stage receives the
// part it needs; nothing is read from globals.
type Config struct {
	Wards           DatasetConfig  `koanf:"wards"`
	Counties        DatasetConfig  `koanf:"counties"`
	PopulationField string         `koanf:"population_field"`
	TargetEPSG      int            `koanf:"target_epsg"`
	Join            JoinConfig     `koanf:"join"`
	Render          RenderConfig   `koanf:"render"`
	Postgres        PostgresConfig `koanf:"postgres"`
	Overpass        OverpassConfig `koanf:"overpass"`
	Verbose         bool           `koanf:"verbose"`
}

type DatasetConfig struct {
	Source    string `koanf:"source"`
	Path      string `koanf:"path"`
	NameField string `koanf:"name_field"`

	// postgis source
	Table      string `koanf:"table"`
	GeomColumn string `koanf:"geom_column"`
	BBox       string `koanf:"bbox"` // "minLat,minLon,maxLat,maxLon"
}

type JoinConfig struct {
	Predicate      string `koanf:"predicate"`
	LeftSuffix     string `koanf:"left_suffix"`
	RightSuffix    string `koanf:"right_suffix"`
	PartitionCheck string `koanf:"partition_check"`
}

type RenderConfig struct {
	Enabled       bool      `koanf:"enabled"`
	Output        string    `koanf:"output"`
	DPI           int       `koanf:"dpi"`
	WidthIn       float64   `koanf:"width_in"`
	HeightIn      float64   `koanf:"height_in"`
	ColorMin      float64   `koanf:"color_min"`
	ColorMax      float64   `koanf:"color_max"`
	ColorMap      string    `koanf:"colormap"`
	ColorbarLabel string    `koanf:"colorbar_label"`
	LegendLabel   string    `koanf:"legend_label"`
	GridLons      []float64 `koanf:"grid_lons"`
	GridLats      []float64 `koanf:"grid_lats"`
	Labels        GridSides `koanf:"labels"`
	Interactive   bool      `koanf:"interactive"`
	RemoveStale   bool      `koanf:"remove_stale"`
}

// GridSides selects which map edges carry graticule labels.
type GridSides struct {
	Top    bool `koanf:"top"`
	Bottom bool `koanf:"bottom"`
	Left   bool `koanf:"left"`
	Right  bool `koanf:"right"`
}

type PostgresConfig struct {
	URL string `koanf:"url"`
}

type OverpassConfig struct {
	Endpoint    string        `koanf:"endpoint"`
	BBox        string        `koanf:"bbox"`
	AdminLevel  int           `koanf:"admin_level"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxParallel int           `koanf:"max_parallel"`
}

var predicates = map[string]bool{
	"intersects": true,
	"within":     true,
	"centroid":   true,
	"dominant":   true,
}

// Validate checks ranges and enumerations. It does not touch the filesystem.
func (c *Config) Validate() error {
	if err := c.Wards.validate("wards"); err != nil {
		return err
	}
	if err := c.Counties.validate("counties"); err != nil {
		return err
	}
	if c.Wards.Source == SourceOverpass {
		return fmt.Errorf("wards: overpass boundaries carry no %s attribute", c.PopulationField)
	}
	if c.PopulationField == "" {
		return fmt.Errorf("population_field is required")
	}
	if c.TargetEPSG <= 0 {
		return fmt.Errorf("target_epsg must be a positive EPSG code, got %d", c.TargetEPSG)
	}
	if !predicates[c.Join.Predicate] {
		return fmt.Errorf("join.predicate %q is not one of intersects, within, centroid, dominant", c.Join.Predicate)
	}
	switch c.Join.PartitionCheck {
	case PartitionOff, PartitionWarn, PartitionError:
	default:
		return fmt.Errorf("join.partition_check must be off, warn or error, got %q", c.Join.PartitionCheck)
	}
	if c.Render.Enabled {
		if err := c.Render.Validate(); err != nil {
			return err
		}
	}
	if c.Counties.Source == SourceOverpass && c.Overpass.Endpoint == "" {
		return fmt.Errorf("overpass.endpoint is required when counties.source is overpass")
	}
	if (c.Wards.Source == SourcePostGIS || c.Counties.Source == SourcePostGIS) && c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required for a postgis source")
	}
	return nil
}

func (d DatasetConfig) validate(name string) error {
	switch d.Source {
	case SourceShapefile:
		if d.Path == "" {
			return fmt.Errorf("%s.path is required for a shapefile source", name)
		}
		if !strings.EqualFold(extOf(d.Path), ".shp") {
			return fmt.Errorf("%s.path must point at a .shp file, got %s", name, d.Path)
		}
	case SourcePostGIS:
		if d.Table == "" {
			return fmt.Errorf("%s.table is required for a postgis source", name)
		}
	case SourceOverpass:
	default:
		return fmt.Errorf("%s.source must be shapefile, postgis or overpass, got %q", name, d.Source)
	}
	if d.NameField == "" {
		return fmt.Errorf("%s.name_field is required", name)
	}
	return nil
}

// Validate checks render options independently so the renderer can reuse it.
func (r RenderConfig) Validate() error {
	if r.ColorMin >= r.ColorMax {
		return fmt.Errorf("render: color_min (%g) must be below color_max (%g)", r.ColorMin, r.ColorMax)
	}
	if r.DPI <= 0 {
		return fmt.Errorf("render: dpi must be positive, got %d", r.DPI)
	}
	if r.WidthIn <= 0 || r.HeightIn <= 0 {
		return fmt.Errorf("render: canvas must be positive, got %gx%g in", r.WidthIn, r.HeightIn)
	}
	if r.Output == "" {
		return fmt.Errorf("render: output path is required")
	}
	return nil
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}
