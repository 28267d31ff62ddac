package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// flagKeys maps CLI flag names onto config keys. Flags not listed here are
// ignored by the loader.
var flagKeys = map[string]string{
	"wards":       "wards.path",
	"counties":    "counties.path",
	"target-epsg": "target_epsg",
	"output":      "render.output",
	"predicate":   "join.predicate",
	"interactive": "render.interactive",
	"verbose":     "verbose",
}

// Defaults returns the built-in configuration as a flat koanf map.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"wards.source":      SourceShapefile,
		"wards.path":        "data_files/NI_Wards.shp",
		"wards.name_field":  "Ward",
		"wards.geom_column": "geom",

		"counties.source":      SourceShapefile,
		"counties.path":        "data_files/Counties.shp",
		"counties.name_field":  "CountyName",
		"counties.geom_column": "geom",

		"population_field": "Population",
		"target_epsg":      2157,

		"join.predicate":       "intersects",
		"join.left_suffix":     "left",
		"join.right_suffix":    "right",
		"join.partition_check": PartitionWarn,

		"render.enabled":        true,
		"render.output":         "sample_map.png",
		"render.dpi":            300,
		"render.width_in":       10.0,
		"render.height_in":      10.0,
		"render.color_min":      1000.0,
		"render.color_max":      8000.0,
		"render.colormap":       "viridis",
		"render.colorbar_label": "Resident Population per Ward",
		"render.legend_label":   "County Boundaries",
		"render.grid_lons":      []float64{-8, -7.5, -7, -6.5, -6, -5.5},
		"render.grid_lats":      []float64{54, 54.5, 55, 55.5},
		"render.labels.top":     true,
		"render.labels.left":    true,
		"render.labels.bottom":  false,
		"render.labels.right":   false,
		"render.interactive":    false,
		"render.remove_stale":   true,

		"overpass.endpoint":     "https://overpass-api.de/api/interpreter",
		"overpass.bbox":         "54.0,-8.2,55.35,-5.4",
		"overpass.admin_level":  6,
		"overpass.timeout":      60 * time.Second,
		"overpass.max_parallel": 2,

		"verbose": false,
	}
}

// Load builds a Config from defaults, the YAML file, WARDMAP_ environment
// variables and explicitly set flags, in increasing order of precedence.
// cfgFile may be empty, in which case wardmap.yaml is used when present.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// WARDMAP_JOIN__PREDICATE -> join.predicate
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
