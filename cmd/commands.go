package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wardmap/internal/config"
	"wardmap/internal/core"
	"wardmap/internal/domain/repository"
	"wardmap/internal/infrastructure/display"
	"wardmap/internal/infrastructure/mapplot"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load, join, aggregate, print the report and render the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeFn, err := a.pipeline(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()
			_, err = p.Run(cmd.Context())
			return err
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the population tables without drawing the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeFn, err := a.pipeline(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()
			_, err = p.Report(cmd.Context())
			return err
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that both layers share a CRS and that wards partition into counties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeFn, err := a.pipeline(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()
			_, err = p.Validate(cmd.Context())
			return err
		},
	}
}

func (a *app) crsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crs",
		Short: "List the EPSG codes accepted as target_epsg",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.Style().Format.Header = text.FormatDefault
			t.AppendHeader(table.Row{"EPSG", "Name", "Metric"})
			for _, e := range core.SupportedEPSG() {
				sr, err := core.ParseEPSG(e.Code)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{e.Code, e.Name, strconv.FormatBool(core.IsMetric(sr))})
			}
			t.Render()
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wardmap %s\n", Version)
		},
	}
}

// pipeline wires sources, renderer and the optional recorder from a.cfg.
// The returned func releases database connections.
func (a *app) pipeline(ctx context.Context, render bool) (*core.Pipeline, func(), error) {
	cfg := *a.cfg
	cfg.Render.Enabled = cfg.Render.Enabled && render

	var pg *repository.PostGISRepository
	closeFn := func() {
		if pg != nil {
			if err := pg.Close(); err != nil {
				a.logger.Warn("failed to close postgres", zap.Error(err))
			}
		}
	}
	postgres := func() (*repository.PostGISRepository, error) {
		if pg != nil {
			return pg, nil
		}
		var err error
		pg, err = repository.NewPostgresRepository(ctx, cfg.Postgres.URL)
		return pg, err
	}

	wards, err := a.source(&cfg, "wards", cfg.Wards, postgres, cfg.Wards.NameField, cfg.PopulationField)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	counties, err := a.source(&cfg, "counties", cfg.Counties, postgres, cfg.Counties.NameField)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	opts := []core.Option{core.WithViewer(display.NewViewer(a.logger))}
	if render && cfg.Postgres.URL != "" {
		db, err := postgres()
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		rec := repository.NewPostgresResultsRecorder(db.DB())
		if err := rec.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		opts = append(opts, core.WithRecorder(rec))
	}

	p := core.NewPipeline(&cfg, wards, counties, mapplot.NewRenderer(a.logger), a.stdout, a.logger, opts...)
	return p, closeFn, nil
}

func (a *app) source(
	cfg *config.Config,
	name string,
	ds config.DatasetConfig,
	postgres func() (*repository.PostGISRepository, error),
	fields ...string,
) (repository.DatasetSource, error) {
	switch ds.Source {
	case config.SourceShapefile:
		return repository.NewShapefileRepository(name, ds.Path, fields...), nil
	case config.SourcePostGIS:
		db, err := postgres()
		if err != nil {
			return nil, err
		}
		return db.Source(repository.BoundaryQuery{
			Name:       name,
			Table:      ds.Table,
			GeomColumn: ds.GeomColumn,
			Fields:     fields,
			BBox:       ds.BBox,
		}), nil
	case config.SourceOverpass:
		bbox, err := repository.ParseBounds(cfg.Overpass.BBox)
		if err != nil {
			return nil, fmt.Errorf("overpass.bbox: %w", err)
		}
		osm := repository.NewOverpassRepository(cfg.Overpass.Endpoint, cfg.Overpass.MaxParallel, cfg.Overpass.Timeout)
		return osm.BoundarySource(name, bbox, cfg.Overpass.AdminLevel, ds.NameField), nil
	}
	return nil, fmt.Errorf("%s: unknown source %q", name, ds.Source)
}
