package repository

import (
	"context"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/jmoiron/sqlx"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"wardmap/internal/domain/model"
)

// ResultsRecorder persists the outcome of a pipeline run.
type ResultsRecorder interface {
	SaveRun(ctx context.Context, summary *model.RunSummary, counties *model.Dataset, countyField string) error
}

type PostgresResultsRecorder struct {
	db *sqlx.DB
}

func NewPostgresResultsRecorder(db *sqlx.DB) *PostgresResultsRecorder {
	return &PostgresResultsRecorder{db: db}
}

const resultsSchema = `
	CREATE TABLE IF NOT EXISTS wardmap_runs (
		run_id      uuid PRIMARY KEY,
		target_srid integer NOT NULL,
		crs         text NOT NULL,
		joined_rows integer NOT NULL,
		created_at  timestamptz NOT NULL
	);
	CREATE TABLE IF NOT EXISTS wardmap_county_population (
		run_id     uuid REFERENCES wardmap_runs(run_id),
		county     text NOT NULL,
		population bigint NOT NULL,
		area_km2   double precision,
		geom       geometry
	);
	CREATE TABLE IF NOT EXISTS wardmap_ward_population (
		run_id     uuid REFERENCES wardmap_runs(run_id),
		ward       text NOT NULL,
		population bigint NOT NULL
	)`

func (r *PostgresResultsRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, resultsSchema); err != nil {
		return fmt.Errorf("failed to create results tables: %w", err)
	}
	return nil
}

func (r *PostgresResultsRecorder) SaveRun(
	ctx context.Context,
	summary *model.RunSummary,
	counties *model.Dataset,
	countyField string,
) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const runQuery = `
		INSERT INTO wardmap_runs (run_id, target_srid, crs, joined_rows, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, runQuery,
		summary.RunID, summary.TargetEPSG, summary.CountiesCRS, summary.JoinedRows, summary.StartedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	shapes := groupGeometry(counties, countyField)

	const countyQuery = `
		INSERT INTO wardmap_county_population (run_id, county, population, area_km2, geom)
		VALUES ($1, $2, $3, $4, ST_GeomFromEWKB($5))`
	if summary.ByCounty != nil {
		for _, key := range summary.ByCounty.Keys {
			// Геометрия может отсутствовать, если округ не попал в выборку
			var geomEWKB []byte
			if polys, ok := shapes[key]; ok {
				mp := model.ToMultiPolygon(polys).SetSRID(summary.TargetEPSG)
				if geomEWKB, err = ewkb.Marshal(mp, ewkb.NDR); err != nil {
					return fmt.Errorf("failed to encode geometry of %s: %w", key, err)
				}
			}
			var area interface{}
			if st, ok := summary.CountyStats[key]; ok {
				area = st.AreaKm2
			}
			if _, err = tx.ExecContext(ctx, countyQuery,
				summary.RunID, key, summary.ByCounty.Sums[key], area, geomEWKB,
			); err != nil {
				return fmt.Errorf("failed to insert county %s: %w", key, err)
			}
		}
	}

	const wardQuery = `
		INSERT INTO wardmap_ward_population (run_id, ward, population)
		VALUES ($1, $2, $3)`
	if summary.ByWard != nil {
		for _, key := range summary.ByWard.Keys {
			if _, err = tx.ExecContext(ctx, wardQuery, summary.RunID, key, summary.ByWard.Sums[key]); err != nil {
				return fmt.Errorf("failed to insert ward %s: %w", key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// groupGeometry collects the polygons of every feature sharing a key value.
func groupGeometry(ds *model.Dataset, field string) map[string]geom.MultiPolygon {
	out := make(map[string]geom.MultiPolygon)
	if ds == nil {
		return out
	}
	for _, f := range ds.Features {
		key := f.Attrs[field]
		out[key] = append(out[key], f.Geometry.Polygons()...)
	}
	return out
}
