package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardmap/internal/domain/model"
	"wardmap/internal/testutil"
)

func sampleRun() (*model.RunSummary, *model.Dataset) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := &model.RunSummary{
		RunID:       "7f1c2f8e-3f0a-4c3e-9d55-5d7d1f0b2a10",
		StartedAt:   started,
		TargetEPSG:  2157,
		CountiesCRS: "EPSG:2157",
		JoinedRows:  3,
		ByCounty: &model.Aggregate{
			Keys: []string{"A", "B"},
			Sums: map[string]int64{"A": 500, "B": 1500},
		},
		ByWard: &model.Aggregate{
			Keys: []string{"A1", "A2", "B1"},
			Sums: map[string]int64{"A1": 200, "A2": 300, "B1": 1500},
		},
		CountyStats: map[string]model.RegionStats{"A": {Name: "A", AreaKm2: 12.5}},
	}
	counties := &model.Dataset{
		Name:   "counties",
		Fields: []string{"CountyName"},
		Features: []model.Feature{
			{Index: 0, Geometry: testutil.RectPolygon(0, 0, 10, 10), Attrs: map[string]string{"CountyName": "A"}},
			{Index: 1, Geometry: testutil.RectPolygon(10, 0, 20, 10), Attrs: map[string]string{"CountyName": "B"}},
		},
	}
	return summary, counties
}

func TestPostgresResultsRecorder_SaveRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	summary, counties := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wardmap_runs").
		WithArgs(summary.RunID, 2157, "EPSG:2157", 3, summary.StartedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wardmap_county_population").
		WithArgs(summary.RunID, "A", int64(500), 12.5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wardmap_county_population").
		WithArgs(summary.RunID, "B", int64(1500), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, w := range []struct {
		name string
		pop  int64
	}{{"A1", 200}, {"A2", 300}, {"B1", 1500}} {
		mock.ExpectExec("INSERT INTO wardmap_ward_population").
			WithArgs(summary.RunID, w.name, w.pop).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	rec := NewPostgresResultsRecorder(sqlx.NewDb(db, "postgres"))
	require.NoError(t, rec.SaveRun(context.Background(), summary, counties, "CountyName"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResultsRecorder_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	summary, counties := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wardmap_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wardmap_county_population").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	rec := NewPostgresResultsRecorder(sqlx.NewDb(db, "postgres"))
	err = rec.SaveRun(context.Background(), summary, counties, "CountyName")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert county A")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResultsRecorder_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS wardmap_runs").WillReturnResult(sqlmock.NewResult(0, 0))

	rec := NewPostgresResultsRecorder(sqlx.NewDb(db, "postgres"))
	require.NoError(t, rec.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
