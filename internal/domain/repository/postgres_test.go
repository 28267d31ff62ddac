package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"wardmap/internal/domain/model"
)

func squareWKB(t *testing.T, minX, minY, size float64) []byte {
	t.Helper()
	p := gogeom.NewPolygon(gogeom.XY).MustSetCoords([][]gogeom.Coord{{
		{minX, minY}, {minX, minY + size}, {minX + size, minY + size}, {minX + size, minY}, {minX, minY},
	}})
	b, err := wkb.Marshal(p, wkb.NDR)
	require.NoError(t, err)
	return b
}

func TestPostGISRepository_GetBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		query     BoundaryQuery
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   bool
		errSubstr string
		wantRows  int
	}{
		{
			name: "bbox filter",
			query: BoundaryQuery{
				Name: "counties", Table: "public.counties", GeomColumn: "geom",
				Fields: []string{"CountyName"}, BBox: "54.0,-8.2,55.3,-5.4",
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"CountyName", "st_asbinary"}).
					AddRow("Antrim", squareWKB(t, -6.5, 54.5, 0.5)).
					AddRow("Down", squareWKB(t, -6.0, 54.0, 0.5))
				mock.ExpectQuery(regexp.QuoteMeta(
					`SELECT "CountyName"::text, ST_AsBinary(ST_Transform("geom", 4326)) FROM "public"."counties" ` +
						`WHERE ST_Intersects(ST_Transform("geom", 4326), ST_MakeEnvelope($1, $2, $3, $4, 4326)) ORDER BY 1`)).
					WithArgs(-8.2, 54.0, -5.4, 55.3).
					WillReturnRows(rows)
			},
			wantRows: 2,
		},
		{
			name:  "no bbox",
			query: BoundaryQuery{Name: "wards", Table: "wards", Fields: []string{"Ward", "Population"}},
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"Ward", "Population", "st_asbinary"}).
					AddRow("W1", "120", squareWKB(t, 0, 0, 1))
				mock.ExpectQuery(regexp.QuoteMeta(
					`SELECT "Ward"::text, "Population"::text, ST_AsBinary(ST_Transform("geom", 4326)) FROM "wards" ORDER BY 1`)).
					WillReturnRows(rows)
			},
			wantRows: 1,
		},
		{
			name:      "bad bbox",
			query:     BoundaryQuery{Name: "wards", Table: "wards", BBox: "1,2,3"},
			setupMock: func(mock sqlmock.Sqlmock) {},
			wantErr:   true,
			errSubstr: "bbox must have 4 components",
		},
		{
			name:  "query failure",
			query: BoundaryQuery{Name: "wards", Table: "wards", Fields: []string{"Ward"}},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))
			},
			wantErr:   true,
			errSubstr: "relation does not exist",
		},
		{
			name:  "undecodable geometry",
			query: BoundaryQuery{Name: "wards", Table: "wards", Fields: []string{"Ward"}},
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"Ward", "st_asbinary"}).AddRow("W1", []byte{0x01, 0x02})
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			wantErr:   true,
			errSubstr: "decoding geometry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			repo := NewPostGISRepositoryFromDB(sqlx.NewDb(db, "postgres"))
			ds, err := repo.Source(tt.query).Load(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrLoad)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				require.NoError(t, err)
				assert.Len(t, ds.Features, tt.wantRows)
				assert.Equal(t, "EPSG:4326", ds.CRS)
				assert.Equal(t, tt.query.Fields, ds.Fields)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostGISRepository_DecodesAttributesAndGeometry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"Ward", "Population", "st_asbinary"}).
			AddRow("W1", " 4200 ", squareWKB(t, 10, 20, 2)))

	repo := NewPostGISRepositoryFromDB(sqlx.NewDb(db, "postgres"))
	ds, err := repo.GetBoundaries(context.Background(), BoundaryQuery{
		Name: "wards", Table: "wards", Fields: []string{"Ward", "Population"},
	})
	require.NoError(t, err)
	require.Len(t, ds.Features, 1)

	f := ds.Features[0]
	assert.Equal(t, "W1", f.Attrs["Ward"])
	assert.Equal(t, "4200", f.Attrs["Population"])
	assert.InDelta(t, 4.0, f.Geometry.Area(), 1e-12)
	b := f.Geometry.Bounds()
	assert.Equal(t, 10.0, b.Min.X)
	assert.Equal(t, 22.0, b.Max.Y)
}

func TestParseBounds(t *testing.T) {
	b, err := ParseBounds("54.0, -8.2, 55.3, -5.4")
	require.NoError(t, err)
	assert.Equal(t, model.Bounds{MinLat: 54.0, MinLon: -8.2, MaxLat: 55.3, MaxLon: -5.4}, b)
	assert.Equal(t, "54,-8.2,55.3,-5.4", b.OverpassBBox())

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "91,0,92,1", "0,-181,1,0", "2,0,1,1"} {
		_, err := ParseBounds(bad)
		assert.Error(t, err, bad)
	}
}
