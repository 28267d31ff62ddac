package core

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardmap/internal/domain/model"
)

func joined(rows ...[2]string) *model.JoinedTable {
	t := &model.JoinedTable{Columns: []string{"County", "Population"}}
	for i, r := range rows {
		t.Rows = append(t.Rows, model.JoinedRow{
			LeftIndex: i,
			Attrs:     map[string]string{"County": r[0], "Population": r[1]},
		})
	}
	return t
}

func TestAggregator_Sum(t *testing.T) {
	agg, err := Aggregator{}.Sum(joined(
		[2]string{"B", "1500"},
		[2]string{"A", "200"},
		[2]string{"A", "300.0"},
	), "County", "Population")
	require.NoError(t, err)

	want := &model.Aggregate{
		Key:   "County",
		Value: "Population",
		Sums:  map[string]int64{"A": 500, "B": 1500},
		Keys:  []string{"A", "B"},
		Total: 2000,
		Extent: model.Extremes{
			MaxKey: "B", MaxValue: 1500, MaxTies: []string{"B"},
			MinKey: "A", MinValue: 500, MinTies: []string{"A"},
		},
	}
	if diff := cmp.Diff(want, agg); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_TiesPickSmallestKey(t *testing.T) {
	agg, err := Aggregator{}.Sum(joined(
		[2]string{"Down", "100"},
		[2]string{"Antrim", "100"},
		[2]string{"Armagh", "100"},
	), "County", "Population")
	require.NoError(t, err)

	assert.Equal(t, "Antrim", agg.Extent.MaxKey)
	assert.Equal(t, "Antrim", agg.Extent.MinKey)
	assert.Equal(t, []string{"Antrim", "Armagh", "Down"}, agg.Extent.MaxTies)
	assert.Equal(t, []string{"Antrim", "Armagh", "Down"}, agg.Extent.MinTies)
}

func TestAggregator_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table *model.JoinedTable
		key   string
		value string
		want  error
	}{
		{name: "empty", table: joined(), key: "County", value: "Population", want: model.ErrEmptyDataset},
		{name: "negative", table: joined([2]string{"A", "-5"}), key: "County", value: "Population", want: errNegative},
		{name: "not a number", table: joined([2]string{"A", "many"}), key: "County", value: "Population", want: errNotNumber},
		{name: "fractional", table: joined([2]string{"A", "1.5"}), key: "County", value: "Population", want: errNotInteger},
		{name: "too large", table: joined([2]string{"A", "1e30"}), key: "County", value: "Population", want: errNotNumber},
		{name: "out of int64 range", table: joined([2]string{"A", "99999999999999999999"}), key: "County", value: "Population", want: errNotNumber},
		{
			name:  "sum overflows",
			table: joined([2]string{"A", "9223372036854775807"}, [2]string{"B", "1"}),
			key:   "County",
			value: "Population",
			want:  errOverflow,
		},
		{name: "blank", table: joined([2]string{"A", " "}), key: "County", value: "Population", want: errEmptyValue},
		{name: "missing key column", table: joined([2]string{"A", "1"}), key: "Ward", value: "Population"},
		{name: "missing value column", table: joined([2]string{"A", "1"}), key: "County", value: "Households"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregator{}.Sum(tt.table, tt.key, tt.value)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrAggregation)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	for in, want := range map[string]int64{
		"0": 0, "42": 42, " 7 ": 7, "120.0": 120, "1e3": 1000,
		"9223372036854775807": math.MaxInt64,
	} {
		got, err := parseCount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
