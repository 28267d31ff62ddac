package core

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"wardmap/internal/domain/model"
)

type Aggregator struct{}

// Sum groups the joined rows by key and totals value. Values must be
// non-negative integers; decimals with a zero fraction ("120.0") are
// accepted. Rows are never deduplicated, so a fanned-out ward counts once
// per matching county.
func (Aggregator) Sum(table *model.JoinedTable, key, value string) (*model.Aggregate, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, &model.StageError{Stage: model.StageAggregation, Err: model.ErrEmptyDataset}
	}
	if !hasColumn(table.Columns, key) {
		return nil, model.AggregationError("missing key column %s", key)
	}
	if !hasColumn(table.Columns, value) {
		return nil, model.AggregationError("missing value column %s", value)
	}

	agg := &model.Aggregate{Key: key, Value: value, Sums: make(map[string]int64)}
	for _, row := range table.Rows {
		n, err := parseCount(row.Attrs[value])
		if err != nil {
			return nil, model.AggregationError("row %d (%s=%q): %s: %w", row.LeftIndex, key, row.Attrs[key], value, err)
		}
		// Every sum is non-negative and at most Total.
		if agg.Total > math.MaxInt64-n {
			return nil, model.AggregationError("row %d (%s=%q): %s: %w", row.LeftIndex, key, row.Attrs[key], value, errOverflow)
		}
		k := row.Attrs[key]
		if _, seen := agg.Sums[k]; !seen {
			agg.Keys = append(agg.Keys, k)
		}
		agg.Sums[k] += n
		agg.Total += n
	}
	sort.Strings(agg.Keys)
	agg.Extent = extremes(agg.Keys, agg.Sums)
	return agg, nil
}

var (
	errEmptyValue = errors.New("empty value")
	errNegative   = errors.New("negative value")
	errNotNumber  = errors.New("not a number")
	errNotInteger = errors.New("not an integer")
	errOverflow   = errors.New("total exceeds int64")
)

func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyValue
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errNegative
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumber
	}
	if f < 0 {
		return 0, errNegative
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 {
		return 0, errNotNumber
	}
	if f != math.Trunc(f) {
		return 0, errNotInteger
	}
	return int64(f), nil
}

// extremes expects keys sorted ascending, so the first key seen at a given
// value is the lexicographically smallest.
func extremes(keys []string, sums map[string]int64) model.Extremes {
	var e model.Extremes
	for i, k := range keys {
		v := sums[k]
		switch {
		case i == 0 || v > e.MaxValue:
			e.MaxKey, e.MaxValue, e.MaxTies = k, v, []string{k}
		case v == e.MaxValue:
			e.MaxTies = append(e.MaxTies, k)
		}
		switch {
		case i == 0 || v < e.MinValue:
			e.MinKey, e.MinValue, e.MinTies = k, v, []string{k}
		case v == e.MinValue:
			e.MinTies = append(e.MinTies, k)
		}
	}
	return e
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
