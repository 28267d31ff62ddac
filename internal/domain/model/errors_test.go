package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		stage    Stage
	}{
		{"load", LoadError("open %s", "wards.shp"), ErrLoad, StageLoad},
		{"projection", ProjectionError("unknown code %d", 9999), ErrProjection, StageProjection},
		{"join", JoinError("bad predicate"), ErrJoin, StageJoin},
		{"aggregation", AggregationError("no rows"), ErrAggregation, StageAggregation},
		{"render", RenderError("bad range"), ErrRender, StageRender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("pipeline: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)

			stage, ok := StageOf(wrapped)
			assert.True(t, ok)
			assert.Equal(t, tt.stage, stage)

			for _, other := range []error{ErrLoad, ErrProjection, ErrJoin, ErrAggregation, ErrRender} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestStageErrorUnwrapsCause(t *testing.T) {
	err := &StageError{Stage: StageAggregation, Err: fmt.Errorf("wards: %w", ErrEmptyDataset)}
	assert.ErrorIs(t, err, ErrEmptyDataset)
	assert.ErrorIs(t, err, ErrAggregation)
	assert.Equal(t, "aggregation error: wards: dataset has no rows", err.Error())
}

func TestStageOfPlainError(t *testing.T) {
	_, ok := StageOf(errors.New("boom"))
	assert.False(t, ok)
}

func TestPartitionReportClean(t *testing.T) {
	assert.True(t, PartitionReport{LeftTotal: 3, Matched: 3}.Clean())
	assert.False(t, PartitionReport{Dropped: []int{1}}.Clean())
	assert.False(t, PartitionReport{FanOut: []int{2}}.Clean())
}
