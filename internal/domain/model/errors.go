package model

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageLoad        Stage = "load"
	StageProjection  Stage = "projection"
	StageJoin        Stage = "join"
	StageAggregation Stage = "aggregation"
	StageRender      Stage = "render"
)

// Sentinels for errors.Is matching against a StageError.
var (
	ErrLoad        = errors.New("load error")
	ErrProjection  = errors.New("projection error")
	ErrJoin        = errors.New("join error")
	ErrAggregation = errors.New("aggregation error")
	ErrRender      = errors.New("render error")

	ErrEmptyDataset = errors.New("dataset has no rows")
	ErrMissingCRS   = errors.New("dataset has no coordinate reference system")
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *StageError) sentinel() error {
	switch e.Stage {
	case StageLoad:
		return ErrLoad
	case StageProjection:
		return ErrProjection
	case StageJoin:
		return ErrJoin
	case StageAggregation:
		return ErrAggregation
	case StageRender:
		return ErrRender
	}
	return errors.New(string(e.Stage))
}

func LoadError(format string, args ...interface{}) error {
	return &StageError{Stage: StageLoad, Err: fmt.Errorf(format, args...)}
}

func ProjectionError(format string, args ...interface{}) error {
	return &StageError{Stage: StageProjection, Err: fmt.Errorf(format, args...)}
}

func JoinError(format string, args ...interface{}) error {
	return &StageError{Stage: StageJoin, Err: fmt.Errorf(format, args...)}
}

func AggregationError(format string, args ...interface{}) error {
	return &StageError{Stage: StageAggregation, Err: fmt.Errorf(format, args...)}
}

func RenderError(format string, args ...interface{}) error {
	return &StageError{Stage: StageRender, Err: fmt.Errorf(format, args...)}
}

// StageOf returns the pipeline stage an error was raised in, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
