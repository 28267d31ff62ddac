package repository

import (
	"context"

	"wardmap/internal/domain/model"
)

// DatasetSource loads one polygon layer with its attributes and CRS.
type DatasetSource interface {
	Load(ctx context.Context) (*model.Dataset, error)
}

// SourceFunc adapts a plain function to DatasetSource.
type SourceFunc func(ctx context.Context) (*model.Dataset, error)

func (f SourceFunc) Load(ctx context.Context) (*model.Dataset, error) {
	return f(ctx)
}
