package repository

import (
	"context"

	"datapulse/internal/domain"
)

// DataPointRepository exposes persistence operations for data points.
type DataPointRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, point *domain.DataPoint) (int64, error)
	List(ctx context.Context, filter domain.DataFilter) ([]domain.DataPoint, error)
}
