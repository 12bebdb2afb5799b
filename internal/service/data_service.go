package service

import (
	"context"
	"math"
	"strings"
	"time"

	"datapulse/internal/domain"
	"datapulse/internal/repository"
)

// Notifier receives every point after it has been persisted. Implementations
// must not block the caller.
type Notifier interface {
	PointCreated(point domain.DataPoint)
}

// DataService coordinates data point reads and writes.
type DataService interface {
	List(ctx context.Context, filter domain.DataFilter) ([]domain.DataPoint, error)
	Create(ctx context.Context, label string, value float64, date time.Time) (*domain.DataPoint, error)
}

type dataService struct {
	points   repository.DataPointRepository
	notifier Notifier
}

// NewDataService wires the store and an optional notifier.
func NewDataService(points repository.DataPointRepository, notifier Notifier) DataService {
	return &dataService{
		points:   points,
		notifier: notifier,
	}
}

func (s *dataService) List(ctx context.Context, filter domain.DataFilter) ([]domain.DataPoint, error) {
	if !filter.Sort.Valid() {
		return nil, validationError("unsupported sort order " + string(filter.Sort))
	}
	return s.points.List(ctx, filter)
}

func (s *dataService) Create(ctx context.Context, label string, value float64, date time.Time) (*domain.DataPoint, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, validationError("label is required")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, validationError("value must be a finite number")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}

	point := &domain.DataPoint{
		Label: label,
		Value: value,
		Date:  date,
	}
	if _, err := s.points.Create(ctx, point); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.PointCreated(*point)
	}
	return point, nil
}
