package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"datapulse/internal/domain"
	"datapulse/internal/repository"
)

const createDataPointsTable = `
CREATE TABLE IF NOT EXISTS data_points (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL,
	value REAL NOT NULL,
	date DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);
`

// orderClauses maps supported sort orders to fixed SQL fragments.
var orderClauses = map[domain.SortOrder]string{
	domain.SortDateAsc:   " ORDER BY date ASC, id ASC",
	domain.SortDateDesc:  " ORDER BY date DESC, id DESC",
	domain.SortValueAsc:  " ORDER BY value ASC, id ASC",
	domain.SortValueDesc: " ORDER BY value DESC, id DESC",
}

type DataPointRepository struct {
	db *sql.DB
}

func NewDataPointRepository(db *sql.DB) repository.DataPointRepository {
	return &DataPointRepository{db: db}
}

func (r *DataPointRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDataPointsTable); err != nil {
		return fmt.Errorf("create data_points table: %w", err)
	}
	return nil
}

func (r *DataPointRepository) Create(ctx context.Context, point *domain.DataPoint) (int64, error) {
	point.CreatedAt = time.Now().UTC()
	point.Date = point.Date.UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO data_points (label, value, date, created_at)
VALUES (?, ?, ?, ?)`,
		point.Label,
		point.Value,
		point.Date,
		point.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert data point: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("data point last insert id: %w", err)
	}
	point.ID = id
	return id, nil
}

func (r *DataPointRepository) List(ctx context.Context, filter domain.DataFilter) ([]domain.DataPoint, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT id, label, value, date, created_at FROM data_points`)
	if filter.Label != "" {
		query.WriteString(` WHERE label = ?`)
		args = append(args, filter.Label)
	}
	if filter.Sort != domain.SortNone {
		clause, ok := orderClauses[filter.Sort]
		if !ok {
			return nil, fmt.Errorf("unsupported sort order %q", filter.Sort)
		}
		query.WriteString(clause)
	}

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query data points: %w", err)
	}
	defer rows.Close()

	points := make([]domain.DataPoint, 0)
	for rows.Next() {
		var p domain.DataPoint
		if err := rows.Scan(&p.ID, &p.Label, &p.Value, &p.Date, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan data point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data points: %w", err)
	}
	return points, nil
}
