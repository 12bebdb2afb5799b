package domain

import "time"

// DataPoint is a labeled numeric sample rendered by the dashboard charts.
type DataPoint struct {
	ID        int64
	Label     string
	Value     float64
	Date      time.Time
	CreatedAt time.Time
}

// SortOrder selects an optional ordering for listed points.
type SortOrder string

const (
	SortNone      SortOrder = ""
	SortDateAsc   SortOrder = "date"
	SortDateDesc  SortOrder = "-date"
	SortValueAsc  SortOrder = "value"
	SortValueDesc SortOrder = "-value"
)

// Valid reports whether s is a supported sort order.
func (s SortOrder) Valid() bool {
	switch s {
	case SortNone, SortDateAsc, SortDateDesc, SortValueAsc, SortValueDesc:
		return true
	}
	return false
}

// DataFilter narrows a listing. The zero value lists everything in store order.
type DataFilter struct {
	Label string
	Sort  SortOrder
}
