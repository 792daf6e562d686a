// Package store defines the storage contract used by the CRUD handlers.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"metarest/internal/query"
)

var (
	ErrNotFound     = errors.New("row not found")
	ErrInvalidValue = errors.New("invalid column value")
	ErrUnsupported  = errors.New("operation not supported by this store")
	ErrDuplicate    = errors.New("duplicate key")
)

// Row maps column names to scalar values.
type Row map[string]any

// ID returns the primary key of the row, or 0.
func (r Row) ID() int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Filter is an equality predicate; Not turns it into inequality.
type Filter struct {
	Column string
	Value  any
	Not    bool
}

func Eq(col string, v any) Filter    { return Filter{Column: col, Value: v} }
func NotEq(col string, v any) Filter { return Filter{Column: col, Value: v, Not: true} }

// Store persists entity rows. Every table has an integer primary key "id" and
// a boolean "active" column defaulting to true.
type Store interface {
	// Insert writes row and returns the stored row including defaults.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update patches the given columns and returns the stored row. It
	// returns ErrNotFound when no row has the id.
	Update(ctx context.Context, table string, id int64, row Row) (Row, error)
	Get(ctx context.Context, table string, id int64) (Row, error)
	Count(ctx context.Context, table string, filters ...Filter) (int64, error)
	// Select executes a list query built by the query package.
	Select(ctx context.Context, s *query.Select) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}

// CheckValues rejects values no column can hold, such as the NaN produced
// for unparseable numbers.
func CheckValues(row Row) error {
	for k, v := range row {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return fmt.Errorf("column %s: %w", k, ErrInvalidValue)
		}
	}
	return nil
}
