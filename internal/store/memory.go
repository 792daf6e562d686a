package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"metarest/internal/query"
)

// Memory is an in-process Store used when no database is configured and in
// handler tests. Joins are not supported.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	now    func() time.Time
}

type memTable struct {
	nextID int64
	rows   map[int64]Row
}

func NewMemory() *Memory {
	return &Memory{tables: map[string]*memTable{}, now: time.Now}
}

func (m *Memory) table(name string) *memTable {
	t := m.tables[name]
	if t == nil {
		t = &memTable{rows: map[int64]Row{}}
		m.tables[name] = t
	}
	return t
}

func (m *Memory) Insert(_ context.Context, table string, row Row) (Row, error) {
	if err := CheckValues(row); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(table)
	t.nextID++
	rec := Row{"active": true, "created_at": m.now().UTC()}
	for k, v := range row {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	rec["id"] = t.nextID
	t.rows[t.nextID] = rec
	return copyRow(rec), nil
}

func (m *Memory) Update(_ context.Context, table string, id int64, row Row) (Row, error) {
	if err := CheckValues(row); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.table(table).rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range row {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	return copyRow(rec), nil
}

func (m *Memory) Get(_ context.Context, table string, id int64) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := m.tables[table]
	if t == nil {
		return nil, ErrNotFound
	}
	rec, ok := t.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRow(rec), nil
}

func (m *Memory) Count(_ context.Context, table string, filters ...Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := m.tables[table]
	if t == nil {
		return 0, nil
	}
	var n int64
	for _, rec := range t.rows {
		match := true
		for _, f := range filters {
			if looseEqual(rec[f.Column], f.Value) == f.Not {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Select(_ context.Context, s *query.Select) ([]Row, error) {
	if len(s.Joins) > 0 {
		return nil, fmt.Errorf("joins: %w", ErrUnsupported)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Row{}
	t := m.tables[s.Table]
	if t == nil {
		return out, nil
	}
	var hits []Row
	for _, rec := range t.rows {
		if matches(rec, s) {
			hits = append(hits, rec)
		}
	}

	// ties and the default fall back to id order
	order := query.Order{Column: "id"}
	if s.Order != nil {
		order = *s.Order
	}
	sort.Slice(hits, func(i, j int) bool {
		c := compare(hits[i][order.Column], hits[j][order.Column])
		if c == 0 {
			return hits[i].ID() < hits[j].ID()
		}
		if order.Desc {
			return c > 0
		}
		return c < 0
	})
	for _, rec := range hits {
		out = append(out, project(rec, s.Columns))
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func matches(rec Row, s *query.Select) bool {
	for _, e := range s.Equals {
		ok := false
		for _, v := range e.Values {
			if looseEqual(rec[columnName(e.Column)], v) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, c := range s.And {
		if r, apply := condition(rec, c); apply && !r {
			return false
		}
	}
	applied, hit := false, false
	for _, c := range s.Or {
		r, apply := condition(rec, c)
		if !apply {
			continue
		}
		applied = true
		if r {
			hit = true
			break
		}
	}
	return !applied || hit
}

// condition evaluates c against rec. apply is false for conditions the SQL
// builder would skip.
func condition(rec Row, c query.Condition) (result, apply bool) {
	switch c.Type {
	case query.IDMatch:
		return looseEqual(rec[c.Column], query.Scalar(c.Value)), true
	case query.DateRange:
		v := stringify(rec[c.Column])
		switch {
		case c.Start != "" && c.End != "":
			return v >= c.Start && v <= c.End, true
		case c.Start != "":
			return v >= c.Start, true
		case c.End != "":
			return v <= c.End, true
		}
	case query.DateRangeColumn:
		if c.StartColumn == "" || c.EndColumn == "" {
			return false, false
		}
		return c.Date >= stringify(rec[c.StartColumn]) && c.Date <= stringify(rec[c.EndColumn]), true
	}
	return false, false
}

func project(rec Row, cols []string) Row {
	if len(cols) == 0 {
		return copyRow(rec)
	}
	out := Row{}
	for _, c := range cols {
		if c == "*" || strings.HasSuffix(c, ".*") {
			return copyRow(rec)
		}
		name := columnName(c)
		out[name] = rec[name]
	}
	return out
}

func columnName(c string) string {
	if i := strings.LastIndexByte(c, '.'); i >= 0 {
		return c[i+1:]
	}
	return c
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// looseEqual compares by string form so "5" matches 5.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return stringify(a) == stringify(b)
}

func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return 1
		}
		return -1
	}
	fa, errA := strconv.ParseFloat(stringify(a), 64)
	fb, errB := strconv.ParseFloat(stringify(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(stringify(a), stringify(b))
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
