// Package query turns list-endpoint query strings into parameterised SELECT
// statements.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// Reserved query keys. Every other key is an equality filter.
const (
	ParamSelectedFields = "selectedFields"
	ParamJoins          = "joins"
	ParamConditions     = "conditions"
	ParamOrConditions   = "orConditions"
)

// Condition types.
const (
	IDMatch         = "id_match"
	DateRange       = "date_range"
	DateRangeColumn = "date_range_column"
)

// Error reports a malformed query parameter.
type Error struct {
	Param string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("invalid %s parameter: %v", e.Param, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Join is one entry of the joins parameter.
type Join struct {
	Type       string `json:"type"`
	FromTable  string `json:"fromTable"`
	FromColumn string `json:"fromColumn"`
	ToTable    string `json:"toTable"`
	ToColumn   string `json:"toColumn"`
}

// Condition is one entry of the conditions or orConditions parameter.
//
//	id_match:          Table.Column = Value
//	date_range:        Table.Column between Start and End (either bound optional)
//	date_range_column: Date between Table.StartColumn and Table.EndColumn
type Condition struct {
	Type        string `json:"type"`
	Table       string `json:"table"`
	Column      string `json:"column,omitempty"`
	Value       any    `json:"value,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Date        string `json:"date,omitempty"`
	StartColumn string `json:"startColumn,omitempty"`
	EndColumn   string `json:"endColumn,omitempty"`
}

// Equality is a plain key=value filter. Several values mean IN.
type Equality struct {
	Column string
	Values []string
}

type Order struct {
	Column string
	Desc   bool
}

// Select is the parsed form of a list request.
type Select struct {
	Table   string
	Columns []string
	Joins   []Join
	Equals  []Equality
	And     []Condition
	Or      []Condition
	Order   *Order
}

// Parse reads q into a Select over table. Malformed JSON parameters, unknown
// condition types and disallowed join kinds return *Error.
func Parse(table string, q url.Values) (*Select, error) {
	s := &Select{Table: table}

	if err := decodeParam(q, ParamSelectedFields, &s.Columns); err != nil {
		return nil, err
	}
	if err := decodeParam(q, ParamJoins, &s.Joins); err != nil {
		return nil, err
	}
	if err := decodeParam(q, ParamConditions, &s.And); err != nil {
		return nil, err
	}
	if err := decodeParam(q, ParamOrConditions, &s.Or); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		switch k {
		case ParamSelectedFields, ParamJoins, ParamConditions, ParamOrConditions:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Equals = append(s.Equals, Equality{Column: k, Values: q[k]})
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeParam(q url.Values, key string, dst any) error {
	raw, ok := q[key]
	if !ok || len(raw) == 0 {
		return nil
	}
	v := strings.TrimSpace(raw[0])
	if v == "" || v == "undefined" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return &Error{Param: key, Err: err}
	}
	return nil
}

func (s *Select) validate() error {
	for _, c := range s.Columns {
		if _, err := column(c); err != nil {
			return &Error{Param: ParamSelectedFields, Err: err}
		}
	}
	for i := range s.Joins {
		if _, err := s.Joins[i].clause(); err != nil {
			return &Error{Param: ParamJoins, Err: err}
		}
	}
	for _, c := range s.And {
		if _, err := s.predicate(c); err != nil {
			return &Error{Param: ParamConditions, Err: err}
		}
	}
	for _, c := range s.Or {
		if _, err := s.predicate(c); err != nil {
			return &Error{Param: ParamOrConditions, Err: err}
		}
	}
	for _, e := range s.Equals {
		if _, err := column(e.Column); err != nil {
			return &Error{Param: e.Column, Err: err}
		}
	}
	return nil
}

// Fragments returns the column list, the FROM clause with joins, the WHERE
// clause without the keyword (empty when unfiltered) and its bound
// arguments. Placeholders are $1..$N.
func (s *Select) Fragments() (columns, from, where string, args []any, err error) {
	columns, err = s.columnList()
	if err != nil {
		return "", "", "", nil, err
	}
	from, err = s.fromClause()
	if err != nil {
		return "", "", "", nil, err
	}
	pred, err := s.Where()
	if err != nil {
		return "", "", "", nil, err
	}
	if pred != nil {
		where, args, err = pred.ToSql()
		if err != nil {
			return "", "", "", nil, err
		}
		where, err = sq.Dollar.ReplacePlaceholders(where)
		if err != nil {
			return "", "", "", nil, err
		}
	}
	return columns, from, where, args, nil
}

// ToSQL renders the full statement.
func (s *Select) ToSQL() (string, []any, error) {
	cols, err := s.columnList()
	if err != nil {
		return "", nil, err
	}
	table, err := ident(s.Table)
	if err != nil {
		return "", nil, err
	}
	b := sq.Select(cols).From(table).PlaceholderFormat(sq.Dollar)
	for i := range s.Joins {
		clause, err := s.Joins[i].clause()
		if err != nil {
			return "", nil, err
		}
		b = b.JoinClause(clause)
	}
	pred, err := s.Where()
	if err != nil {
		return "", nil, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	if s.Order != nil {
		col, err := ident(s.Table + "." + s.Order.Column)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if s.Order.Desc {
			dir = "DESC"
		}
		b = b.OrderBy(col + " " + dir)
	}
	return b.ToSql()
}

// Where combines the equality filters and AND conditions into one group and
// the OR conditions into another: (AND) AND (OR) when both are present,
// otherwise whichever exists. It returns nil when nothing filters.
func (s *Select) Where() (sq.Sqlizer, error) {
	var and sq.And
	for _, e := range s.Equals {
		col, err := column(e.Column)
		if err != nil {
			return nil, err
		}
		if len(e.Values) == 1 {
			and = append(and, sq.Eq{col: e.Values[0]})
		} else {
			and = append(and, sq.Eq{col: e.Values})
		}
	}
	for _, c := range s.And {
		p, err := s.predicate(c)
		if err != nil {
			return nil, err
		}
		if p != nil {
			and = append(and, p)
		}
	}
	var or sq.Or
	for _, c := range s.Or {
		p, err := s.predicate(c)
		if err != nil {
			return nil, err
		}
		if p != nil {
			or = append(or, p)
		}
	}

	switch {
	case len(and) > 0 && len(or) > 0:
		return sq.And{and, or}, nil
	case len(and) > 0:
		return and, nil
	case len(or) > 0:
		return or, nil
	}
	return nil, nil
}

// predicate returns nil for a date_range without bounds and a
// date_range_column without both columns; those conditions are skipped.
func (s *Select) predicate(c Condition) (sq.Sqlizer, error) {
	table := c.Table
	if table == "" {
		table = s.Table
	}
	switch c.Type {
	case IDMatch:
		col, err := ident(table + "." + c.Column)
		if err != nil {
			return nil, err
		}
		if c.Value == nil {
			return nil, errors.New("id_match requires a value")
		}
		return sq.Eq{col: Scalar(c.Value)}, nil
	case DateRange:
		col, err := ident(table + "." + c.Column)
		if err != nil {
			return nil, err
		}
		switch {
		case c.Start != "" && c.End != "":
			return sq.Expr(col+" BETWEEN ? AND ?", c.Start, c.End), nil
		case c.Start != "":
			return sq.GtOrEq{col: c.Start}, nil
		case c.End != "":
			return sq.LtOrEq{col: c.End}, nil
		}
		return nil, nil
	case DateRangeColumn:
		if c.StartColumn == "" || c.EndColumn == "" {
			return nil, nil
		}
		lo, err := ident(table + "." + c.StartColumn)
		if err != nil {
			return nil, err
		}
		hi, err := ident(table + "." + c.EndColumn)
		if err != nil {
			return nil, err
		}
		return sq.Expr("? BETWEEN "+lo+" AND "+hi, c.Date), nil
	}
	return nil, fmt.Errorf("unknown condition type %q", c.Type)
}

func (s *Select) columnList() (string, error) {
	if len(s.Columns) == 0 {
		return "*", nil
	}
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		col, err := column(c)
		if err != nil {
			return "", err
		}
		out = append(out, col)
	}
	return strings.Join(out, ", "), nil
}

func (s *Select) fromClause() (string, error) {
	from, err := ident(s.Table)
	if err != nil {
		return "", err
	}
	for i := range s.Joins {
		clause, err := s.Joins[i].clause()
		if err != nil {
			return "", err
		}
		from += " " + clause
	}
	return from, nil
}

var joinKinds = map[string]string{
	"INNER":      "INNER JOIN",
	"LEFT":       "LEFT JOIN",
	"LEFT OUTER": "LEFT JOIN",
	"RIGHT":      "RIGHT JOIN",
	"FULL":       "FULL OUTER JOIN",
	"FULL OUTER": "FULL OUTER JOIN",
}

// Kind returns the normalised join keyword, e.g. "LEFT JOIN".
func (j *Join) Kind() (string, error) {
	k := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(j.Type, "_", " ")), " "))
	k = strings.TrimSuffix(k, " JOIN")
	if kw, ok := joinKinds[k]; ok {
		return kw, nil
	}
	return "", fmt.Errorf("join type %q is not allowed", j.Type)
}

func (j *Join) clause() (string, error) {
	kw, err := j.Kind()
	if err != nil {
		return "", err
	}
	to, err := ident(j.ToTable)
	if err != nil {
		return "", err
	}
	left, err := ident(j.FromTable + "." + j.FromColumn)
	if err != nil {
		return "", err
	}
	right, err := ident(j.ToTable + "." + j.ToColumn)
	if err != nil {
		return "", err
	}
	return kw + " " + to + " ON " + left + " = " + right, nil
}

// column quotes a selectable column; "*" and "table.*" stay unquoted stars.
func column(name string) (string, error) {
	if name == "*" {
		return "*", nil
	}
	if t, ok := strings.CutSuffix(name, ".*"); ok {
		q, err := ident(t)
		if err != nil {
			return "", err
		}
		return q + ".*", nil
	}
	return ident(name)
}

// ident quotes a dotted identifier. Quoting makes any embedded quote part of
// the name, so no value can escape into the statement.
func ident(name string) (string, error) {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", fmt.Errorf("empty identifier in %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// Scalar converts a decoded condition value to int64, float64 or string.
func Scalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
