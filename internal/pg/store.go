package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"metarest/internal/query"
	"metarest/internal/store"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store implements store.Store on a database/sql pool.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func table(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func setMap(row store.Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if k == "id" {
			continue
		}
		out[pgx.Identifier{k}.Sanitize()] = v
	}
	return out
}

func (s *Store) Insert(ctx context.Context, tbl string, row store.Row) (store.Row, error) {
	if err := store.CheckValues(row); err != nil {
		return nil, err
	}
	values := setMap(row)
	var (
		q    string
		args []any
		err  error
	)
	if len(values) == 0 {
		q = "INSERT INTO " + table(tbl) + " DEFAULT VALUES RETURNING *"
	} else {
		q, args, err = psql.Insert(table(tbl)).SetMap(values).Suffix("RETURNING *").ToSql()
		if err != nil {
			return nil, err
		}
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", tbl)
	}
	return rows[0], nil
}

func (s *Store) Update(ctx context.Context, tbl string, id int64, row store.Row) (store.Row, error) {
	if err := store.CheckValues(row); err != nil {
		return nil, err
	}
	values := setMap(row)
	if len(values) == 0 {
		return s.Get(ctx, tbl, id)
	}
	q, args, err := psql.Update(table(tbl)).SetMap(values).
		Where(sq.Eq{`"id"`: id}).Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Get(ctx context.Context, tbl string, id int64) (store.Row, error) {
	q, args, err := psql.Select("*").From(table(tbl)).Where(sq.Eq{`"id"`: id}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Count(ctx context.Context, tbl string, filters ...store.Filter) (int64, error) {
	b := psql.Select("COUNT(*)").From(table(tbl))
	for _, f := range filters {
		col := pgx.Identifier{f.Column}.Sanitize()
		if f.Not {
			b = b.Where(sq.NotEq{col: f.Value})
		} else {
			b = b.Where(sq.Eq{col: f.Value})
		}
	}
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (s *Store) Select(ctx context.Context, sel *query.Select) ([]store.Row, error) {
	q, args, err := sel.ToSQL()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, q, args...)
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

func (s *Store) query(ctx context.Context, q string, args ...any) ([]store.Row, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	out := []store.Row{}
	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapError(err)
		}
		r := make(store.Row, len(types))
		for i, ct := range types {
			r[ct.Name()] = normalize(ct.DatabaseTypeName(), vals[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// normalize turns driver values into JSON-friendly scalars. numeric arrives
// as text and is parsed back into a number.
func normalize(dbType string, v any) any {
	switch t := v.(type) {
	case []byte:
		v = string(t)
	}
	if s, ok := v.(string); ok && strings.EqualFold(dbType, "NUMERIC") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return v
}

// mapError translates PostgreSQL error classes into store sentinels.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "22"):
		return fmt.Errorf("%s: %w", pgErr.Message, store.ErrInvalidValue)
	case pgErr.Code == "23502":
		return fmt.Errorf("column %s must not be null: %w", pgErr.ColumnName, store.ErrInvalidValue)
	case pgErr.Code == "23505":
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrDuplicate)
	}
	return err
}
