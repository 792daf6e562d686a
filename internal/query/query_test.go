package query

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) *Select {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	s, err := Parse("customers", q)
	require.NoError(t, err)
	return s
}

func TestParseDefaults(t *testing.T) {
	s := parse(t, "")
	cols, from, where, args, err := s.Fragments()
	require.NoError(t, err)
	assert.Equal(t, "*", cols)
	assert.Equal(t, `"customers"`, from)
	assert.Empty(t, where)
	assert.Empty(t, args)

	sql, args, err := s.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "customers"`, sql)
	assert.Empty(t, args)
}

func TestUndefinedMeansAbsent(t *testing.T) {
	s := parse(t, "conditions=undefined&joins=undefined&selectedFields=undefined")
	assert.Empty(t, s.And)
	assert.Empty(t, s.Joins)
	assert.Empty(t, s.Columns)
}

func TestEqualityFilters(t *testing.T) {
	s := parse(t, "name=bob&city=a&city=b")
	_, _, where, args, err := s.Fragments()
	require.NoError(t, err)
	assert.Contains(t, where, `"city" IN ($1,$2)`)
	assert.Contains(t, where, `"name" = $3`)
	assert.Equal(t, []any{"a", "b", "bob"}, args)
}

func TestIDMatchValueIsBound(t *testing.T) {
	conds := `[{"type":"id_match","table":"t","column":"c","value":"a'b"}]`
	s := parse(t, "conditions="+url.QueryEscape(conds))
	_, _, where, args, err := s.Fragments()
	require.NoError(t, err)
	assert.Contains(t, where, `"t"."c" = $1`)
	assert.NotContains(t, where, "a'b")
	assert.Equal(t, []any{"a'b"}, args)
}

func TestInjectionStaysInArgs(t *testing.T) {
	conds := `[{"type":"id_match","table":"t","column":"c","value":"x'; DROP TABLE t; --"}]`
	s := parse(t, "conditions="+url.QueryEscape(conds)+"&name="+url.QueryEscape("'; DELETE FROM customers; --"))
	sql, args, err := s.ToSQL()
	require.NoError(t, err)
	assert.NotContains(t, sql, ";")
	assert.NotContains(t, sql, "DROP")
	assert.Contains(t, args, "x'; DROP TABLE t; --")
}

func TestQuotedIdentifiers(t *testing.T) {
	conds := `[{"type":"id_match","table":"t","column":"c\"; DROP TABLE t; --","value":1}]`
	s := parse(t, "conditions="+url.QueryEscape(conds))
	_, _, where, args, err := s.Fragments()
	require.NoError(t, err)
	assert.Contains(t, where, `"t"."c""; DROP TABLE t; --"`)
	assert.Equal(t, []any{int64(1)}, args)
}

func TestDateRange(t *testing.T) {
	cases := []struct {
		cond string
		want string
		args []any
	}{
		{`{"type":"date_range","table":"o","column":"d","start":"2024-01-01","end":"2024-02-01"}`, `"o"."d" BETWEEN $1 AND $2`, []any{"2024-01-01", "2024-02-01"}},
		{`{"type":"date_range","table":"o","column":"d","start":"2024-01-01"}`, `"o"."d" >= $1`, []any{"2024-01-01"}},
		{`{"type":"date_range","table":"o","column":"d","end":"2024-02-01"}`, `"o"."d" <= $1`, []any{"2024-02-01"}},
		{`{"type":"date_range_column","table":"o","date":"2024-01-05","startColumn":"s","endColumn":"e"}`, `$1 BETWEEN "o"."s" AND "o"."e"`, []any{"2024-01-05"}},
	}
	for _, c := range cases {
		s := parse(t, "conditions="+url.QueryEscape("["+c.cond+"]"))
		_, _, where, args, err := s.Fragments()
		require.NoError(t, err)
		assert.Contains(t, where, c.want)
		assert.Equal(t, c.args, args)
	}
}

func TestEmptyRangesAreSkipped(t *testing.T) {
	conds := `[{"type":"date_range","table":"o","column":"d"},{"type":"date_range_column","table":"o","date":"x","startColumn":"s"}]`
	s := parse(t, "conditions="+url.QueryEscape(conds))
	_, _, where, args, err := s.Fragments()
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestAndOrCombination(t *testing.T) {
	and := `[{"type":"id_match","table":"t","column":"a","value":"1"}]`
	or := `[{"type":"id_match","table":"t","column":"b","value":"2"},{"type":"id_match","table":"t","column":"c","value":"3"}]`

	s := parse(t, "conditions="+url.QueryEscape(and)+"&orConditions="+url.QueryEscape(or))
	_, _, where, args, err := s.Fragments()
	require.NoError(t, err)
	assert.Equal(t, `(("t"."a" = $1) AND ("t"."b" = $2 OR "t"."c" = $3))`, where)
	assert.Equal(t, []any{"1", "2", "3"}, args)

	s = parse(t, "orConditions="+url.QueryEscape(or))
	_, _, where, _, err = s.Fragments()
	require.NoError(t, err)
	assert.Equal(t, `("t"."b" = $1 OR "t"."c" = $2)`, where)
}

func TestJoinsAndColumns(t *testing.T) {
	joins := `[{"type":"LEFT JOIN","fromTable":"customers","fromColumn":"id","toTable":"attachments","toColumn":"row_id"},{"type":"inner","fromTable":"customers","fromColumn":"id","toTable":"orders","toColumn":"customer_id"}]`
	fields := `["customers.name","attachments.*"]`
	s := parse(t, "joins="+url.QueryEscape(joins)+"&selectedFields="+url.QueryEscape(fields))
	cols, from, _, _, err := s.Fragments()
	require.NoError(t, err)
	assert.Equal(t, `"customers"."name", "attachments".*`, cols)
	assert.Equal(t, `"customers" LEFT JOIN "attachments" ON "customers"."id" = "attachments"."row_id" INNER JOIN "orders" ON "customers"."id" = "orders"."customer_id"`, from)

	sql, _, err := s.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "customers" LEFT JOIN "attachments"`)
}

func TestOrder(t *testing.T) {
	s := parse(t, "")
	s.Order = &Order{Column: "id", Desc: true}
	sql, _, err := s.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "customers" ORDER BY "customers"."id" DESC`, sql)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"conditions=" + url.QueryEscape("[{"):                                               ParamConditions,
		"orConditions=" + url.QueryEscape(`[{"type":"like","column":"a"}]`):                ParamOrConditions,
		"joins=" + url.QueryEscape(`[{"type":"CROSS; DROP","fromTable":"a","fromColumn":"b","toTable":"c","toColumn":"d"}]`): ParamJoins,
		"selectedFields=" + url.QueryEscape(`["a..b"]`):                                     ParamSelectedFields,
		"conditions=" + url.QueryEscape(`[{"type":"id_match","column":"a"}]`):               ParamConditions,
	}
	for raw, param := range cases {
		q, err := url.ParseQuery(raw)
		require.NoError(t, err)
		_, err = Parse("customers", q)
		var qe *Error
		require.True(t, errors.As(err, &qe), raw)
		assert.Equal(t, param, qe.Param)
	}
}

func TestJoinKind(t *testing.T) {
	for in, want := range map[string]string{
		"INNER JOIN":      "INNER JOIN",
		"left":            "LEFT JOIN",
		"FULL_OUTER":      "FULL OUTER JOIN",
		"full outer join": "FULL OUTER JOIN",
		"RIGHT JOIN":      "RIGHT JOIN",
	} {
		j := Join{Type: in}
		got, err := j.Kind()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := (&Join{Type: "CROSS"}).Kind()
	assert.Error(t, err)
}
