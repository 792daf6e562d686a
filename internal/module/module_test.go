package module

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescriptor() *Descriptor {
	return &Descriptor{
		Table:    "customers",
		Singular: "customer",
		Plural:   "customers",
		Fields: []Field{
			{Name: "name", Type: String},
			{Name: "credit", Type: Number},
			{Name: "active", Type: Boolean},
			{Name: "meta", Type: Object},
		},
		AllFields:      []string{"name", "credit", "active", "meta"},
		RequiredFields: []string{"name"},
		UniqueFields:   []string{"name"},
		DatabaseFields: []string{"name", "credit", "active"},
		RegexFields:    []RegexRule{{Field: "name", Pattern: regexp.MustCompile(`^\w+$`), Message: "bad"}},
		OrderBy:        &Order{Field: "id", Desc: true},
	}
}

func TestCoerce(t *testing.T) {
	d := sampleDescriptor()
	v := Coerce(Values{
		"name":   "",
		"credit": "12",
		"active": "true",
		"meta":   map[string]any{"a": 1},
	}, d.Fields)

	assert.Nil(t, v["name"])
	assert.Equal(t, int64(12), v["credit"])
	assert.Equal(t, false, v["active"])
	assert.Equal(t, map[string]any{"a": 1}, v["meta"])
}

func TestCoerceNumbers(t *testing.T) {
	fields := []Field{{Name: "n", Type: Number}}
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"", nil},
		{float64(3), int64(3)},
		{1.5, 1.5},
		{"2.25", 2.25},
		{true, int64(1)},
	}
	for _, c := range cases {
		v := Coerce(Values{"n": c.in}, fields)
		assert.Equal(t, c.want, v["n"], "input %v", c.in)
	}

	v := Coerce(Values{"n": "abc"}, fields)
	f, ok := v["n"].(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
	assert.True(t, IsInvalidNumber(v["n"]))
}

func TestCoerceKeepsAbsentKeysAbsent(t *testing.T) {
	d := sampleDescriptor()
	v := Coerce(Values{"name": "x"}, d.Fields)
	_, has := v["active"]
	assert.False(t, has)
	_, has = v["credit"]
	assert.False(t, has)
}

func TestCoerceStrictBoolean(t *testing.T) {
	fields := []Field{{Name: "b", Type: Boolean}}
	for _, in := range []any{"true", 1, "1", nil, false} {
		assert.Equal(t, false, Coerce(Values{"b": in}, fields)["b"], "input %v", in)
	}
	assert.Equal(t, true, Coerce(Values{"b": true}, fields)["b"])
}

func TestLintClean(t *testing.T) {
	assert.Empty(t, Lint(sampleDescriptor()))
}

func TestLintIssues(t *testing.T) {
	d := sampleDescriptor()
	d.DatabaseFields = append(d.DatabaseFields, "ghost")
	d.RequiredFields = append(d.RequiredFields, "meta")
	d.OrderBy = &Order{Field: "nope"}

	codes := map[string]bool{}
	for _, i := range Lint(d) {
		codes[i.Code] = true
	}
	assert.True(t, codes["database_not_declared"])
	assert.True(t, codes["required_not_persisted"])
	assert.True(t, codes["order_unknown_field"])
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sampleDescriptor()))
	assert.Error(t, r.Register(sampleDescriptor()))

	d, ok := r.Lookup("Customers")
	require.True(t, ok)
	assert.Equal(t, "customer", d.Singular)

	_, ok = r.Lookup("CUSTOMER")
	assert.True(t, ok)
	_, ok = r.Lookup("orders")
	assert.False(t, ok)

	bad := sampleDescriptor()
	bad.Singular = "other"
	bad.UniqueFields = []string{"meta"}
	assert.Error(t, r.Register(bad))
	assert.Len(t, r.All(), 1)
}
