package module

import (
	"context"
	"regexp"
)

// FieldType is the canonical scalar type of a descriptor field.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Boolean FieldType = "boolean"
	Object  FieldType = "object"
)

// Values is an untyped request payload keyed by field name.
type Values map[string]any

// Field describes one typed field of a module (name == column name).
type Field struct {
	Name    string
	Type    FieldType
	SQLType string // optional column type override for DDL generation
}

// RegexRule rejects a present value that does not match Pattern.
type RegexRule struct {
	Field   string
	Pattern *regexp.Regexp
	Message string
}

// ComputeFunc derives a server-side value. id is nil on create.
// A nil result leaves the payload value untouched.
type ComputeFunc func(ctx context.Context, values Values, id *int64) (any, error)

// GeneratedField is a value computed by the server before persisting.
type GeneratedField struct {
	Field   string
	Compute ComputeFunc
}

// Order is the default ordering of list queries.
type Order struct {
	Field string
	Desc  bool
}

// PreDeleteFunc runs before a soft delete. A non-nil error aborts the delete;
// a *Rejection is rendered to the client as-is.
type PreDeleteFunc func(ctx context.Context, row map[string]any) error

// Rejection is a client-facing refusal returned by a PreDeleteFunc.
type Rejection struct {
	Message string   `json:"error"`
	Fields  []string `json:"fields,omitempty"`
}

func (r *Rejection) Error() string { return r.Message }

// Descriptor is the static, process-wide declaration of one entity.
type Descriptor struct {
	Table    string
	Singular string
	Plural   string

	Fields      []Field // typed sample fields used for coercion and docs
	ArrayFields []Field

	AllFields       []string
	RequiredFields  []string
	UniqueFields    []string
	DatabaseFields  []string
	DependentFields []string

	RegexFields     []RegexRule
	GeneratedFields []GeneratedField

	OrderBy       *Order
	AuditFields   bool
	PreDelete     PreDeleteFunc
	UsePermission bool
}

// Field returns the typed field declaration by name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range d.ArrayFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Persisted reports whether name is one of the database fields.
func (d *Descriptor) Persisted(name string) bool {
	return contains(d.DatabaseFields, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
