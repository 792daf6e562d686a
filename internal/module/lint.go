package module

import (
	"fmt"
	"strings"
)

// Issue is a descriptor inconsistency found by Lint.
type Issue struct {
	Module  string `json:"module"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s.%s: %s (%s)", i.Module, i.Field, i.Message, i.Code)
}

// Lint checks the static invariants of a descriptor.
func Lint(d *Descriptor) []Issue {
	var issues []Issue
	add := func(field, code, msg string) {
		issues = append(issues, Issue{Module: d.Singular, Field: field, Code: code, Message: msg})
	}

	if strings.TrimSpace(d.Table) == "" {
		add("", "table_empty", "descriptor has no table")
	}
	if strings.TrimSpace(d.Singular) == "" || strings.TrimSpace(d.Plural) == "" {
		add("", "name_empty", "descriptor needs singular and plural names")
	}

	for _, f := range d.DatabaseFields {
		if !contains(d.AllFields, f) {
			add(f, "database_not_declared", "database field is not listed in all fields")
		}
	}
	for _, f := range d.RequiredFields {
		if !d.Persisted(f) {
			add(f, "required_not_persisted", "required field is not a database field")
		}
	}
	for _, f := range d.UniqueFields {
		if !d.Persisted(f) {
			add(f, "unique_not_persisted", "unique field is not a database field")
		}
	}
	for _, f := range d.Fields {
		if !contains(d.AllFields, f.Name) {
			add(f.Name, "typed_not_declared", "typed field is not listed in all fields")
		}
		switch f.Type {
		case String, Number, Boolean, Object:
		default:
			add(f.Name, "type_unknown", fmt.Sprintf("unknown field type %q", f.Type))
		}
	}
	for _, r := range d.RegexFields {
		if r.Pattern == nil {
			add(r.Field, "regex_empty", "regex rule has no pattern")
		}
		if !contains(d.AllFields, r.Field) {
			add(r.Field, "regex_unknown_field", "regex rule targets an unknown field")
		}
	}
	for _, g := range d.GeneratedFields {
		if g.Compute == nil {
			add(g.Field, "generated_no_compute", "generated field has no compute function")
		}
	}
	if d.OrderBy != nil && d.OrderBy.Field != "id" && !d.Persisted(d.OrderBy.Field) {
		add(d.OrderBy.Field, "order_unknown_field", "order field is not a database field")
	}
	return issues
}
