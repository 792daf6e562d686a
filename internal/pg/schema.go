package pg

import (
	"fmt"
	"sort"
	"strings"

	"metarest/internal/module"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

func sqlIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

// system columns every module table carries
var systemColumns = []string{
	`"id" bigserial primary key`,
	`"active" boolean not null default true`,
	`"created_at" timestamp with time zone not null default now()`,
}

var auditColumns = []string{
	`"added_by" bigint`,
	`"added_date" timestamp with time zone`,
	`"updated_by" bigint`,
	`"updated_date" timestamp with time zone`,
}

func mapType(f module.Field) (string, error) {
	if f.SQLType != "" {
		return f.SQLType, nil
	}
	switch f.Type {
	case module.String:
		return "text", nil
	case module.Number:
		return "numeric", nil
	case module.Boolean:
		return "boolean", nil
	case module.Object:
		return "jsonb", nil
	default:
		return "", fmt.Errorf("unknown type: %s", f.Type)
	}
}

// GenerateDDL returns ordered-key -> SQL for the given descriptors: tables
// first, then unique indexes.
func GenerateDDL(descs []*module.Descriptor) (map[string]string, error) {
	sorted := append([]*module.Descriptor(nil), descs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Table < sorted[j].Table })

	out := make(map[string]string, len(sorted)*2)
	for _, d := range sorted {
		if isReserved(d.Table) {
			return nil, fmt.Errorf("%s: table name %q is a reserved word", d.Singular, d.Table)
		}

		cols := append([]string(nil), systemColumns...)
		seen := map[string]struct{}{"id": {}, "active": {}, "created_at": {}}
		if d.AuditFields {
			cols = append(cols, auditColumns...)
			for _, c := range []string{"added_by", "added_date", "updated_by", "updated_date"} {
				seen[c] = struct{}{}
			}
		}

		for _, name := range d.DatabaseFields {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			f, ok := d.Field(name)
			if !ok {
				return nil, fmt.Errorf("%s.%s: database field has no type", d.Singular, name)
			}
			typ, err := mapType(f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", d.Singular, name, err)
			}
			null := "null"
			if contains(d.RequiredFields, name) {
				null = "not null"
			}
			cols = append(cols, fmt.Sprintf("%s %s %s", sqlIdent(name), typ, null))
		}

		out["100_"+d.Table] = fmt.Sprintf("create table if not exists %s (\n  %s\n);",
			sqlIdent(d.Table), strings.Join(cols, ",\n  "))

		var idx strings.Builder
		for _, u := range d.UniqueFields {
			fmt.Fprintf(&idx, "create unique index if not exists %s on %s(%s);\n",
				sqlIdent(d.Table+"_"+u+"_uq"), sqlIdent(d.Table), sqlIdent(u))
		}
		for _, dep := range d.DependentFields {
			fmt.Fprintf(&idx, "create index if not exists %s on %s(%s);\n",
				sqlIdent(d.Table+"_"+dep+"_idx"), sqlIdent(d.Table), sqlIdent(dep))
		}
		if idx.Len() > 0 {
			out["200_"+d.Table] = idx.String()
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
