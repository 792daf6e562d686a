package api

import (
	"net/http"
	"sort"

	"metarest/internal/module"

	"github.com/gin-gonic/gin"
)

type metaModuleListItem struct {
	Singular string `json:"singular"`
	Plural   string `json:"plural"`
	Table    string `json:"table"`
	Path     string `json:"path"`
}

// GET /api/_meta
func MetaListHandler(e *Engine, reg *module.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := reg.All()
		out := make([]metaModuleListItem, 0, len(all))
		for _, d := range all {
			out = append(out, metaModuleListItem{
				Singular: d.Singular,
				Plural:   d.Plural,
				Table:    d.Table,
				Path:     e.BasePath(d),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Array     bool   `json:"array,omitempty"`
	Required  bool   `json:"required,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
	Persisted bool   `json:"persisted"`
	Generated bool   `json:"generated,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

type metaModule struct {
	Singular        string      `json:"singular"`
	Plural          string      `json:"plural"`
	Table           string      `json:"table"`
	Fields          []metaField `json:"fields"`
	DependentFields []string    `json:"dependentFields,omitempty"`
	OrderBy         *metaOrder  `json:"orderBy,omitempty"`
	AuditFields     bool        `json:"auditFields"`
	UsePermission   bool        `json:"usePermission"`
	HasPreDelete    bool        `json:"hasPreDelete"`
}

type metaOrder struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// GET /api/_meta/:module
func MetaModuleHandler(reg *module.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := reg.Lookup(c.Param("module"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		c.JSON(http.StatusOK, describe(d))
	}
}

func describe(d *module.Descriptor) metaModule {
	set := func(list []string) map[string]bool {
		m := make(map[string]bool, len(list))
		for _, s := range list {
			m[s] = true
		}
		return m
	}
	required, unique := set(d.RequiredFields), set(d.UniqueFields)
	generated := map[string]bool{}
	for _, g := range d.GeneratedFields {
		generated[g.Field] = true
	}
	patterns := map[string]string{}
	for _, r := range d.RegexFields {
		if r.Pattern != nil {
			patterns[r.Field] = r.Pattern.String()
		}
	}

	seen := map[string]bool{}
	var fields []metaField
	add := func(name string, typ module.FieldType, array bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		fields = append(fields, metaField{
			Name:      name,
			Type:      string(typ),
			Array:     array,
			Required:  required[name],
			Unique:    unique[name],
			Persisted: d.Persisted(name),
			Generated: generated[name],
			Pattern:   patterns[name],
		})
	}
	for _, f := range d.Fields {
		add(f.Name, f.Type, false)
	}
	for _, f := range d.ArrayFields {
		add(f.Name, f.Type, true)
	}
	// declared but untyped fields are reported as strings
	rest := append(append([]string(nil), d.AllFields...), d.DatabaseFields...)
	sort.Strings(rest)
	for _, name := range rest {
		add(name, module.String, false)
	}

	out := metaModule{
		Singular:        d.Singular,
		Plural:          d.Plural,
		Table:           d.Table,
		Fields:          fields,
		DependentFields: d.DependentFields,
		AuditFields:     d.AuditFields,
		UsePermission:   d.UsePermission,
		HasPreDelete:    d.PreDelete != nil,
	}
	if d.OrderBy != nil {
		out.OrderBy = &metaOrder{Field: d.OrderBy.Field, Desc: d.OrderBy.Desc}
	}
	return out
}
