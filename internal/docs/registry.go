// Package docs accumulates the OpenAPI 3.0 document contributed by the
// handler factories during startup wiring.
package docs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"metarest/internal/module"

	"github.com/gin-gonic/gin"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	Description string                `json:"description,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query, header
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Pattern     string             `json:"pattern,omitempty"`
	ReadOnly    bool               `json:"readOnly,omitempty"`
}

type Components struct {
	Schemas         map[string]*Schema        `json:"schemas,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

type SecurityScheme struct {
	Type         string `json:"type"`
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

type SecurityRequirement map[string][]string

// Registry is the document builder handed to every handler factory.
type Registry struct {
	mu   sync.RWMutex
	spec Spec
	tags map[string]struct{}
}

func New(title, version string) *Registry {
	return &Registry{
		spec: Spec{
			OpenAPI: "3.0.3",
			Info:    Info{Title: title, Version: version},
			Paths:   map[string]PathItem{},
			Components: Components{
				Schemas: map[string]*Schema{"Error": ErrorSchema()},
				SecuritySchemes: map[string]SecurityScheme{
					"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
				},
			},
		},
		tags: map[string]struct{}{},
	}
}

// AddPath registers op under path and method. Gin style ":id" segments are
// rewritten to "{id}". A later registration for the same pair replaces the
// earlier one.
func (r *Registry) AddPath(path, method string, op *Operation) {
	path = openAPIPath(path)
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.spec.Paths[path]
	switch strings.ToUpper(method) {
	case http.MethodGet:
		item.Get = op
	case http.MethodPost:
		item.Post = op
	case http.MethodPut:
		item.Put = op
	case http.MethodPatch:
		item.Patch = op
	case http.MethodDelete:
		item.Delete = op
	default:
		return
	}
	r.spec.Paths[path] = item
	for _, t := range op.Tags {
		if _, ok := r.tags[t]; !ok {
			r.tags[t] = struct{}{}
			r.spec.Tags = append(r.spec.Tags, Tag{Name: t})
		}
	}
}

func (r *Registry) AddSchema(name string, s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spec.Components.Schemas[name] = s
}

// HasPath reports whether an operation is registered for path and method.
func (r *Registry) HasPath(path, method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.spec.Paths[openAPIPath(path)]
	if !ok {
		return false
	}
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return item.Get != nil
	case http.MethodPost:
		return item.Post != nil
	case http.MethodPut:
		return item.Put != nil
	case http.MethodPatch:
		return item.Patch != nil
	case http.MethodDelete:
		return item.Delete != nil
	}
	return false
}

// Document returns a snapshot of the accumulated document.
func (r *Registry) Document() Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.spec
	out.Paths = make(map[string]PathItem, len(r.spec.Paths))
	for k, v := range r.spec.Paths {
		out.Paths[k] = v
	}
	out.Components.Schemas = make(map[string]*Schema, len(r.spec.Components.Schemas))
	for k, v := range r.spec.Components.Schemas {
		out.Components.Schemas[k] = v
	}
	out.Tags = append([]Tag(nil), r.spec.Tags...)
	return out
}

// Handler serves the document as JSON.
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, r.Document())
	}
}

func openAPIPath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		if strings.HasPrefix(s, ":") || strings.HasPrefix(s, "*") {
			parts[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

var statusText = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusCreated:             "Created",
	http.StatusNoContent:           "No Content",
	http.StatusMultiStatus:         "Multi-Status, some items failed",
	http.StatusNotModified:         "Not Modified, nothing to update",
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusNotFound:            "Not Found",
	http.StatusInternalServerError: "Internal Server Error",
}

// Responses builds the response map for the given status codes. The first
// 2xx code carries ok as its body schema; error codes carry the error body.
func Responses(ok *Schema, codes ...int) map[string]Response {
	out := make(map[string]Response, len(codes))
	okSet := false
	for _, code := range codes {
		resp := Response{Description: statusText[code]}
		if resp.Description == "" {
			resp.Description = http.StatusText(code)
		}
		switch {
		case code >= 200 && code < 300 && !okSet && ok != nil:
			resp.Content = jsonContent(ok)
			okSet = true
		case code >= 400:
			resp.Content = jsonContent(Ref("Error"))
		}
		out[strconv.Itoa(code)] = resp
	}
	return out
}

func jsonContent(s *Schema) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: s}}
}

// JSONBody wraps s as a required JSON request body.
func JSONBody(s *Schema) *RequestBody {
	return &RequestBody{Required: true, Content: jsonContent(s)}
}

func Ref(name string) *Schema { return &Schema{Ref: "#/components/schemas/" + name} }

func ArrayOf(s *Schema) *Schema { return &Schema{Type: "array", Items: s} }

func PathParam(name, typ string) Parameter {
	return Parameter{Name: name, In: "path", Required: true, Schema: &Schema{Type: typ}}
}

func QueryParam(name, description string) Parameter {
	return Parameter{Name: name, In: "query", Description: description, Schema: &Schema{Type: "string"}}
}

// Bearer marks an operation as requiring the bearer token.
func Bearer() []SecurityRequirement {
	return []SecurityRequirement{{"bearerAuth": {}}}
}

// ErrorSchema is the 4xx/5xx body.
func ErrorSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"error":   {Type: "string"},
			"fields":  ArrayOf(&Schema{Type: "string"}),
			"details": {Type: "string"},
		},
		Required: []string{"error"},
	}
}

// ModuleSchema describes a row of d from its typed sample fields.
func ModuleSchema(d *module.Descriptor) *Schema {
	s := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"id":         {Type: "integer", Format: "int64", ReadOnly: true},
			"active":     {Type: "boolean"},
			"created_at": {Type: "string", Format: "date-time", ReadOnly: true},
		},
	}
	for _, f := range append(append([]module.Field(nil), d.Fields...), d.ArrayFields...) {
		s.Properties[f.Name] = fieldSchema(f)
	}
	for _, r := range d.RegexFields {
		if p, ok := s.Properties[r.Field]; ok && r.Pattern != nil {
			p.Pattern = r.Pattern.String()
		}
	}
	if d.AuditFields {
		for _, a := range []string{"added_by", "updated_by"} {
			s.Properties[a] = &Schema{Type: "integer", Format: "int64", ReadOnly: true}
		}
		for _, a := range []string{"added_date", "updated_date"} {
			s.Properties[a] = &Schema{Type: "string", Format: "date-time", ReadOnly: true}
		}
	}
	s.Required = append(s.Required, d.RequiredFields...)
	return s
}

func fieldSchema(f module.Field) *Schema {
	switch f.Type {
	case module.Number:
		return &Schema{Type: "number"}
	case module.Boolean:
		return &Schema{Type: "boolean"}
	case module.Object:
		return &Schema{Type: "object"}
	default:
		return &Schema{Type: "string"}
	}
}
