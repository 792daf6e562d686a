package docs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"metarest/internal/module"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPathAndDocument(t *testing.T) {
	r := New("metarest", "1.0.0")
	r.AddPath("/api/customers/:id", http.MethodGet, &Operation{
		Tags:      []string{"customers"},
		Responses: Responses(Ref("customer"), 200, 404, 500),
	})
	r.AddPath("/api/customers/:id", http.MethodDelete, &Operation{
		Tags:      []string{"customers"},
		Responses: Responses(nil, 204, 404),
	})

	assert.True(t, r.HasPath("/api/customers/:id", http.MethodGet))
	assert.True(t, r.HasPath("/api/customers/{id}", http.MethodDelete))
	assert.False(t, r.HasPath("/api/customers/:id", http.MethodPut))

	doc := r.Document()
	item, ok := doc.Paths["/api/customers/{id}"]
	require.True(t, ok)
	require.NotNil(t, item.Get)
	assert.Equal(t, "#/components/schemas/customer", item.Get.Responses["200"].Content["application/json"].Schema.Ref)
	assert.Equal(t, "#/components/schemas/Error", item.Get.Responses["404"].Content["application/json"].Schema.Ref)
	assert.Nil(t, item.Delete.Responses["204"].Content)
	assert.Len(t, doc.Tags, 1)
}

func TestModuleSchema(t *testing.T) {
	d := &module.Descriptor{
		Fields: []module.Field{
			{Name: "name", Type: module.String},
			{Name: "credit", Type: module.Number},
		},
		RequiredFields: []string{"name"},
		RegexFields:    []module.RegexRule{{Field: "name", Pattern: regexp.MustCompile(`^a`)}},
		AuditFields:    true,
	}
	s := ModuleSchema(d)
	assert.Equal(t, "number", s.Properties["credit"].Type)
	assert.Equal(t, "^a", s.Properties["name"].Pattern)
	assert.Contains(t, s.Properties, "updated_date")
	assert.Equal(t, []string{"name"}, s.Required)
}

func TestHandlerServesJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New("metarest", "1.0.0")
	r.AddPath("/health", http.MethodGet, &Operation{Responses: Responses(nil, 200)})

	e := gin.New()
	e.GET("/api-docs.json", r.Handler())
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api-docs.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/health")
}
