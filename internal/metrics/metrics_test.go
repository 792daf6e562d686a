package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	e := gin.New()
	e.Use(m.Middleware())
	e.GET("/api/customers/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.GET("/metrics", gin.WrapH(m.Handler()))

	for _, p := range []string{"/api/customers/1", "/api/customers/2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	m.BulkItems.WithLabelValues("customer", "failed").Add(3)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `metarest_requests_total{method="GET",route="/api/customers/:id",status="200"} 2`)
	assert.Contains(t, body, `metarest_bulk_items_total{module="customer",outcome="failed"} 3`)
}
