package api

import (
	"context"
	"net/http"
	"time"

	"metarest/internal/auth"
	"metarest/internal/logging"
	"metarest/internal/module"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter mounts the routes of every registered module plus the service
// endpoints. tokens may be nil, in which case requests stay anonymous.
func NewRouter(e *Engine, reg *module.Registry, tokens *auth.TokenService) *gin.Engine {
	r := gin.New()
	r.Use(logging.RequestID(), logging.Middleware(e.Log), e.Recovery())
	if e.Metrics != nil {
		r.Use(e.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(e.Metrics.Handler()))
	}

	r.GET("/health", HealthHandler(e))
	if e.Docs != nil {
		r.GET("/api-docs.json", e.Docs.Handler())
		r.GET("/api-docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/api-docs.json"))))
	}
	if lb, ok := e.Blob.(*LocalBlobStore); ok {
		r.Static(e.UploadURLPath, lb.Root)
	}

	apiGroup := r.Group("/api")
	if tokens != nil {
		apiGroup.Use(auth.RequireForMutations(tokens))
	}
	apiGroup.GET("/_meta", MetaListHandler(e, reg))
	apiGroup.GET("/_meta/:module", MetaModuleHandler(reg))

	for _, d := range reg.All() {
		Mount(e, r.Group(e.BasePath(d)), d, tokens)
	}
	return r
}

// Mount registers the routes of d on g. Modules with dependent fields get
// the transactional route set: list by parent, upload, update and delete.
func Mount(e *Engine, g *gin.RouterGroup, d *module.Descriptor, tokens *auth.TokenService) {
	if tokens != nil {
		g.Use(auth.RequireForMutations(tokens))
	}
	if len(d.DependentFields) > 0 {
		g.GET(dependentRoute(d), ListByDependentsHandler(e, d))
		g.POST(dependentRoute(d), UploadFiles(e.Blob, "files", e.MaxUploadBytes), RegisterFilesHandler(e, d))
		g.PUT("/:id", UpdateOneHandler(e, d))
		g.DELETE("/:id", SoftDeleteHandler(e, d))
		return
	}

	// static segments first
	g.POST("/multiple", CreateMultipleHandler(e, d))
	g.GET("/export", ExportHandler(e, d))

	g.POST("", CreateOneHandler(e, d))
	g.GET("", GetAllHandler(e, d))
	g.GET("/:id", GetOneHandler(e, d))
	g.PUT("/:id", UpdateOneHandler(e, d))
	g.DELETE("/:id", SoftDeleteHandler(e, d))
}

// GET /health
func HealthHandler(e *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := e.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
