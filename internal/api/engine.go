package api

import (
	"strings"
	"time"

	"metarest/internal/docs"
	"metarest/internal/metrics"
	"metarest/internal/module"
	"metarest/internal/store"

	"github.com/rs/zerolog"
)

// Engine carries the collaborators shared by every handler factory. It is
// built once at startup and only read afterwards.
type Engine struct {
	Store    store.Store
	Docs     *docs.Registry
	Log      zerolog.Logger
	Reporter Reporter
	Metrics  *metrics.Collector // optional

	// Production hides error details and stacks from clients.
	Production bool

	Blob           BlobStore
	UploadURLPath  string
	MaxUploadBytes int64

	now func() time.Time
}

func NewEngine(st store.Store, reg *docs.Registry, log zerolog.Logger, m *metrics.Collector) *Engine {
	return &Engine{
		Store:          st,
		Docs:           reg,
		Log:            log,
		Reporter:       LogReporter{Log: log, Metrics: m},
		Metrics:        m,
		UploadURLPath:  "/uploads",
		MaxUploadBytes: 10 << 20,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// BasePath is where the routes of d are mounted.
func (e *Engine) BasePath(d *module.Descriptor) string {
	return "/api/" + strings.ToLower(d.Plural)
}
