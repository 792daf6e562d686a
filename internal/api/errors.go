package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"metarest/internal/metrics"
	"metarest/internal/module"
	"metarest/internal/query"
	"metarest/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ValidationError is malformed, missing or pattern-failing input (400).
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError is a uniqueness violation (400).
type ConflictError struct {
	Message string
	Fields  []string
}

func (e *ConflictError) Error() string { return e.Message }

// NotFoundError is a missing row (404).
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// UnauthorizedError is a request that needs an authenticated user (401).
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// ForbiddenError is a failed permission check (403).
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ErrNoOp is an update whose payload projects onto no column (304).
var ErrNoOp = errors.New("no fields to update")

// InternalError is a storage or unexpected failure (500).
type InternalError struct {
	Err   error
	Stack []byte
}

func (e *InternalError) Error() string { return e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

func internal(err error) *InternalError {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie
	}
	return &InternalError{Err: err, Stack: debug.Stack()}
}

// Reporter is the process-wide sink for internal errors.
type Reporter interface {
	Report(ctx context.Context, moduleName, operation string, err error)
}

// LogReporter logs internal errors and counts them.
type LogReporter struct {
	Log     zerolog.Logger
	Metrics *metrics.Collector
}

func (r LogReporter) Report(_ context.Context, moduleName, operation string, err error) {
	ev := r.Log.Error().Err(err).Str("module", moduleName).Str("operation", operation)
	var ie *InternalError
	if errors.As(err, &ie) && len(ie.Stack) > 0 {
		ev = ev.Str("stack", string(ie.Stack))
	}
	ev.Msg("internal error")
	if r.Metrics != nil {
		r.Metrics.Errors.WithLabelValues(moduleName, operation).Inc()
	}
}

// humanize turns a column name into "Title Case" words.
func humanize(field string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(field, "_", " "))
}

func conflict(field string, value any, quoted bool) *ConflictError {
	msg := humanize(field) + " already exists"
	if quoted {
		msg = fmt.Sprintf("%s '%v' already exists", humanize(field), value)
	}
	return &ConflictError{Message: msg, Fields: []string{field}}
}

func errorBody(msg string, fields []string) gin.H {
	h := gin.H{"error": msg}
	if len(fields) > 0 {
		h["fields"] = fields
	}
	return h
}

// classify maps err onto a status code and a client body. Internal errors
// are reported before the body is built.
func (e *Engine) classify(ctx context.Context, d *module.Descriptor, op string, err error) (int, gin.H) {
	var (
		ve  *ValidationError
		ce  *ConflictError
		ne  *NotFoundError
		ue  *UnauthorizedError
		fe  *ForbiddenError
		qe  *query.Error
		rej *module.Rejection
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody(ve.Message, ve.Fields)
	case errors.As(err, &ce):
		return http.StatusBadRequest, errorBody(ce.Message, ce.Fields)
	case errors.As(err, &rej):
		return http.StatusBadRequest, errorBody(rej.Message, rej.Fields)
	case errors.As(err, &qe):
		return http.StatusBadRequest, errorBody(qe.Error(), []string{qe.Param})
	case errors.As(err, &ne):
		return http.StatusNotFound, errorBody(ne.Message, nil)
	case errors.As(err, &ue):
		return http.StatusUnauthorized, errorBody(ue.Message, nil)
	case errors.As(err, &fe):
		return http.StatusForbidden, errorBody(fe.Message, nil)
	case errors.Is(err, ErrNoOp):
		return http.StatusNotModified, gin.H{"message": "No fields to update"}
	case errors.Is(err, store.ErrInvalidValue):
		return http.StatusBadRequest, errorBody(err.Error(), nil)
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusBadRequest, errorBody(humanize(moduleName(d))+" already exists", nil)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody(moduleName(d)+" not found", nil)
	case errors.Is(err, store.ErrUnsupported):
		return http.StatusNotImplemented, errorBody(err.Error(), nil)
	}

	ie := internal(err)
	e.Reporter.Report(ctx, moduleName(d), op, ie)
	body := gin.H{"error": "Internal Server Error"}
	if !e.Production {
		body["details"] = ie.Error()
		body["stack"] = string(ie.Stack)
	}
	return http.StatusInternalServerError, body
}

// fail writes the response for err and aborts the chain.
func (e *Engine) fail(c *gin.Context, d *module.Descriptor, op string, err error) {
	code, body := e.classify(c.Request.Context(), d, op, err)
	if code < http.StatusInternalServerError {
		e.Log.Debug().Err(err).Str("module", moduleName(d)).Str("operation", op).Int("status", code).Msg("request rejected")
	}
	c.AbortWithStatusJSON(code, body)
}

// Recovery converts panics into reported internal errors.
func (e *Engine) Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		e.fail(c, nil, "panic", &InternalError{Err: fmt.Errorf("panic: %v", recovered), Stack: debug.Stack()})
	})
}

func moduleName(d *module.Descriptor) string {
	if d == nil {
		return ""
	}
	return d.Singular
}
