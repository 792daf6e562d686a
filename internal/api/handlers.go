package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"metarest/internal/auth"
	"metarest/internal/docs"
	"metarest/internal/module"
	"metarest/internal/query"
	"metarest/internal/store"

	"github.com/gin-gonic/gin"
)

// Permission actions.
const (
	actionCreate = "create"
	actionRead   = "read"
	actionUpdate = "update"
	actionDelete = "delete"
	actionExport = "export"
)

// FilePathField is the attachment column holding the public file path.
const FilePathField = "file_path"

// BulkFailure is one rejected element of a bulk create.
type BulkFailure struct {
	Index  int      `json:"index"`
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// BulkResult is the body of a bulk create. Partial success is reported
// with 207.
type BulkResult struct {
	Message         string        `json:"message"`
	InsertedCount   int           `json:"inserted_count"`
	FailedCount     int           `json:"failed_count,omitempty"`
	InsertedData    []store.Row   `json:"inserted_data"`
	InsertedIndexes []int         `json:"inserted_indexes,omitempty"`
	Errors          []BulkFailure `json:"errors,omitempty"`
}

// POST /api/<plural>
func CreateOneHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	e.document(d, e.BasePath(d), http.MethodPost, &docs.Operation{
		Summary:     "Create a " + d.Singular + " record",
		OperationID: "create" + schemaName(d),
		RequestBody: docs.JSONBody(e.schemaRef(d)),
		Responses:   docs.Responses(e.schemaRef(d), 201, 400, 401, 403, 500),
	})
	const op = "createOne"

	return func(c *gin.Context) {
		_, claims, ok := e.authorize(c, d, actionCreate, op)
		if !ok {
			return
		}
		body, err := bindObject(c)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		ctx := c.Request.Context()
		row, err := e.prepare(ctx, d, body, mutation{claims: claims})
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		out, err := e.Store.Insert(ctx, d.Table, row)
		if err != nil {
			e.fail(c, d, op, fmt.Errorf("insert %s: %w", d.Table, err))
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

// POST /api/<plural>/multiple
func CreateMultipleHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	e.document(d, e.BasePath(d)+"/multiple", http.MethodPost, &docs.Operation{
		Summary:     "Create multiple " + d.Plural + " records",
		OperationID: "createMultiple" + schemaName(d),
		RequestBody: docs.JSONBody(docs.ArrayOf(e.schemaRef(d))),
		Responses:   docs.Responses(bulkSchema(e.schemaRef(d)), 201, 207, 400, 401, 403, 500),
	})
	const op = "createMultiple"

	return func(c *gin.Context) {
		_, claims, ok := e.authorize(c, d, actionCreate, op)
		if !ok {
			return
		}
		var body any
		if err := c.ShouldBindJSON(&body); err != nil {
			e.fail(c, d, op, &ValidationError{Message: "Invalid JSON body"})
			return
		}
		items, isArray := body.([]any)
		if !isArray || len(items) == 0 {
			e.fail(c, d, op, &ValidationError{Message: "Request body must be a non-empty array of " + d.Plural})
			return
		}
		if d.AuditFields && claims == nil {
			e.fail(c, d, op, &UnauthorizedError{Message: "Unauthorized"})
			return
		}

		ctx := c.Request.Context()
		res := BulkResult{InsertedData: []store.Row{}}
		for i, item := range items {
			obj, isObject := item.(map[string]any)
			if !isObject {
				res.Errors = append(res.Errors, BulkFailure{Index: i, Error: "Item must be a JSON object", Fields: []string{}})
				continue
			}
			row, err := e.prepare(ctx, d, obj, mutation{claims: claims, bulk: true})
			if err == nil {
				row, err = e.Store.Insert(ctx, d.Table, row)
			}
			if err != nil {
				e.Log.Debug().Err(err).Str("module", d.Singular).Int("index", i).Msg("bulk item rejected")
				res.Errors = append(res.Errors, e.bulkFailure(c, d, i, err))
				continue
			}
			res.InsertedData = append(res.InsertedData, row)
			res.InsertedIndexes = append(res.InsertedIndexes, i)
		}
		res.InsertedCount = len(res.InsertedData)
		res.FailedCount = len(res.Errors)
		if e.Metrics != nil {
			e.Metrics.BulkItems.WithLabelValues(d.Singular, "inserted").Add(float64(res.InsertedCount))
			e.Metrics.BulkItems.WithLabelValues(d.Singular, "failed").Add(float64(res.FailedCount))
		}

		if res.FailedCount > 0 {
			res.Message = "Bulk insert completed with some items failed."
			c.JSON(http.StatusMultiStatus, res)
			return
		}
		res.Message = "All " + d.Plural + " inserted successfully!"
		res.InsertedIndexes = nil
		c.JSON(http.StatusCreated, res)
	}
}

func (e *Engine) bulkFailure(c *gin.Context, d *module.Descriptor, index int, err error) BulkFailure {
	code, body := e.classify(c.Request.Context(), d, "createMultiple", err)
	f := BulkFailure{Index: index, Fields: []string{}}
	f.Error, _ = body["error"].(string)
	if fields, ok := body["fields"].([]string); ok {
		f.Fields = fields
	}
	if code >= http.StatusInternalServerError && !e.Production {
		f.Error = err.Error()
	}
	return f
}

// GET /api/<plural>
func GetAllHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	e.document(d, e.BasePath(d), http.MethodGet, &docs.Operation{
		Summary:     "Get all " + d.Plural + " records",
		OperationID: "list" + schemaName(d),
		Parameters:  listParams(),
		Responses:   docs.Responses(docs.ArrayOf(e.schemaRef(d)), 200, 400, 403, 500),
	})
	const op = "getAll"

	return func(c *gin.Context) {
		access, claims, ok := e.authorize(c, d, actionRead, op)
		if !ok {
			return
		}
		sel, err := e.listQuery(d, c.Request.URL.Query(), access, claims)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		rows, err := e.Store.Select(c.Request.Context(), sel)
		if err != nil {
			e.fail(c, d, op, fmt.Errorf("select %s: %w", d.Table, err))
			return
		}
		if rows == nil {
			rows = []store.Row{}
		}
		c.JSON(http.StatusOK, rows)
	}
}

// GET /api/<plural>/:id
func GetOneHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	e.document(d, e.BasePath(d)+"/:id", http.MethodGet, &docs.Operation{
		Summary:     "Get a single " + d.Singular + " record by ID",
		OperationID: "get" + schemaName(d),
		Parameters:  []docs.Parameter{docs.PathParam("id", "integer")},
		Responses:   docs.Responses(e.schemaRef(d), 200, 400, 403, 404, 500),
	})
	const op = "getOne"

	return func(c *gin.Context) {
		access, claims, ok := e.authorize(c, d, actionRead, op)
		if !ok {
			return
		}
		row, err := e.load(c, d, access, claims)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// PUT /api/<plural>/:id
func UpdateOneHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	e.document(d, e.BasePath(d)+"/:id", http.MethodPut, &docs.Operation{
		Summary:     "Update a " + d.Singular + " record",
		OperationID: "update" + schemaName(d),
		Parameters:  []docs.Parameter{docs.PathParam("id", "integer")},
		RequestBody: docs.JSONBody(e.schemaRef(d)),
		Responses:   docs.Responses(e.schemaRef(d), 200, 304, 400, 401, 403, 404, 500),
	})
	const op = "updateOne"

	return func(c *gin.Context) {
		access, claims, ok := e.authorize(c, d, actionUpdate, op)
		if !ok {
			return
		}
		existing, err := e.load(c, d, access, claims)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		id := existing.ID()
		body, err := bindObject(c)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		ctx := c.Request.Context()
		row, err := e.prepare(ctx, d, body, mutation{id: &id, claims: claims})
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		out, err := e.Store.Update(ctx, d.Table, id, row)
		if errors.Is(err, store.ErrNotFound) {
			e.fail(c, d, op, &NotFoundError{Message: d.Singular + " not found after update attempt"})
			return
		}
		if err != nil {
			e.fail(c, d, op, fmt.Errorf("update %s: %w", d.Table, err))
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// DELETE /api/<plural>/:id marks the row inactive.
func SoftDeleteHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	e.document(d, e.BasePath(d)+"/:id", http.MethodDelete, &docs.Operation{
		Summary:     "Delete a " + d.Singular + " record",
		OperationID: "delete" + schemaName(d),
		Parameters:  []docs.Parameter{docs.PathParam("id", "integer")},
		Responses:   docs.Responses(nil, 204, 400, 401, 403, 404, 500),
	})
	const op = "softDelete"

	return func(c *gin.Context) {
		access, claims, ok := e.authorize(c, d, actionDelete, op)
		if !ok {
			return
		}
		row, err := e.load(c, d, access, claims)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		patch := store.Row{"active": false}
		if d.AuditFields {
			id := row.ID()
			if err := e.stamp(patch, mutation{id: &id, claims: claims}); err != nil {
				e.fail(c, d, op, err)
				return
			}
		}
		ctx := c.Request.Context()
		if d.PreDelete != nil {
			if err := d.PreDelete(ctx, row); err != nil {
				var rej *module.Rejection
				if errors.As(err, &rej) {
					c.AbortWithStatusJSON(http.StatusBadRequest, rej)
					return
				}
				e.fail(c, d, op, fmt.Errorf("pre-delete %s: %w", d.Table, err))
				return
			}
		}

		if _, err := e.Store.Update(ctx, d.Table, row.ID(), patch); err != nil {
			e.fail(c, d, op, fmt.Errorf("soft delete %s: %w", d.Table, err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// GET /api/<plural>/export?format=json|csv
func ExportHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	params := append([]docs.Parameter{docs.QueryParam("format", "json (default) or csv")}, listParams()...)
	e.document(d, e.BasePath(d)+"/export", http.MethodGet, &docs.Operation{
		Summary:     "Export " + d.Plural + " records",
		OperationID: "export" + schemaName(d),
		Parameters:  params,
		Responses:   docs.Responses(docs.ArrayOf(e.schemaRef(d)), 200, 204, 400, 403, 500),
	})
	const op = "exportModule"

	return func(c *gin.Context) {
		format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
		if format != "json" && format != "csv" {
			e.fail(c, d, op, &ValidationError{
				Message: fmt.Sprintf("Invalid format %q specified. Supported formats: 'json', 'csv'.", format),
				Fields:  []string{"format"},
			})
			return
		}
		access, claims, ok := e.authorize(c, d, actionExport, op)
		if !ok {
			return
		}

		q := url.Values{}
		for k, v := range c.Request.URL.Query() {
			if k != "format" {
				q[k] = v
			}
		}
		sel, err := e.listQuery(d, q, access, claims)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		rows, err := e.Store.Select(c.Request.Context(), sel)
		if err != nil {
			e.fail(c, d, op, fmt.Errorf("select %s: %w", d.Table, err))
			return
		}
		if len(rows) == 0 {
			c.Status(http.StatusNoContent)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_export.%s", strings.ToLower(d.Plural), format))
		if format == "json" {
			c.JSON(http.StatusOK, rows)
			return
		}
		data, err := encodeCSV(exportColumns(d), rows)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
	}
}

// POST /api/<plural>/:<dependent>... registers the files stored by
// UploadFiles as rows of d.
func RegisterFilesHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	mustHaveDependents(d)
	params := dependentParams(d)
	e.document(d, e.BasePath(d)+dependentDocPath(d), http.MethodPost, &docs.Operation{
		Summary:     "Register files for a " + d.Plural + " record",
		OperationID: "registerFiles" + schemaName(d),
		Parameters:  params,
		RequestBody: &docs.RequestBody{Required: true, Content: map[string]docs.MediaType{
			"multipart/form-data": {Schema: &docs.Schema{
				Type: "object",
				Properties: map[string]*docs.Schema{
					"files": docs.ArrayOf(&docs.Schema{Type: "string", Format: "binary"}),
				},
			}},
		}},
		Responses: docs.Responses(&docs.Schema{
			Type: "object",
			Properties: map[string]*docs.Schema{
				"message": {Type: "string"},
				"files":   docs.ArrayOf(&docs.Schema{Type: "string"}),
			},
		}, 200, 207, 400, 401, 403, 500),
	})
	const op = "registerFiles"

	return func(c *gin.Context) {
		files := UploadedFiles(c)
		_, claims, ok := e.authorize(c, d, actionCreate, op)
		if !ok {
			discard(e.Blob, files)
			return
		}

		values := dependentValues(c, d)
		rowID, err := strconv.ParseInt(values[0], 10, 64)
		missing := err != nil || rowID <= 0
		for _, v := range values[1:] {
			missing = missing || strings.TrimSpace(v) == ""
		}
		if missing {
			discard(e.Blob, files)
			e.fail(c, d, op, &ValidationError{Message: "Row ID and module name are required", Fields: d.DependentFields})
			return
		}
		if len(files) == 0 {
			e.fail(c, d, op, &ValidationError{Message: "No files uploaded", Fields: []string{"files"}})
			return
		}

		ctx := c.Request.Context()
		prefix := strings.TrimRight(e.UploadURLPath, "/")
		names := make([]string, 0, len(files))
		for i, f := range files {
			payload := map[string]any{
				d.DependentFields[0]: rowID,
				FilePathField:        prefix + "/" + f.Name,
			}
			for j, field := range d.DependentFields[1:] {
				payload[field] = values[j+1]
			}
			row, err := e.prepare(ctx, d, payload, mutation{claims: claims})
			if err == nil {
				_, err = e.Store.Insert(ctx, d.Table, row)
			}
			if err != nil {
				// rows already inserted keep their files
				discard(e.Blob, files[i:])
				if i == 0 {
					e.fail(c, d, op, err)
					return
				}
				_, body := e.classify(ctx, d, op, err)
				failed := make([]string, 0, len(files)-i)
				for _, rest := range files[i:] {
					failed = append(failed, rest.Original)
				}
				c.JSON(http.StatusMultiStatus, gin.H{
					"message": fmt.Sprintf("%d of %d file(s) registered.", i, len(files)),
					"files":   names,
					"failed":  failed,
					"error":   body["error"],
				})
				return
			}
			names = append(names, f.Name)
		}
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("%d file(s) registered successfully.", len(names)),
			"files":   names,
		})
	}
}

// GET /api/<plural>/:<dependent>... lists rows matching the dependent
// fields taken from the path.
func ListByDependentsHandler(e *Engine, d *module.Descriptor) gin.HandlerFunc {
	mustHaveDependents(d)
	e.document(d, e.BasePath(d)+dependentDocPath(d), http.MethodGet, &docs.Operation{
		Summary:     "Get " + d.Plural + " records of a parent row",
		OperationID: "listDependent" + schemaName(d),
		Parameters:  append(dependentParams(d), listParams()...),
		Responses:   docs.Responses(docs.ArrayOf(e.schemaRef(d)), 200, 400, 403, 500),
	})
	const op = "listByDependents"

	return func(c *gin.Context) {
		access, claims, ok := e.authorize(c, d, actionRead, op)
		if !ok {
			return
		}
		sel, err := e.listQuery(d, c.Request.URL.Query(), access, claims)
		if err != nil {
			e.fail(c, d, op, err)
			return
		}
		for i, v := range dependentValues(c, d) {
			sel.Equals = append(sel.Equals, query.Equality{Column: d.Table + "." + d.DependentFields[i], Values: []string{v}})
		}
		rows, err := e.Store.Select(c.Request.Context(), sel)
		if err != nil {
			e.fail(c, d, op, fmt.Errorf("select %s: %w", d.Table, err))
			return
		}
		if rows == nil {
			rows = []store.Row{}
		}
		c.JSON(http.StatusOK, rows)
	}
}

// authorize runs the permission check for action. On denial the 403 is
// already written.
func (e *Engine) authorize(c *gin.Context, d *module.Descriptor, action, op string) (auth.Access, *auth.Claims, bool) {
	claims, _ := auth.FromContext(c)
	access := auth.Check(d.UsePermission, d.Singular, action, claims)
	if access == auth.Denied {
		e.fail(c, d, op, &ForbiddenError{Message: "Forbidden"})
		return access, claims, false
	}
	return access, claims, true
}

// load fetches the row named by the :id path parameter. Rows the caller
// may only see as their own are hidden as not found.
func (e *Engine) load(c *gin.Context, d *module.Descriptor, access auth.Access, claims *auth.Claims) (store.Row, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, &ValidationError{Message: "Invalid id", Fields: []string{"id"}}
	}
	row, err := e.Store.Get(c.Request.Context(), d.Table, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Message: d.Singular + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", d.Table, err)
	}
	if !owns(d, access, claims, row) {
		return nil, &NotFoundError{Message: d.Singular + " not found"}
	}
	return row, nil
}

func owns(d *module.Descriptor, access auth.Access, claims *auth.Claims, row store.Row) bool {
	if access != auth.GrantedOwn || !d.AuditFields {
		return true
	}
	return fmt.Sprint(row["added_by"]) == strconv.FormatInt(claims.UserID, 10)
}

// listQuery parses q and applies the default order and the ownership
// filter.
func (e *Engine) listQuery(d *module.Descriptor, q url.Values, access auth.Access, claims *auth.Claims) (*query.Select, error) {
	sel, err := query.Parse(d.Table, q)
	if err != nil {
		return nil, err
	}
	if sel.Order == nil && d.OrderBy != nil {
		sel.Order = &query.Order{Column: d.OrderBy.Field, Desc: d.OrderBy.Desc}
	}
	if access == auth.GrantedOwn && d.AuditFields {
		sel.Equals = append(sel.Equals, query.Equality{
			Column: d.Table + ".added_by",
			Values: []string{strconv.FormatInt(claims.UserID, 10)},
		})
	}
	return sel, nil
}

func bindObject(c *gin.Context) (map[string]any, error) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &ValidationError{Message: "Invalid JSON body"}
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func mustHaveDependents(d *module.Descriptor) {
	if len(d.DependentFields) == 0 {
		panic("api: module " + d.Singular + " declares no dependent fields")
	}
}

// dependentValues reads the dependent fields from the path. The first one
// is routed as :id.
func dependentValues(c *gin.Context, d *module.Descriptor) []string {
	out := make([]string, len(d.DependentFields))
	for i, f := range d.DependentFields {
		if i == 0 {
			out[i] = c.Param("id")
			continue
		}
		out[i] = c.Param(f)
	}
	return out
}

func dependentRoute(d *module.Descriptor) string {
	var b strings.Builder
	for i, f := range d.DependentFields {
		if i == 0 {
			b.WriteString("/:id")
			continue
		}
		b.WriteString("/:" + f)
	}
	return b.String()
}

func dependentDocPath(d *module.Descriptor) string {
	var b strings.Builder
	for _, f := range d.DependentFields {
		b.WriteString("/:" + f)
	}
	return b.String()
}

func dependentParams(d *module.Descriptor) []docs.Parameter {
	out := make([]docs.Parameter, 0, len(d.DependentFields))
	for i, f := range d.DependentFields {
		typ := "string"
		if i == 0 {
			typ = "integer"
		}
		out = append(out, docs.PathParam(f, typ))
	}
	return out
}

func listParams() []docs.Parameter {
	return []docs.Parameter{
		docs.QueryParam(query.ParamSelectedFields, "JSON array of columns"),
		docs.QueryParam(query.ParamJoins, "JSON array of {type, fromTable, fromColumn, toTable, toColumn}"),
		docs.QueryParam(query.ParamConditions, "JSON array of conditions combined with AND"),
		docs.QueryParam(query.ParamOrConditions, "JSON array of conditions combined with OR"),
	}
}

func exportColumns(d *module.Descriptor) []string {
	cols := make([]string, 0, len(d.AllFields))
	for _, f := range d.AllFields {
		if f != "active" {
			cols = append(cols, f)
		}
	}
	return cols
}

func encodeCSV(cols []string, rows []store.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	rec := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			rec[i] = csvValue(row[col])
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func csvValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func schemaName(d *module.Descriptor) string {
	return strings.ReplaceAll(humanize(d.Singular), " ", "")
}

func (e *Engine) schemaRef(d *module.Descriptor) *docs.Schema {
	return docs.Ref(schemaName(d))
}

// document registers op and the row schema of d.
func (e *Engine) document(d *module.Descriptor, path, method string, op *docs.Operation) {
	if e.Docs == nil {
		return
	}
	op.Tags = []string{d.Plural}
	if d.UsePermission || d.AuditFields || method != http.MethodGet {
		op.Security = docs.Bearer()
	}
	e.Docs.AddSchema(schemaName(d), docs.ModuleSchema(d))
	e.Docs.AddPath(path, method, op)
}

func bulkSchema(item *docs.Schema) *docs.Schema {
	return &docs.Schema{
		Type: "object",
		Properties: map[string]*docs.Schema{
			"message":        {Type: "string"},
			"inserted_count": {Type: "integer"},
			"failed_count":   {Type: "integer"},
			"inserted_data":  docs.ArrayOf(item),
			"errors": docs.ArrayOf(&docs.Schema{
				Type: "object",
				Properties: map[string]*docs.Schema{
					"index":  {Type: "integer"},
					"error":  {Type: "string"},
					"fields": docs.ArrayOf(&docs.Schema{Type: "string"}),
				},
			}),
		},
	}
}
