package api

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"metarest/internal/auth"
	"metarest/internal/module"
	"metarest/internal/store"
)

// mutation describes one pass of the write pipeline.
type mutation struct {
	id     *int64 // nil on create
	claims *auth.Claims
	bulk   bool // conflict messages quote the offending value
}

// prepare coerces, validates, computes and projects one payload into the
// row to persist. Every failure returns immediately.
func (e *Engine) prepare(ctx context.Context, d *module.Descriptor, payload map[string]any, m mutation) (store.Row, error) {
	values := module.Coerce(module.Values(payload), d.Fields)

	if missing := missingFields(d, values, m.id != nil); len(missing) > 0 {
		return nil, &ValidationError{
			Message: "Missing required fields: " + strings.Join(missing, ", "),
			Fields:  missing,
		}
	}

	for _, f := range d.Fields {
		if v, ok := values[f.Name]; ok && module.IsInvalidNumber(v) {
			return nil, &ValidationError{Message: fmt.Sprintf("Invalid number for %s", f.Name), Fields: []string{f.Name}}
		}
	}

	for _, r := range d.RegexFields {
		v, ok := values[r.Field]
		if !ok || v == nil {
			continue
		}
		if !r.Pattern.MatchString(fmt.Sprint(v)) {
			return nil, &ValidationError{Message: r.Message, Fields: []string{r.Field}}
		}
	}

	if err := e.checkUnique(ctx, d, values, m, d.UniqueFields); err != nil {
		return nil, err
	}

	var recheck []string
	for _, g := range d.GeneratedFields {
		v, err := g.Compute(ctx, values, m.id)
		if err != nil {
			return nil, &ValidationError{Message: err.Error(), Fields: []string{g.Field}}
		}
		if v == nil {
			continue
		}
		if slices.Contains(d.UniqueFields, g.Field) {
			recheck = append(recheck, g.Field)
		}
		values[g.Field] = v
	}
	// computed unique values are checked again before they are stored
	if err := e.checkUnique(ctx, d, values, m, recheck); err != nil {
		return nil, err
	}

	row := store.Row{}
	for _, f := range d.DatabaseFields {
		v, ok := values[f]
		if !ok || (m.id == nil && v == nil) {
			continue
		}
		row[f] = v
	}
	if m.id != nil && len(row) == 0 {
		return nil, ErrNoOp
	}

	if d.AuditFields {
		if err := e.stamp(row, m); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// missingFields lists required fields that are absent or null. On update
// only keys present in the payload are checked.
func missingFields(d *module.Descriptor, values module.Values, update bool) []string {
	var missing []string
	for _, f := range d.RequiredFields {
		v, ok := values[f]
		if update && !ok {
			continue
		}
		if !ok || v == nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// checkUnique counts rows already holding the value of each field, ignoring
// the row being updated. nil and "" are never compared.
func (e *Engine) checkUnique(ctx context.Context, d *module.Descriptor, values module.Values, m mutation, fields []string) error {
	for _, f := range fields {
		v, ok := values[f]
		if !ok || v == nil || v == "" {
			continue
		}
		filters := []store.Filter{store.Eq(f, v)}
		if m.id != nil {
			filters = append(filters, store.NotEq("id", *m.id))
		}
		n, err := e.Store.Count(ctx, d.Table, filters...)
		if err != nil {
			return fmt.Errorf("unique check %s.%s: %w", d.Table, f, err)
		}
		if n > 0 {
			return conflict(f, v, m.bulk)
		}
	}
	return nil
}

// stamp writes the audit columns. Without an authenticated user it refuses
// the write.
func (e *Engine) stamp(row store.Row, m mutation) error {
	if m.claims == nil || m.claims.UserID <= 0 {
		return &UnauthorizedError{Message: "Unauthorized"}
	}
	now := e.now()
	if m.id == nil {
		row["added_by"] = m.claims.UserID
		row["added_date"] = now
	}
	row["updated_by"] = m.claims.UserID
	row["updated_date"] = now
	return nil
}
