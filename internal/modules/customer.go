package modules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"metarest/internal/module"
	"metarest/internal/store"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Customer is the customer master. Deleting a customer is refused while it
// still has active attachments in st.
func Customer(st store.Store) *module.Descriptor {
	d := &module.Descriptor{
		Table:    "customers",
		Singular: "customer",
		Plural:   "customers",
		Fields: []module.Field{
			{Name: "name", Type: module.String, SQLType: "varchar(255)"},
			{Name: "address", Type: module.String, SQLType: "varchar(500)"},
			{Name: "email_id", Type: module.String, SQLType: "varchar(255)"},
			{Name: "contact_details", Type: module.String, SQLType: "varchar(255)"},
			{Name: "active", Type: module.Boolean},
		},
		AllFields:      []string{"name", "address", "email_id", "contact_details", "active"},
		RequiredFields: []string{"name", "address", "email_id", "contact_details"},
		UniqueFields:   []string{"name", "email_id"},
		DatabaseFields: []string{"name", "address", "email_id", "contact_details", "active"},
		RegexFields: []module.RegexRule{
			{Field: "email_id", Pattern: emailPattern, Message: "Invalid email address"},
		},
		GeneratedFields: []module.GeneratedField{
			{Field: "email_id", Compute: normalizeEmail},
		},
		OrderBy:     &module.Order{Field: "id", Desc: true},
		AuditFields: true,
	}
	d.PreDelete = func(ctx context.Context, row map[string]any) error {
		n, err := st.Count(ctx, AttachmentTable,
			store.Eq("row_id", row["id"]),
			store.Eq("module_name", d.Singular),
			store.Eq("active", true),
		)
		if err != nil {
			return fmt.Errorf("count attachments: %w", err)
		}
		if n > 0 {
			return &module.Rejection{
				Message: fmt.Sprintf("Cannot delete %s with %d active attachment(s)", d.Singular, n),
				Fields:  []string{"id"},
			}
		}
		return nil
	}
	return d
}

func normalizeEmail(_ context.Context, values module.Values, _ *int64) (any, error) {
	s, ok := values["email_id"].(string)
	if !ok {
		return nil, nil
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

// All returns every descriptor served by the application.
func All(st store.Store) []*module.Descriptor {
	return []*module.Descriptor{Customer(st), Attachment()}
}

// Register adds All to reg.
func Register(reg *module.Registry, st store.Store) error {
	for _, d := range All(st) {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}
