package modules

import "metarest/internal/module"

const AttachmentTable = "attachments"

// Attachment holds files registered against a row of another module. Rows
// are addressed by the (row_id, module_name) pair.
func Attachment() *module.Descriptor {
	return &module.Descriptor{
		Table:    AttachmentTable,
		Singular: "attachment",
		Plural:   "attachments",
		Fields: []module.Field{
			{Name: "row_id", Type: module.Number, SQLType: "bigint"},
			{Name: "module_name", Type: module.String},
			{Name: "file_path", Type: module.String, SQLType: "varchar(255)"},
			{Name: "active", Type: module.Boolean},
		},
		AllFields:       []string{"row_id", "module_name", "file_path", "active"},
		RequiredFields:  []string{"row_id", "module_name"},
		DatabaseFields:  []string{"row_id", "module_name", "file_path", "active"},
		DependentFields: []string{"row_id", "module_name"},
		OrderBy:         &module.Order{Field: "id", Desc: true},
	}
}
