package bigquery

import (
	"cloud.google.com/go/bigquery"
)

// Mode is the BigQuery column mode.
type Mode string

const (
	ModeNullable Mode = "NULLABLE"
	ModeRequired Mode = "REQUIRED"
	ModeRepeated Mode = "REPEATED"
)

// Column describes one table column. SubColumns is set for RECORD columns
// only. Columns are values and are not modified after construction.
type Column struct {
	Name       string
	Mode       Mode
	Type       bigquery.FieldType
	SubColumns []Column
}

// Equal reports whether c and o describe the same column, including every
// nested column.
func (c Column) Equal(o Column) bool {
	if c.Name != o.Name || c.Mode != o.Mode || c.Type != o.Type {
		return false
	}
	return ColumnsEqual(c.SubColumns, o.SubColumns)
}

// ColumnsEqual compares two column lists by name, ignoring their order.
func ColumnsEqual(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	byName := make(map[string]Column, len(a))
	for _, c := range a {
		byName[c.Name] = c
	}
	for _, c := range b {
		existing, ok := byName[c.Name]
		if !ok || !existing.Equal(c) {
			return false
		}
	}
	return true
}

// FindColumn returns the top-level column called name.
func FindColumn(columns []Column, name string) (Column, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ToFieldSchema converts c to the client library representation.
func (c Column) ToFieldSchema() *bigquery.FieldSchema {
	fs := &bigquery.FieldSchema{
		Name:     c.Name,
		Type:     c.Type,
		Required: c.Mode == ModeRequired,
		Repeated: c.Mode == ModeRepeated,
	}
	if len(c.SubColumns) > 0 {
		fs.Schema = ToSchema(c.SubColumns)
	}
	return fs
}

// ToSchema converts columns to a table schema.
func ToSchema(columns []Column) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(columns))
	for _, c := range columns {
		schema = append(schema, c.ToFieldSchema())
	}
	return schema
}

// ColumnsFromSchema converts a table schema read from BigQuery.
func ColumnsFromSchema(schema bigquery.Schema) []Column {
	columns := make([]Column, 0, len(schema))
	for _, fs := range schema {
		mode := ModeNullable
		switch {
		case fs.Repeated:
			mode = ModeRepeated
		case fs.Required:
			mode = ModeRequired
		}
		var sub []Column
		if len(fs.Schema) > 0 {
			sub = ColumnsFromSchema(fs.Schema)
		}
		columns = append(columns, Column{
			Name:       fs.Name,
			Mode:       mode,
			Type:       fs.Type,
			SubColumns: sub,
		})
	}
	return columns
}

// EmptyRecords returns the dotted paths of RECORD columns without
// sub-columns. BigQuery rejects such columns when the table is created.
func EmptyRecords(columns []Column) []string {
	var paths []string
	for _, c := range columns {
		if c.Type != bigquery.RecordFieldType {
			continue
		}
		if len(c.SubColumns) == 0 {
			paths = append(paths, c.Name)
			continue
		}
		for _, p := range EmptyRecords(c.SubColumns) {
			paths = append(paths, c.Name+"."+p)
		}
	}
	return paths
}
