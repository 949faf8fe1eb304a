package bigquery

import (
	"cloud.google.com/go/bigquery"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// TypeMappings resolves field schemas to column types. Declared type names
// are looked up before kinds.
type TypeMappings struct {
	byTypeName map[string]bigquery.FieldType
	byKind     map[message.Kind]bigquery.FieldType
}

// NewTypeMappings copies the given tables into a TypeMappings.
func NewTypeMappings(byTypeName map[string]bigquery.FieldType, byKind map[message.Kind]bigquery.FieldType) TypeMappings {
	m := TypeMappings{
		byTypeName: make(map[string]bigquery.FieldType, len(byTypeName)),
		byKind:     make(map[message.Kind]bigquery.FieldType, len(byKind)),
	}
	for k, v := range byTypeName {
		m.byTypeName[k] = v
	}
	for k, v := range byKind {
		m.byKind[k] = v
	}
	return m
}

// DefaultTypeMappings returns the standard mapping tables.
func DefaultTypeMappings() TypeMappings {
	return NewTypeMappings(
		map[string]bigquery.FieldType{
			message.TypeNameTimestamp: bigquery.TimestampFieldType,
			message.TypeNameDuration:  bigquery.RecordFieldType,
			message.TypeNameStruct:    bigquery.StringFieldType,
		},
		map[message.Kind]bigquery.FieldType{
			message.KindBytes:    bigquery.BytesFieldType,
			message.KindString:   bigquery.StringFieldType,
			message.KindEnum:     bigquery.StringFieldType,
			message.KindBool:     bigquery.BooleanFieldType,
			message.KindDouble:   bigquery.FloatFieldType,
			message.KindFloat:    bigquery.FloatFieldType,
			message.KindInt32:    bigquery.IntegerFieldType,
			message.KindInt64:    bigquery.IntegerFieldType,
			message.KindUint32:   bigquery.IntegerFieldType,
			message.KindUint64:   bigquery.IntegerFieldType,
			message.KindFixed32:  bigquery.IntegerFieldType,
			message.KindFixed64:  bigquery.IntegerFieldType,
			message.KindSfixed32: bigquery.IntegerFieldType,
			message.KindSfixed64: bigquery.IntegerFieldType,
			message.KindSint32:   bigquery.IntegerFieldType,
			message.KindSint64:   bigquery.IntegerFieldType,
			message.KindMessage:  bigquery.RecordFieldType,
			message.KindGroup:    bigquery.RecordFieldType,
		},
	)
}

func (m TypeMappings) lookup(f *message.FieldSchema) (bigquery.FieldType, bool) {
	if f.TypeName != "" {
		if t, ok := m.byTypeName[f.TypeName]; ok {
			return t, true
		}
	}
	t, ok := m.byKind[f.Kind]
	return t, ok
}

// ColumnMapper converts message field schemas into columns.
type ColumnMapper struct {
	mappings TypeMappings
}

// NewColumnMapper creates a mapper over the given tables.
func NewColumnMapper(mappings TypeMappings) *ColumnMapper {
	return &ColumnMapper{mappings: mappings}
}

// Map converts one field. RECORD fields are converted recursively.
func (m *ColumnMapper) Map(f *message.FieldSchema) (Column, error) {
	typ, ok := m.mappings.lookup(f)
	if !ok {
		return Column{}, sinkerrors.Newf(sinkerrors.ErrorTypeSchemaMapping,
			"No type mapping found for field: %s, fieldType: %s, typeName: %s", f.Name, f.Kind, f.TypeName).
			WithDetail("field", f.Name)
	}

	col := Column{
		Name: f.Name,
		Mode: modeOf(f.Cardinality),
		Type: typ,
	}
	if typ == bigquery.RecordFieldType {
		sub, err := m.mapFields(f.Fields)
		if err != nil {
			return Column{}, err
		}
		col.SubColumns = sub
	}
	return col, nil
}

// MapSchema converts every top-level field of s.
func (m *ColumnMapper) MapSchema(s *message.Schema) ([]Column, error) {
	return m.mapFields(s.Fields)
}

func (m *ColumnMapper) mapFields(fields []*message.FieldSchema) ([]Column, error) {
	columns := make([]Column, 0, len(fields))
	for _, f := range fields {
		col, err := m.Map(f)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func modeOf(c message.Cardinality) Mode {
	switch c {
	case message.CardinalityRepeated:
		return ModeRepeated
	case message.CardinalityRequired:
		return ModeRequired
	default:
		return ModeNullable
	}
}
