package bigquery

import (
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// MetadataColumn copies one message metadata key into the row.
type MetadataColumn struct {
	Name string
	Type bigquery.FieldType
}

// MetadataLayout places metadata columns either at the top level or nested
// under a Namespace RECORD column.
type MetadataLayout struct {
	Namespace string
	Fields    []MetadataColumn
}

var metadataTypes = map[string]bigquery.FieldType{
	"STRING":    bigquery.StringFieldType,
	"INTEGER":   bigquery.IntegerFieldType,
	"INT64":     bigquery.IntegerFieldType,
	"FLOAT":     bigquery.FloatFieldType,
	"BOOLEAN":   bigquery.BooleanFieldType,
	"TIMESTAMP": bigquery.TimestampFieldType,
}

// ParseMetadataColumns parses "name=type" pairs separated by commas, e.g.
// "message_offset=integer,load_time=timestamp".
func ParseMetadataColumns(spec string) ([]MetadataColumn, error) {
	var out []MetadataColumn
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, typ, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "invalid metadata column %q", pair)
		}
		ft, ok := metadataTypes[strings.ToUpper(strings.TrimSpace(typ))]
		if !ok {
			return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "unsupported metadata column type %q", typ).
				WithDetail("column", name)
		}
		out = append(out, MetadataColumn{Name: name, Type: ft})
	}
	return out, nil
}

// Columns returns the table columns of the layout.
func (l MetadataLayout) Columns() []Column {
	if len(l.Fields) == 0 {
		return nil
	}
	columns := make([]Column, 0, len(l.Fields))
	for _, f := range l.Fields {
		columns = append(columns, Column{Name: f.Name, Mode: ModeNullable, Type: f.Type})
	}
	if l.Namespace == "" {
		return columns
	}
	return []Column{{Name: l.Namespace, Mode: ModeNullable, Type: bigquery.RecordFieldType, SubColumns: columns}}
}

// Values extracts the row values of the layout from message metadata.
// Integer TIMESTAMP values are read as unix milliseconds.
func (l MetadataLayout) Values(metadata map[string]interface{}) map[string]interface{} {
	if len(l.Fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(l.Fields))
	for _, f := range l.Fields {
		v, ok := metadata[f.Name]
		if !ok || v == nil {
			continue
		}
		if f.Type == bigquery.TimestampFieldType {
			v = toTimestamp(v)
		}
		values[f.Name] = v
	}
	if l.Namespace == "" {
		return values
	}
	return map[string]interface{}{l.Namespace: values}
}

func toTimestamp(v interface{}) interface{} {
	switch t := v.(type) {
	case int64:
		return time.UnixMilli(t).UTC()
	case int:
		return time.UnixMilli(int64(t)).UTC()
	case int32:
		return time.UnixMilli(int64(t)).UTC()
	default:
		return v
	}
}
