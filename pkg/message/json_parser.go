package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// JSONParser decodes JSON objects and coerces their values to the kinds
// declared by a registered schema.
type JSONParser struct {
	registry *Registry
}

// NewJSONParser creates a parser resolving schema classes through registry.
func NewJSONParser(registry *Registry) *JSONParser {
	return &JSONParser{registry: registry}
}

// Schema implements Parser.
func (p *JSONParser) Schema(schemaClass string) (*Schema, error) {
	return p.registry.Get(schemaClass)
}

// Parse implements Parser.
func (p *JSONParser) Parse(msg Message, mode SchemaMessageMode, schemaClass string) (ParsedMessage, error) {
	schema, err := p.registry.Get(schemaClass)
	if err != nil {
		return nil, err
	}
	payload := msg.Payload(mode)
	if len(payload) == 0 {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeDeserialization, "empty payload").
			WithDetail("mode", string(mode))
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeDeserialization, "failed to decode JSON payload").
			WithDetail("schema_class", schemaClass)
	}

	record, err := coerceObject(raw, schema.Fields)
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeDeserialization, "payload does not match schema").
			WithDetail("schema_class", schemaClass)
	}
	return record, nil
}

func coerceObject(raw map[string]interface{}, fields []*FieldSchema) (Record, error) {
	out := make(Record, len(raw))
	for _, f := range fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			if f.Cardinality == CardinalityRequired {
				return nil, fmt.Errorf("required field %s is missing", f.Name)
			}
			continue
		}
		coerced, err := coerceField(v, f)
		if err != nil {
			return nil, err
		}
		out[f.Name] = coerced
	}
	return out, nil
}

func coerceField(v interface{}, f *FieldSchema) (interface{}, error) {
	if f.Cardinality != CardinalityRepeated {
		return coerceValue(v, f)
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %s: expected array, got %T", f.Name, v)
	}
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		c, err := coerceValue(item, f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func coerceValue(v interface{}, f *FieldSchema) (interface{}, error) {
	switch f.TypeName {
	case TypeNameTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected RFC3339 timestamp string, got %T", f.Name, v)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return t, nil
	case TypeNameStruct:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return string(encoded), nil
	}

	switch f.Kind {
	case KindInt64, KindInt32, KindSint32, KindSint64, KindSfixed32, KindSfixed64,
		KindUint32, KindUint64, KindFixed32, KindFixed64:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("field %s: expected integer, got %T", f.Name, v)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return i, nil
	case KindDouble, KindFloat:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("field %s: expected number, got %T", f.Name, v)
		}
		fl, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return fl, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("field %s: expected bool, got %T", f.Name, v)
		}
		return b, nil
	case KindString, KindEnum:
		switch s := v.(type) {
		case string:
			return s, nil
		case json.Number:
			return s.String(), nil
		}
		return nil, fmt.Errorf("field %s: expected string, got %T", f.Name, v)
	case KindBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected base64 string, got %T", f.Name, v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return b, nil
	case KindMessage, KindGroup:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %s: expected object, got %T", f.Name, v)
		}
		nested, err := coerceObject(obj, f.Fields)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}(nested), nil
	default:
		return nil, fmt.Errorf("field %s: unsupported kind %s", f.Name, f.Kind)
	}
}
