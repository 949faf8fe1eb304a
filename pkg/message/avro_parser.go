package message

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// confluentHeaderSize is the magic byte plus the 4 byte schema id that
// prefixes payloads produced by schema-registry aware serializers.
const confluentHeaderSize = 5

// AvroParser decodes Avro binary datums. Every schema class is backed by an
// Avro record schema from which the field schema is derived.
type AvroParser struct {
	codecs      map[string]*goavro.Codec
	schemas     map[string]*Schema
	trees       map[string][]*avroNode
	stripHeader bool
}

type avroNode struct {
	field     *FieldSchema
	union     bool
	itemUnion bool
	children  []*avroNode
}

// AvroOption configures an AvroParser.
type AvroOption func(*AvroParser)

// WithConfluentHeader makes the parser drop the 5 byte schema-registry
// header in front of every payload.
func WithConfluentHeader() AvroOption {
	return func(p *AvroParser) {
		p.stripHeader = true
	}
}

// NewAvroParser compiles the Avro record schemas keyed by schema class.
func NewAvroParser(schemas map[string]string, opts ...AvroOption) (*AvroParser, error) {
	p := &AvroParser{
		codecs:  make(map[string]*goavro.Codec, len(schemas)),
		schemas: make(map[string]*Schema, len(schemas)),
		trees:   make(map[string][]*avroNode, len(schemas)),
	}
	for _, opt := range opts {
		opt(p)
	}

	for class, text := range schemas {
		codec, err := goavro.NewCodec(text)
		if err != nil {
			return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "invalid avro schema").
				WithDetail("schema_class", class)
		}

		var raw interface{}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "invalid avro schema").
				WithDetail("schema_class", class)
		}
		record, ok := raw.(map[string]interface{})
		if !ok || record["type"] != "record" {
			return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "avro schema must be a record").
				WithDetail("schema_class", class)
		}
		nodes, err := avroRecordFields(record)
		if err != nil {
			return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "unsupported avro schema").
				WithDetail("schema_class", class)
		}

		fields := make([]*FieldSchema, 0, len(nodes))
		for _, n := range nodes {
			fields = append(fields, n.field)
		}
		p.codecs[class] = codec
		p.schemas[class] = &Schema{Name: class, Fields: fields}
		p.trees[class] = nodes
	}
	return p, nil
}

// Schema implements Parser.
func (p *AvroParser) Schema(schemaClass string) (*Schema, error) {
	s, ok := p.schemas[schemaClass]
	if !ok {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "schema class %q is not registered", schemaClass).
			WithDetail("schema_class", schemaClass)
	}
	return s, nil
}

// Parse implements Parser.
func (p *AvroParser) Parse(msg Message, mode SchemaMessageMode, schemaClass string) (ParsedMessage, error) {
	codec, ok := p.codecs[schemaClass]
	if !ok {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "schema class %q is not registered", schemaClass).
			WithDetail("schema_class", schemaClass)
	}

	payload := msg.Payload(mode)
	if p.stripHeader {
		if len(payload) < confluentHeaderSize || payload[0] != 0 {
			return nil, sinkerrors.New(sinkerrors.ErrorTypeDeserialization, "missing schema registry header").
				WithDetail("schema_class", schemaClass)
		}
		payload = payload[confluentHeaderSize:]
	}

	native, _, err := codec.NativeFromBinary(payload)
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeDeserialization, "failed to decode avro payload").
			WithDetail("schema_class", schemaClass)
	}
	obj, ok := native.(map[string]interface{})
	if !ok {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeDeserialization, "unexpected avro datum %T", native)
	}

	record, err := normalizeAvro(obj, p.trees[schemaClass])
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeDeserialization, "avro payload does not match schema").
			WithDetail("schema_class", schemaClass)
	}
	return record, nil
}

func avroRecordFields(record map[string]interface{}) ([]*avroNode, error) {
	rawFields, _ := record["fields"].([]interface{})
	nodes := make([]*avroNode, 0, len(rawFields))
	for _, rf := range rawFields {
		f, ok := rf.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("malformed field %v", rf)
		}
		name, _ := f["name"].(string)
		node, err := avroTypeNode(name, f["type"])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func avroTypeNode(name string, t interface{}) (*avroNode, error) {
	node := &avroNode{field: &FieldSchema{Name: name, Cardinality: CardinalityRequired}}

	if branches, ok := t.([]interface{}); ok {
		var inner interface{}
		for _, b := range branches {
			if b == "null" {
				node.field.Cardinality = CardinalityOptional
				continue
			}
			if inner != nil {
				return nil, fmt.Errorf("field %s: unions with more than one non-null branch are not supported", name)
			}
			inner = b
		}
		if inner == nil {
			return nil, fmt.Errorf("field %s: union has no value branch", name)
		}
		node.union = true
		t = inner
	}

	switch v := t.(type) {
	case string:
		return node, setPrimitive(node.field, v, "")
	case map[string]interface{}:
		typ, _ := v["type"].(string)
		switch typ {
		case "record":
			children, err := avroRecordFields(v)
			if err != nil {
				return nil, err
			}
			node.field.Kind = KindMessage
			node.children = children
			for _, c := range children {
				node.field.Fields = append(node.field.Fields, c.field)
			}
			return node, nil
		case "enum":
			node.field.Kind = KindEnum
			return node, nil
		case "fixed":
			node.field.Kind = KindBytes
			return node, nil
		case "map":
			node.field.Kind = KindMessage
			node.field.TypeName = TypeNameStruct
			return node, nil
		case "array":
			item, err := avroTypeNode(name, v["items"])
			if err != nil {
				return nil, err
			}
			item.field.Cardinality = CardinalityRepeated
			item.itemUnion = item.union
			item.union = node.union
			return item, nil
		default:
			logical, _ := v["logicalType"].(string)
			return node, setPrimitive(node.field, typ, logical)
		}
	default:
		return nil, fmt.Errorf("field %s: unsupported avro type %v", name, t)
	}
}

func setPrimitive(f *FieldSchema, typ, logical string) error {
	switch logical {
	case "timestamp-millis", "timestamp-micros", "date":
		f.Kind = KindMessage
		f.TypeName = TypeNameTimestamp
		return nil
	}
	switch typ {
	case "boolean":
		f.Kind = KindBool
	case "int":
		f.Kind = KindInt32
	case "long":
		f.Kind = KindInt64
	case "float":
		f.Kind = KindFloat
	case "double":
		f.Kind = KindDouble
	case "bytes":
		f.Kind = KindBytes
	case "string":
		f.Kind = KindString
	default:
		return fmt.Errorf("field %s: unsupported avro type %q", f.Name, typ)
	}
	return nil
}

func normalizeAvro(obj map[string]interface{}, nodes []*avroNode) (Record, error) {
	out := make(Record, len(obj))
	for _, n := range nodes {
		v, ok := obj[n.field.Name]
		if !ok || v == nil {
			continue
		}
		nv, err := normalizeAvroValue(v, n)
		if err != nil {
			return nil, err
		}
		if nv != nil {
			out[n.field.Name] = nv
		}
	}
	return out, nil
}

func normalizeAvroValue(v interface{}, n *avroNode) (interface{}, error) {
	if n.field.Cardinality == CardinalityRepeated {
		if n.union {
			v = unwrapUnion(v)
		}
		items, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("field %s: expected array, got %T", n.field.Name, v)
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if n.itemUnion {
				item = unwrapUnion(item)
			}
			nv, err := normalizeAvroScalar(item, n)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	}
	if n.union {
		v = unwrapUnion(v)
		if v == nil {
			return nil, nil
		}
	}
	return normalizeAvroScalar(v, n)
}

func normalizeAvroScalar(v interface{}, n *avroNode) (interface{}, error) {
	switch {
	case n.field.TypeName == TypeNameStruct:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", n.field.Name, err)
		}
		return string(encoded), nil
	case n.field.Kind == KindMessage && n.field.TypeName == "":
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %s: expected record, got %T", n.field.Name, v)
		}
		nested, err := normalizeAvro(obj, n.children)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}(nested), nil
	case n.field.Kind == KindInt32:
		if i, ok := v.(int32); ok {
			return int64(i), nil
		}
	case n.field.Kind == KindFloat:
		if f, ok := v.(float32); ok {
			return float64(f), nil
		}
	}
	return v, nil
}

// unwrapUnion removes the {"branch": value} wrapper goavro puts around
// non-null union values.
func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}
