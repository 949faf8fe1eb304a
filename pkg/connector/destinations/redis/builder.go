package redis

import (
	"sort"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Data types selecting the entry builder.
const (
	DataTypeKeyValue = "keyvalue"
	DataTypeList     = "list"
	DataTypeHashSet  = "hashset"
)

// BuilderConfig configures the entry builders.
type BuilderConfig struct {
	DataType              string
	KeyTemplate           string
	KeyValueDataFieldName string
	ListDataFieldName     string
	// HashSetMapping maps message field names to hash field templates.
	HashSetMapping map[string]string
}

// NewEntryBuilder returns the builder for cfg.DataType.
func NewEntryBuilder(cfg BuilderConfig) (sink.EntryBuilder, error) {
	switch cfg.DataType {
	case DataTypeKeyValue:
		return &KeyValueBuilder{cfg: cfg}, nil
	case DataTypeList:
		return &ListBuilder{cfg: cfg}, nil
	case DataTypeHashSet:
		return &HashSetBuilder{cfg: cfg}, nil
	default:
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "unknown redis data type %q", cfg.DataType)
	}
}

// KeyValueBuilder sets the templated key to one message field.
type KeyValueBuilder struct {
	cfg BuilderConfig
}

// Build implements sink.EntryBuilder.
func (b *KeyValueBuilder) Build(index int, parsed message.ParsedMessage, schema *message.Schema) ([]sink.Entry, error) {
	if b.cfg.KeyValueDataFieldName == "" {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "Empty config SINK_REDIS_KEY_VALUE_DATA_FIELD_NAME found")
	}
	key, err := ParseTemplate(b.cfg.KeyTemplate, parsed, schema)
	if err != nil {
		return nil, err
	}
	value, err := fieldValue(parsed, schema, b.cfg.KeyValueDataFieldName)
	if err != nil {
		return nil, err
	}
	return []sink.Entry{{Kind: sink.ValueSet, Key: key, Value: value, Index: index}}, nil
}

// ListBuilder pushes one message field onto the templated list.
type ListBuilder struct {
	cfg BuilderConfig
}

// Build implements sink.EntryBuilder.
func (b *ListBuilder) Build(index int, parsed message.ParsedMessage, schema *message.Schema) ([]sink.Entry, error) {
	if b.cfg.ListDataFieldName == "" {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "Empty config SINK_REDIS_LIST_DATA_FIELD_NAME found")
	}
	key, err := ParseTemplate(b.cfg.KeyTemplate, parsed, schema)
	if err != nil {
		return nil, err
	}
	value, err := fieldValue(parsed, schema, b.cfg.ListDataFieldName)
	if err != nil {
		return nil, err
	}
	return []sink.Entry{{Kind: sink.ListPush, Key: key, Value: value, Index: index}}, nil
}

// HashSetBuilder sets one hash field per configured mapping.
type HashSetBuilder struct {
	cfg BuilderConfig
}

// Build implements sink.EntryBuilder. Entries are ordered by message field
// name.
func (b *HashSetBuilder) Build(index int, parsed message.ParsedMessage, schema *message.Schema) ([]sink.Entry, error) {
	if len(b.cfg.HashSetMapping) == 0 {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "Empty config SINK_REDIS_HASHSET_FIELD_TO_COLUMN_MAPPING found")
	}
	key, err := ParseTemplate(b.cfg.KeyTemplate, parsed, schema)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(b.cfg.HashSetMapping))
	for name := range b.cfg.HashSetMapping {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]sink.Entry, 0, len(names))
	for _, name := range names {
		field, err := ParseTemplate(b.cfg.HashSetMapping[name], parsed, schema)
		if err != nil {
			return nil, err
		}
		value, err := fieldValue(parsed, schema, name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sink.Entry{Kind: sink.HashFieldSet, Key: key, Field: field, Value: value, Index: index})
	}
	return entries, nil
}

func fieldValue(parsed message.ParsedMessage, schema *message.Schema, name string) (string, error) {
	v, err := parsed.FieldByName(name, schema)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", sinkerrors.Newf(sinkerrors.ErrorTypeDeserialization, "field %s has no value", name).
			WithDetail("field", name)
	}
	return valueString(v)
}
