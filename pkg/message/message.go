package message

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// SchemaMessageMode selects which payload of a message is decoded.
type SchemaMessageMode string

const (
	// ModeLogMessage decodes the message value.
	ModeLogMessage SchemaMessageMode = "LOG_MESSAGE"
	// ModeLogKey decodes the message key.
	ModeLogKey SchemaMessageMode = "LOG_KEY"
)

// Message is one raw message of a batch.
type Message struct {
	Key      []byte                 `json:"key,omitempty"`
	Value    []byte                 `json:"value,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Payload returns the bytes selected by mode.
func (m Message) Payload(mode SchemaMessageMode) []byte {
	if mode == ModeLogKey {
		return m.Key
	}
	return m.Value
}

// MetadataString renders the metadata as "{k1=v1, k2=v2}" with sorted keys.
func (m Message) MetadataString() string {
	keys := make([]string, 0, len(m.Metadata))
	for k := range m.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, m.Metadata[k])
	}
	b.WriteByte('}')
	return b.String()
}

// ParsedMessage is a decoded message.
type ParsedMessage interface {
	// FieldByName returns the value at a possibly dotted field path. It
	// returns nil without error when the field is declared in schema but has
	// no value, and a configuration error when schema does not declare it.
	FieldByName(name string, schema *Schema) (interface{}, error)
}

// Parser is the decoding layer in front of the sinks.
type Parser interface {
	// Schema resolves a configured schema class. Failures are configuration
	// errors.
	Schema(schemaClass string) (*Schema, error)
	// Parse decodes the payload selected by mode. Failures are
	// deserialization errors.
	Parse(msg Message, mode SchemaMessageMode, schemaClass string) (ParsedMessage, error)
}

// Record is a ParsedMessage backed by a generic map. Nested messages are
// nested maps and repeated fields are slices.
type Record map[string]interface{}

// FieldByName implements ParsedMessage.
func (r Record) FieldByName(name string, schema *Schema) (interface{}, error) {
	if schema.Field(name) == nil {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "Invalid field config : %s", name).
			WithDetail("field", name).
			WithDetail("schema", schema.Name)
	}

	var current interface{} = map[string]interface{}(r)
	for _, part := range strings.Split(name, ".") {
		var m map[string]interface{}
		switch v := current.(type) {
		case map[string]interface{}:
			m = v
		case Record:
			m = v
		default:
			return nil, nil
		}
		var ok bool
		current, ok = m[part]
		if !ok {
			return nil, nil
		}
	}
	return current, nil
}
