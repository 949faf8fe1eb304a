// Package message holds the backend-agnostic message model used by every
// depot sink: the typed field schema of a message, the raw message envelope,
// and the contract of the decoding layer that turns one into the other.
package message

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Well-known type names that map to dedicated column types.
const (
	TypeNameTimestamp = ".google.protobuf.Timestamp"
	TypeNameDuration  = ".google.protobuf.Duration"
	TypeNameStruct    = ".google.protobuf.Struct"
)

// Cardinality describes how many values a field holds.
type Cardinality int

const (
	CardinalityOptional Cardinality = iota
	CardinalityRequired
	CardinalityRepeated
)

func (c Cardinality) String() string {
	switch c {
	case CardinalityOptional:
		return "optional"
	case CardinalityRequired:
		return "required"
	case CardinalityRepeated:
		return "repeated"
	default:
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
}

// ParseCardinality parses the lower case cardinality name.
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optional":
		return CardinalityOptional, nil
	case "required":
		return CardinalityRequired, nil
	case "repeated":
		return CardinalityRepeated, nil
	default:
		return 0, fmt.Errorf("unknown cardinality %q", s)
	}
}

// Kind is the scalar or composite kind of a field.
type Kind int

const (
	KindUnknown Kind = iota
	KindDouble
	KindFloat
	KindInt64
	KindUint64
	KindInt32
	KindFixed64
	KindFixed32
	KindBool
	KindString
	KindGroup
	KindMessage
	KindBytes
	KindUint32
	KindEnum
	KindSfixed32
	KindSfixed64
	KindSint32
	KindSint64
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindDouble:   "double",
	KindFloat:    "float",
	KindInt64:    "int64",
	KindUint64:   "uint64",
	KindInt32:    "int32",
	KindFixed64:  "fixed64",
	KindFixed32:  "fixed32",
	KindBool:     "bool",
	KindString:   "string",
	KindGroup:    "group",
	KindMessage:  "message",
	KindBytes:    "bytes",
	KindUint32:   "uint32",
	KindEnum:     "enum",
	KindSfixed32: "sfixed32",
	KindSfixed64: "sfixed64",
	KindSint32:   "sint32",
	KindSint64:   "sint64",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsComposite reports whether the kind carries nested fields.
func (k Kind) IsComposite() bool {
	return k == KindMessage || k == KindGroup
}

// ParseKind parses a kind name such as "int64" or "message".
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown field kind %q", s)
}

// FieldSchema describes one field of a message. Fields is only populated for
// composite kinds.
type FieldSchema struct {
	Name        string
	Cardinality Cardinality
	Kind        Kind
	TypeName    string
	Fields      []*FieldSchema
}

// Field returns the direct child with the given name, or nil.
func (f *FieldSchema) Field(name string) *FieldSchema {
	return findField(f.Fields, name)
}

// Schema is the root field list of a message type.
type Schema struct {
	Name   string
	Fields []*FieldSchema
}

// Field resolves a possibly dotted field path such as "order.details.id".
func (s *Schema) Field(path string) *FieldSchema {
	if s == nil {
		return nil
	}
	parts := strings.Split(path, ".")
	field := findField(s.Fields, parts[0])
	for _, p := range parts[1:] {
		if field == nil {
			return nil
		}
		field = field.Field(p)
	}
	return field
}

// Fingerprint is a stable digest of the schema shape. Two schemas with the
// same fingerprint map to the same columns.
func (s *Schema) Fingerprint() string {
	var b strings.Builder
	b.WriteString(s.Name)
	writeFields(&b, s.Fields)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeFields(b *strings.Builder, fields []*FieldSchema) {
	b.WriteByte('{')
	for _, f := range fields {
		fmt.Fprintf(b, "%s:%s:%s:%s", f.Name, f.Cardinality, f.Kind, f.TypeName)
		if len(f.Fields) > 0 {
			writeFields(b, f.Fields)
		}
		b.WriteByte(';')
	}
	b.WriteByte('}')
}

func findField(fields []*FieldSchema, name string) *FieldSchema {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}
