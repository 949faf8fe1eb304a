package message

import (
	"testing"
	"time"

	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

const registryYAML = `
schemas:
  - name: com.example.Order
    fields:
      - name: order_number
        kind: string
        cardinality: required
      - name: amount_paid_by_cash
        kind: double
      - name: quantity
        kind: int64
      - name: tags
        kind: string
        cardinality: repeated
      - name: created_at
        kind: message
        type_name: .google.protobuf.Timestamp
      - name: attributes
        kind: message
        type_name: .google.protobuf.Struct
      - name: details
        kind: message
        fields:
          - name: id
            kind: string
`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)

	schema, err := reg.Get("com.example.Order")
	require.NoError(t, err)
	require.Len(t, schema.Fields, 7)
	assert.Equal(t, CardinalityRequired, schema.Field("order_number").Cardinality)
	assert.Equal(t, CardinalityRepeated, schema.Field("tags").Cardinality)
	assert.Equal(t, TypeNameTimestamp, schema.Field("created_at").TypeName)
	assert.Equal(t, KindString, schema.Field("details.id").Kind)

	_, err = reg.Get("com.example.Missing")
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}

func TestParseRegistryRejectsUnknownKind(t *testing.T) {
	_, err := ParseRegistry([]byte("schemas:\n  - name: x\n    fields:\n      - name: a\n        kind: decimal\n"))
	require.Error(t, err)
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}

func TestJSONParser(t *testing.T) {
	reg, err := ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)
	p := NewJSONParser(reg)

	msg := Message{Value: []byte(`{
		"order_number": "test-order",
		"amount_paid_by_cash": 12.3,
		"quantity": 2000,
		"tags": ["a", "b"],
		"created_at": "2022-10-01T10:00:00Z",
		"attributes": {"channel": "web"},
		"details": {"id": "ORDER-DETAILS"}
	}`)}

	parsed, err := p.Parse(msg, ModeLogMessage, "com.example.Order")
	require.NoError(t, err)
	schema, err := p.Schema("com.example.Order")
	require.NoError(t, err)

	v, err := parsed.FieldByName("quantity", schema)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), v)

	v, err = parsed.FieldByName("amount_paid_by_cash", schema)
	require.NoError(t, err)
	assert.Equal(t, 12.3, v)

	v, err = parsed.FieldByName("created_at", schema)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 10, 1, 10, 0, 0, 0, time.UTC), v)

	v, err = parsed.FieldByName("attributes", schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"web"}`, v.(string))

	v, err = parsed.FieldByName("details.id", schema)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-DETAILS", v)

	v, err = parsed.FieldByName("tags", schema)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, v)
}

func TestJSONParserErrors(t *testing.T) {
	reg, err := ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)
	p := NewJSONParser(reg)

	tests := []struct {
		name  string
		value string
	}{
		{"malformed", `{"order_number": `},
		{"missing required", `{"quantity": 1}`},
		{"wrong type", `{"order_number": "x", "quantity": "many"}`},
		{"fractional integer", `{"order_number": "x", "quantity": 1.5}`},
		{"bad timestamp", `{"order_number": "x", "created_at": "yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(Message{Value: []byte(tt.value)}, ModeLogMessage, "com.example.Order")
			require.Error(t, err)
			assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeDeserialization))
		})
	}

	_, err = p.Parse(Message{}, ModeLogKey, "com.example.Order")
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeDeserialization))

	_, err = p.Parse(Message{Value: []byte(`{}`)}, ModeLogMessage, "com.example.Unknown")
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}

const orderAvroSchema = `{
	"type": "record",
	"name": "Order",
	"fields": [
		{"name": "order_number", "type": "string"},
		{"name": "quantity", "type": "int"},
		{"name": "note", "type": ["null", "string"], "default": null},
		{"name": "tags", "type": {"type": "array", "items": "string"}},
		{"name": "created_at", "type": {"type": "long", "logicalType": "timestamp-millis"}},
		{"name": "details", "type": {"type": "record", "name": "Details", "fields": [
			{"name": "id", "type": "string"}
		]}}
	]
}`

func TestAvroParser(t *testing.T) {
	p, err := NewAvroParser(map[string]string{"com.example.Order": orderAvroSchema})
	require.NoError(t, err)

	schema, err := p.Schema("com.example.Order")
	require.NoError(t, err)
	assert.Equal(t, KindInt32, schema.Field("quantity").Kind)
	assert.Equal(t, CardinalityOptional, schema.Field("note").Cardinality)
	assert.Equal(t, CardinalityRepeated, schema.Field("tags").Cardinality)
	assert.Equal(t, TypeNameTimestamp, schema.Field("created_at").TypeName)
	assert.Equal(t, KindMessage, schema.Field("details").Kind)

	codec, err := goavro.NewCodec(orderAvroSchema)
	require.NoError(t, err)
	created := time.Date(2022, 10, 1, 10, 0, 0, 0, time.UTC)
	payload, err := codec.BinaryFromNative(nil, map[string]interface{}{
		"order_number": "test-order",
		"quantity":     int32(3),
		"note":         goavro.Union("string", "fragile"),
		"tags":         []interface{}{"a"},
		"created_at":   created,
		"details":      map[string]interface{}{"id": "D-1"},
	})
	require.NoError(t, err)

	parsed, err := p.Parse(Message{Value: payload}, ModeLogMessage, "com.example.Order")
	require.NoError(t, err)

	v, err := parsed.FieldByName("quantity", schema)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = parsed.FieldByName("note", schema)
	require.NoError(t, err)
	assert.Equal(t, "fragile", v)

	v, err = parsed.FieldByName("details.id", schema)
	require.NoError(t, err)
	assert.Equal(t, "D-1", v)

	v, err = parsed.FieldByName("created_at", schema)
	require.NoError(t, err)
	assert.True(t, created.Equal(v.(time.Time)))

	_, err = p.Parse(Message{Value: []byte{0xff}}, ModeLogMessage, "com.example.Order")
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeDeserialization))
}

func TestAvroParserConfluentHeader(t *testing.T) {
	p, err := NewAvroParser(map[string]string{"o": orderAvroSchema}, WithConfluentHeader())
	require.NoError(t, err)

	_, err = p.Parse(Message{Value: []byte{1, 2}}, ModeLogMessage, "o")
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeDeserialization))
}

func TestAvroParserRejectsNonRecord(t *testing.T) {
	_, err := NewAvroParser(map[string]string{"s": `"string"`})
	require.Error(t, err)
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}
