package bigquery

import (
	"github.com/google/uuid"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sink"
)

// RowBuilder turns a parsed message into a TableRow entry holding every
// top-level field with a value, plus the configured metadata columns.
type RowBuilder struct {
	metadata  MetadataLayout
	insertIDs bool
}

var _ sink.MetadataEntryBuilder = (*RowBuilder)(nil)

// NewRowBuilder creates a RowBuilder. With insertID set every row gets a
// random insert id for best-effort deduplication.
func NewRowBuilder(metadata MetadataLayout, insertID bool) *RowBuilder {
	return &RowBuilder{metadata: metadata, insertIDs: insertID}
}

// Build implements sink.EntryBuilder.
func (b *RowBuilder) Build(index int, parsed message.ParsedMessage, schema *message.Schema) ([]sink.Entry, error) {
	return b.BuildWithMetadata(index, parsed, schema, nil)
}

// BuildWithMetadata implements sink.MetadataEntryBuilder.
func (b *RowBuilder) BuildWithMetadata(index int, parsed message.ParsedMessage, schema *message.Schema, metadata map[string]interface{}) ([]sink.Entry, error) {
	row := make(map[string]interface{}, len(schema.Fields)+len(b.metadata.Fields))
	for _, f := range schema.Fields {
		v, err := parsed.FieldByName(f.Name, schema)
		if err != nil {
			return nil, err
		}
		if v != nil {
			row[f.Name] = v
		}
	}
	for k, v := range b.metadata.Values(metadata) {
		row[k] = v
	}

	entry := sink.Entry{Kind: sink.TableRow, Row: row, Index: index}
	if b.insertIDs {
		entry.InsertID = uuid.NewString()
	}
	return []sink.Entry{entry}, nil
}
