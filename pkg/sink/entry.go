// Package sink turns batches of raw messages into backend entries and writes
// them, isolating failures per message.
//
// A Push runs in three steps. The BatchConverter decodes every message and
// asks an EntryBuilder for its entries, producing one Outcome per entry or per
// failed message. A Writer persists the entries of successful outcomes and
// reports a WriteResult for each. The results are merged into a Response
// keyed by the original batch index, so callers can commit up to the lowest
// failed index.
package sink

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/depot/pkg/message"
)

// EntryKind tags the shape of an Entry.
type EntryKind int

const (
	// ValueSet sets Key to Value.
	ValueSet EntryKind = iota
	// ListPush pushes Value onto the list at Key.
	ListPush
	// HashFieldSet sets Field of the hash at Key to Value.
	HashFieldSet
	// TableRow inserts Row into a warehouse table.
	TableRow
)

func (k EntryKind) String() string {
	switch k {
	case ValueSet:
		return "value_set"
	case ListPush:
		return "list_push"
	case HashFieldSet:
		return "hash_field_set"
	case TableRow:
		return "table_row"
	default:
		return fmt.Sprintf("entry_kind(%d)", int(k))
	}
}

// Entry is one backend write derived from a single message. Only the fields
// relevant to Kind are set.
type Entry struct {
	Kind     EntryKind
	Key      string
	Field    string
	Value    string
	Row      map[string]interface{}
	InsertID string
	// Index is the position of the originating message in its batch.
	Index int
}

func (e Entry) String() string {
	switch e.Kind {
	case ValueSet:
		return fmt.Sprintf("ValueSet: Key %s, Value %s", e.Key, e.Value)
	case ListPush:
		return fmt.Sprintf("ListPush: Key %s, Value %s", e.Key, e.Value)
	case HashFieldSet:
		return fmt.Sprintf("HashFieldSet: Key %s, Field %s, Value %s", e.Key, e.Field, e.Value)
	case TableRow:
		return fmt.Sprintf("TableRow: InsertID %s, Columns %d", e.InsertID, len(e.Row))
	default:
		return e.Kind.String()
	}
}

// EntryBuilder derives the entries of one parsed message. A configuration
// error aborts the batch. Any other error fails only this message.
type EntryBuilder interface {
	Build(index int, parsed message.ParsedMessage, schema *message.Schema) ([]Entry, error)
}

// MetadataEntryBuilder is an EntryBuilder that also reads the metadata of
// the raw message. The converter prefers it over Build when implemented.
type MetadataEntryBuilder interface {
	EntryBuilder
	BuildWithMetadata(index int, parsed message.ParsedMessage, schema *message.Schema, metadata map[string]interface{}) ([]Entry, error)
}

// Writer persists entries. It returns exactly one WriteResult per entry, in
// the same order, and never fails as a whole.
type Writer interface {
	Write(ctx context.Context, entries []Entry) []WriteResult
}

// WriteResult is the result of writing one entry.
type WriteResult struct {
	Index   int
	Success bool
	Err     error
}

// SchemaObserver is told about the schema of every batch before its entries
// are written. Returning an error aborts the batch.
type SchemaObserver interface {
	ObserveSchema(ctx context.Context, schema *message.Schema) error
}
