package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ajitpratap0/depot/pkg/dlq"
	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

var testSchema = &message.Schema{
	Name: "com.example.Order",
	Fields: []*message.FieldSchema{
		{Name: "order_number", Kind: message.KindString},
	},
}

// stubParser treats the message value as the order number. Values starting
// with "bad" fail to decode.
type stubParser struct {
	schemaErr error
}

func (p *stubParser) Schema(string) (*message.Schema, error) {
	if p.schemaErr != nil {
		return nil, p.schemaErr
	}
	return testSchema, nil
}

func (p *stubParser) Parse(msg message.Message, _ message.SchemaMessageMode, _ string) (message.ParsedMessage, error) {
	v := string(msg.Value)
	if strings.HasPrefix(v, "bad") {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeDeserialization, "cannot decode "+v)
	}
	return message.Record{"order_number": v}, nil
}

// stubBuilder emits `fanout` entries per message.
type stubBuilder struct {
	fanout int
	err    func(v string) error
}

func (b *stubBuilder) Build(index int, parsed message.ParsedMessage, schema *message.Schema) ([]Entry, error) {
	v, err := parsed.FieldByName("order_number", schema)
	if err != nil {
		return nil, err
	}
	if b.err != nil {
		if err := b.err(v.(string)); err != nil {
			return nil, err
		}
	}
	n := b.fanout
	if n == 0 {
		n = 1
	}
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{Kind: HashFieldSet, Key: "order", Field: fmt.Sprintf("f%d", i), Value: v.(string), Index: index})
	}
	return entries, nil
}

// stubWriter fails every entry whose value is in fail.
type stubWriter struct {
	mu      sync.Mutex
	fail    map[string]bool
	written []Entry
}

func (w *stubWriter) Write(_ context.Context, entries []Entry) []WriteResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	results := make([]WriteResult, 0, len(entries))
	for _, e := range entries {
		if w.fail[e.Value] {
			results = append(results, WriteResult{Index: e.Index, Err: sinkerrors.New(sinkerrors.ErrorTypeWrite, "write refused")})
			continue
		}
		w.written = append(w.written, e)
		results = append(results, WriteResult{Index: e.Index, Success: true})
	}
	return results
}

type stubObserver struct {
	calls int
	err   error
}

func (o *stubObserver) ObserveSchema(context.Context, *message.Schema) error {
	o.calls++
	return o.err
}

type stubDLQ struct {
	records []dlq.Record
	err     error
	closed  bool
}

func (d *stubDLQ) Write(_ context.Context, records []dlq.Record) error {
	if d.err != nil {
		return d.err
	}
	d.records = append(d.records, records...)
	return nil
}

func (d *stubDLQ) Close() error {
	d.closed = true
	return nil
}

func messages(values ...string) []message.Message {
	msgs := make([]message.Message, 0, len(values))
	for i, v := range values {
		msgs = append(msgs, message.Message{
			Value:    []byte(v),
			Metadata: map[string]interface{}{"offset": i},
		})
	}
	return msgs
}
