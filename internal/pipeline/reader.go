package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"io"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// maxLineSize bounds a single input line.
const maxLineSize = 16 << 20

// inputLine is one newline delimited input message. Key and value hold any
// JSON value: a JSON string is taken as its text, anything else as its raw
// JSON encoding. Binary payloads such as Avro use the base64 fields.
type inputLine struct {
	Key         json.RawMessage        `json:"key"`
	Value       json.RawMessage        `json:"value"`
	KeyBase64   string                 `json:"key_base64"`
	ValueBase64 string                 `json:"value_base64"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// MessageReader decodes newline delimited messages.
type MessageReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewMessageReader reads messages from r.
func NewMessageReader(r io.Reader) *MessageReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &MessageReader{scanner: scanner}
}

// Next returns the next message, or io.EOF after the last one. Blank lines
// are skipped.
func (r *MessageReader) Next() (message.Message, error) {
	for r.scanner.Scan() {
		r.line++
		data := bytes.TrimSpace(r.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		msg, err := decodeLine(data)
		if err != nil {
			return message.Message{}, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "invalid input line").
				WithDetail("line", r.line)
		}
		return msg, nil
	}
	if err := r.scanner.Err(); err != nil {
		return message.Message{}, err
	}
	return message.Message{}, io.EOF
}

// Stream sends every message to out until the input ends or ctx is done.
// It does not close out.
func (r *MessageReader) Stream(ctx context.Context, out chan<- message.Message) error {
	for {
		msg, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeLine(data []byte) (message.Message, error) {
	var in inputLine
	if err := json.Unmarshal(data, &in); err != nil {
		return message.Message{}, err
	}
	key, err := payload(in.Key, in.KeyBase64)
	if err != nil {
		return message.Message{}, err
	}
	value, err := payload(in.Value, in.ValueBase64)
	if err != nil {
		return message.Message{}, err
	}
	return message.Message{Key: key, Value: value, Metadata: in.Metadata}, nil
}

func payload(raw json.RawMessage, b64 string) ([]byte, error) {
	if b64 != "" {
		return base64.StdEncoding.DecodeString(b64)
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return []byte(raw), nil
}
