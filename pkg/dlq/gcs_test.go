package dlq

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/depot/pkg/compression"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

type memObject struct {
	store *memStore
	name  string
	attrs ObjectAttrs
	buf   bytes.Buffer
}

func (o *memObject) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *memObject) Close() error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	if o.store.closeErr != nil {
		return o.store.closeErr
	}
	o.store.objects[o.name] = o
	return nil
}

type memStore struct {
	mu       sync.Mutex
	objects  map[string]*memObject
	closeErr error
	closed   bool
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]*memObject)}
}

func (s *memStore) NewWriter(_ context.Context, name string, attrs ObjectAttrs) io.WriteCloser {
	return &memObject{store: s, name: name, attrs: attrs}
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func (s *memStore) only(t *testing.T) *memObject {
	t.Helper()
	require.Len(t, s.objects, 1)
	for _, o := range s.objects {
		return o
	}
	return nil
}

func TestGCSWriterUploadsCompressedBatch(t *testing.T) {
	store := newMemStore()
	w, err := NewGCSWriterWithStore(store, "dlq/orders", compression.Gzip, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2024, 3, 9, 7, 30, 0, 0, time.UTC) }

	records := []Record{
		{Index: 0, Value: []byte("bad"), ErrorKind: "DESERIALIZATION_ERROR", Error: "deserialization: bad"},
		{Index: 2, Key: []byte("k"), ErrorKind: "SINK_UNKNOWN_ERROR", Error: "write: OOM"},
	}
	require.NoError(t, w.Write(context.Background(), records))

	obj := store.only(t)
	assert.True(t, strings.HasPrefix(obj.name, "dlq/orders/dt=2024-03-09/hour=07/"))
	assert.True(t, strings.HasSuffix(obj.name, ".jsonl.gz"))
	assert.Equal(t, "2", obj.attrs.Metadata["records"])
	assert.Equal(t, "gzip", obj.attrs.Metadata["compression"])

	comp, err := compression.NewCompressor(compression.Gzip)
	require.NoError(t, err)
	raw, err := comp.Decompress(obj.buf.Bytes())
	require.NoError(t, err)

	var decoded []Record
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		decoded = append(decoded, r)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, records, decoded)

	require.NoError(t, w.Close())
	assert.True(t, store.closed)
}

func TestGCSWriterUncompressed(t *testing.T) {
	store := newMemStore()
	w, err := NewGCSWriterWithStore(store, "", compression.None, nil)
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), []Record{{Index: 1, ErrorKind: "DESERIALIZATION_ERROR"}}))
	obj := store.only(t)
	assert.True(t, strings.HasSuffix(obj.name, ".jsonl"))
	assert.True(t, strings.HasPrefix(obj.name, "dt="))
	assert.Contains(t, obj.buf.String(), `"error_kind":"DESERIALIZATION_ERROR"`)
}

func TestGCSWriterUploadFailure(t *testing.T) {
	store := newMemStore()
	store.closeErr = errors.New("403 forbidden")
	w, err := NewGCSWriterWithStore(store, "dlq", compression.Zstd, nil)
	require.NoError(t, err)

	err = w.Write(context.Background(), []Record{{Index: 0}})
	require.Error(t, err)
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeBackend))
	assert.Empty(t, store.objects)
}

func TestGCSWriterSkipsEmptyBatch(t *testing.T) {
	store := newMemStore()
	w, err := NewGCSWriterWithStore(store, "dlq", compression.Gzip, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), nil))
	assert.Empty(t, store.objects)
}

func TestGCSWriterRejectsUnknownCompression(t *testing.T) {
	_, err := NewGCSWriterWithStore(newMemStore(), "dlq", "brotli", nil)
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}
