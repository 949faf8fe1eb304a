// Package compression compresses dead letter objects before they are
// uploaded. Each algorithm is exposed both as a streaming writer and as
// in-memory Compress/Decompress helpers.
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(compression.Zstd)
//	w, err := comp.NewWriter(objectWriter)
//	_, err = w.Write(payload)
//	err = w.Close()
package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

// Compressor compresses with one algorithm. Implementations are safe for
// concurrent use.
type Compressor interface {
	// NewWriter returns a writer compressing into dst. Close flushes the
	// compressed stream but does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// Compress compresses data and returns the compressed bytes.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Extension is the file name suffix for compressed objects, including
	// the dot, or "" for None.
	Extension() string
}

// NewCompressor creates a compressor for algorithm. An empty algorithm
// means None.
func NewCompressor(algorithm Algorithm) (Compressor, error) {
	switch algorithm {
	case None, "":
		return noneCompressor{}, nil
	case Gzip:
		return streamCompressor{
			algorithm: Gzip,
			ext:       ".gz",
			writer: func(w io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriter(w), nil
			},
			reader: func(r io.Reader) (io.Reader, error) {
				return gzip.NewReader(r)
			},
		}, nil
	case Snappy:
		return streamCompressor{
			algorithm: Snappy,
			ext:       ".sz",
			writer: func(w io.Writer) (io.WriteCloser, error) {
				return snappy.NewBufferedWriter(w), nil
			},
			reader: func(r io.Reader) (io.Reader, error) {
				return snappy.NewReader(r), nil
			},
		}, nil
	case LZ4:
		return streamCompressor{
			algorithm: LZ4,
			ext:       ".lz4",
			writer: func(w io.Writer) (io.WriteCloser, error) {
				return lz4.NewWriter(w), nil
			},
			reader: func(r io.Reader) (io.Reader, error) {
				return lz4.NewReader(r), nil
			},
		}, nil
	case Zstd:
		return streamCompressor{
			algorithm: Zstd,
			ext:       ".zst",
			writer: func(w io.Writer) (io.WriteCloser, error) {
				return zstd.NewWriter(w)
			},
			reader: func(r io.Reader) (io.Reader, error) {
				d, err := zstd.NewReader(r)
				if err != nil {
					return nil, err
				}
				return d.IOReadCloser(), nil
			},
		}, nil
	default:
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "unsupported compression algorithm: %s", algorithm)
	}
}

// None compressor (no compression)
type noneCompressor struct{}

func (noneCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopCloser{dst}, nil
}

func (noneCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

func (noneCompressor) Algorithm() Algorithm { return None }

func (noneCompressor) Extension() string { return "" }

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// streamCompressor builds every operation on a writer and reader factory.
type streamCompressor struct {
	algorithm Algorithm
	ext       string
	writer    func(io.Writer) (io.WriteCloser, error)
	reader    func(io.Reader) (io.Reader, error)
}

func (c streamCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return c.writer(dst)
}

func (c streamCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.writer(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c streamCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := c.reader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if rc, ok := r.(io.Closer); ok {
		defer rc.Close()
	}
	return io.ReadAll(r)
}

func (c streamCompressor) Algorithm() Algorithm { return c.algorithm }

func (c streamCompressor) Extension() string { return c.ext }
