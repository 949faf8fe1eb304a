package dlq

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/depot/pkg/compression"
	"github.com/ajitpratap0/depot/pkg/config"
	jsonpool "github.com/ajitpratap0/depot/pkg/json"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// ObjectStore creates objects. Closing the returned writer commits the
// object.
type ObjectStore interface {
	NewWriter(ctx context.Context, name string, attrs ObjectAttrs) io.WriteCloser
	Close() error
}

// ObjectAttrs are set on every uploaded object.
type ObjectAttrs struct {
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// BucketStore is an ObjectStore backed by a GCS bucket.
type BucketStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewBucketStore opens bucket with the optional service account key at
// credentialPath.
func NewBucketStore(ctx context.Context, credentialPath, bucket string) (*BucketStore, error) {
	var opts []option.ClientOption
	if credentialPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to create storage client").
			WithDetail("bucket", bucket)
	}
	return &BucketStore{client: client, bucket: client.Bucket(bucket)}, nil
}

// NewWriter implements ObjectStore.
func (s *BucketStore) NewWriter(ctx context.Context, name string, attrs ObjectAttrs) io.WriteCloser {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.ContentEncoding = attrs.ContentEncoding
	w.Metadata = attrs.Metadata
	return w
}

// Close implements ObjectStore.
func (s *BucketStore) Close() error {
	return s.client.Close()
}

// GCSWriter uploads every batch of failed messages as one newline delimited
// JSON object, compressed with the configured algorithm. Objects are laid
// out as <prefix>/dt=YYYY-MM-DD/hour=HH/<uuid>.jsonl[.ext].
type GCSWriter struct {
	store      ObjectStore
	compressor compression.Compressor
	prefix     string
	now        func() time.Time
	logger     *zap.Logger
}

// NewGCSWriter opens the configured bucket.
func NewGCSWriter(ctx context.Context, cfg config.GCSDLQConfig, logger *zap.Logger) (*GCSWriter, error) {
	store, err := NewBucketStore(ctx, cfg.CredentialPath, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	w, err := NewGCSWriterWithStore(store, cfg.Prefix, compression.Algorithm(cfg.Compression), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return w, nil
}

// NewGCSWriterWithStore creates a GCSWriter on an existing store.
func NewGCSWriterWithStore(store ObjectStore, prefix string, algorithm compression.Algorithm, logger *zap.Logger) (*GCSWriter, error) {
	comp, err := compression.NewCompressor(algorithm)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSWriter{
		store:      store,
		compressor: comp,
		prefix:     prefix,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "dlq")),
	}, nil
}

// Write implements Writer.
func (w *GCSWriter) Write(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	buf := jsonpool.GetBuffer()
	defer jsonpool.PutBuffer(buf)

	zw, err := w.compressor.NewWriter(buf)
	if err != nil {
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeInternal, "failed to create compressor")
	}
	enc := jsonpool.NewLineEncoder(zw)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return sinkerrors.Wrap(err, sinkerrors.ErrorTypeInternal, "failed to encode dead letter").
				WithDetail("index", r.Index)
		}
	}
	if err := zw.Close(); err != nil {
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeInternal, "failed to compress dead letters")
	}

	name := w.objectName()
	start := time.Now()
	obj := w.store.NewWriter(ctx, name, ObjectAttrs{
		ContentType: "application/x-ndjson",
		Metadata: map[string]string{
			"records":     strconv.Itoa(enc.Lines()),
			"compression": string(w.compressor.Algorithm()),
		},
	})
	if _, err := io.Copy(obj, buf); err != nil {
		_ = obj.Close()
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to upload dead letters").
			WithDetail("object", name)
	}
	if err := obj.Close(); err != nil {
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to upload dead letters").
			WithDetail("object", name)
	}

	w.logger.Info("dead letters uploaded",
		zap.String("object", name),
		zap.Int("records", len(records)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (w *GCSWriter) objectName() string {
	now := w.now().UTC()
	file := uuid.NewString() + ".jsonl" + w.compressor.Extension()
	return path.Join(w.prefix,
		fmt.Sprintf("dt=%s", now.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", now.Hour()),
		file)
}

// Close implements Writer.
func (w *GCSWriter) Close() error {
	return w.store.Close()
}
