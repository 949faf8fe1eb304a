// Package dlq forwards messages that a sink could not write to a dead letter
// destination: a Kafka topic, a GCS bucket, or the log.
package dlq

import (
	"context"

	"go.uber.org/zap"
)

// Record is a failed message together with the reason it failed.
type Record struct {
	Index     int                    `json:"index"`
	Key       []byte                 `json:"key,omitempty"`
	Value     []byte                 `json:"value,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ErrorKind string                 `json:"error_kind"`
	Error     string                 `json:"error"`
}

// Writer persists failed messages. Write either stores every record or
// returns an error.
type Writer interface {
	Write(ctx context.Context, records []Record) error
	Close() error
}

// LogWriter logs failed messages and drops them.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogWriter{logger: logger.With(zap.String("component", "dlq"))}
}

// Write implements Writer.
func (w *LogWriter) Write(_ context.Context, records []Record) error {
	for _, r := range records {
		w.logger.Warn("dropping failed message",
			zap.Int("index", r.Index),
			zap.String("error_kind", r.ErrorKind),
			zap.String("error", r.Error),
			zap.Any("metadata", r.Metadata))
	}
	return nil
}

// Close implements Writer.
func (w *LogWriter) Close() error {
	return nil
}
