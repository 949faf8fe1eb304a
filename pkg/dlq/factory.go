package dlq

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
)

// New builds the dead letter writer selected by cfg.Type. It returns nil
// for "none", in which case failed messages are only reported in the
// response.
func New(ctx context.Context, cfg config.DLQConfig, logger *zap.Logger) (Writer, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "kafka":
		return NewKafkaWriter(cfg.Kafka, logger)
	case "gcs":
		return NewGCSWriter(ctx, cfg.GCS, logger)
	default:
		return NewLogWriter(logger), nil
	}
}
