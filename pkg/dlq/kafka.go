package dlq

import (
	"context"
	"errors"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Header keys set on every dead letter produced to Kafka.
const (
	HeaderErrorKind   = "depot-error-kind"
	HeaderError       = "depot-error"
	HeaderIndex       = "depot-batch-index"
	HeaderMetadata    = "depot-metadata"
	HeaderContentType = "content-type"
)

// KafkaWriter produces failed messages to a topic, keeping the original key
// and value bytes and describing the failure in headers.
type KafkaWriter struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaWriter connects a synchronous producer to cfg.Brokers.
func NewKafkaWriter(cfg config.KafkaDLQConfig, logger *zap.Logger) (*KafkaWriter, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to create kafka producer").
			WithDetail("topic", cfg.Topic)
	}
	return NewKafkaWriterWithProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaWriterWithProducer creates a KafkaWriter on an existing producer.
func NewKafkaWriterWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaWriter{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "dlq"), zap.String("topic", topic)),
	}
}

func saramaConfig(cfg config.KafkaDLQConfig) *sarama.Config {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 5
	return sc
}

// Write implements Writer. The batch is sent in one SendMessages call.
func (w *KafkaWriter) Write(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := make([]*sarama.ProducerMessage, 0, len(records))
	for _, r := range records {
		msg, err := w.buildProducerMessage(r)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	if err := w.producer.SendMessages(messages); err != nil {
		var failed int
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			failed = len(perrs)
		}
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to produce dead letters").
			WithDetail("topic", w.topic).
			WithDetail("failed", failed)
	}

	w.logger.Debug("dead letters produced", zap.Int("records", len(records)))
	return nil
}

func (w *KafkaWriter) buildProducerMessage(r Record) (*sarama.ProducerMessage, error) {
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderErrorKind), Value: []byte(r.ErrorKind)},
		{Key: []byte(HeaderError), Value: []byte(r.Error)},
		{Key: []byte(HeaderIndex), Value: []byte(strconv.Itoa(r.Index))},
	}
	if len(r.Metadata) > 0 {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeInternal, "failed to encode dead letter metadata").
				WithDetail("index", r.Index)
		}
		headers = append(headers,
			sarama.RecordHeader{Key: []byte(HeaderMetadata), Value: meta},
			sarama.RecordHeader{Key: []byte(HeaderContentType), Value: []byte("application/json")})
	}

	msg := &sarama.ProducerMessage{
		Topic:   w.topic,
		Headers: headers,
	}
	if r.Key != nil {
		msg.Key = sarama.ByteEncoder(r.Key)
	}
	if r.Value != nil {
		msg.Value = sarama.ByteEncoder(r.Value)
	}
	return msg, nil
}

// Close implements Writer.
func (w *KafkaWriter) Close() error {
	return w.producer.Close()
}
