package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/dlq"
	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/observability"
)

// Sink pushes batches of messages through a BatchConverter and a Writer.
type Sink struct {
	name      string
	converter *BatchConverter
	writer    Writer
	observer  SchemaObserver
	dlq       dlq.Writer
	inst      metrics.Instrumentation
	logger    *zap.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithSchemaObserver registers an observer called before every write.
func WithSchemaObserver(o SchemaObserver) Option {
	return func(s *Sink) {
		s.observer = o
	}
}

// WithDeadLetterWriter forwards failed messages to w.
func WithDeadLetterWriter(w dlq.Writer) Option {
	return func(s *Sink) {
		s.dlq = w
	}
}

// WithInstrumentation sets the metric sink.
func WithInstrumentation(inst metrics.Instrumentation) Option {
	return func(s *Sink) {
		s.inst = inst
	}
}

// New creates a Sink.
func New(name string, converter *BatchConverter, writer Writer, logger *zap.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		name:      name,
		converter: converter,
		writer:    writer,
		inst:      metrics.NoopInstrumentation{},
		logger:    logger.With(zap.String("sink", name)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push converts and writes a batch. Per-message failures are reported in the
// Response. An error means the batch was not written and the sink is not
// usable with its current configuration.
func (s *Sink) Push(ctx context.Context, messages []message.Message) (*Response, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "sink.push",
		observability.Attr("sink.name", s.name),
		observability.Attr("batch.size", len(messages)))
	defer span.End()

	outcomes, err := s.converter.Convert(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	response := newResponse()
	entries := make([]Entry, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Success {
			entries = append(entries, *o.Entry)
			continue
		}
		response.addError(o.Index, o.Err)
	}

	if len(entries) > 0 && s.observer != nil {
		schema, err := s.converter.Schema()
		if err == nil {
			err = s.observer.ObserveSchema(ctx, schema)
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if len(entries) > 0 {
		results := s.writer.Write(ctx, entries)
		for i, r := range results {
			if r.Success {
				continue
			}
			index := r.Index
			if i < len(entries) {
				index = entries[i].Index
			}
			response.addError(index, &ErrorInfo{Kind: ErrorKindOf(r.Err), Err: r.Err})
		}
	}

	failed := len(response.Errors)
	s.inst.AddCounter(metrics.SinkMessagesTotal, len(messages)-failed, metrics.Tags{metrics.TagStatus: "success", metrics.TagKind: s.name})
	s.inst.AddCounter(metrics.SinkMessagesTotal, failed, metrics.Tags{metrics.TagStatus: "failed", metrics.TagKind: s.name})
	s.inst.CaptureDuration(metrics.SinkPushLatency, start, metrics.Tags{metrics.TagKind: s.name})

	if failed > 0 {
		s.logger.Warn("batch pushed with failures",
			zap.Int("messages", len(messages)),
			zap.Int("failed", failed))
		s.deadLetter(ctx, messages, response)
	}
	return response, nil
}

func (s *Sink) deadLetter(ctx context.Context, messages []message.Message, response *Response) {
	if s.dlq == nil {
		return
	}
	indexes := response.FailedIndexes()
	records := make([]dlq.Record, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(messages) {
			continue
		}
		info := response.Errors[i]
		records = append(records, dlq.Record{
			Index:     i,
			Key:       messages[i].Key,
			Value:     messages[i].Value,
			Metadata:  messages[i].Metadata,
			ErrorKind: string(info.Kind),
			Error:     info.Error(),
		})
	}

	if err := s.dlq.Write(ctx, records); err != nil {
		s.logger.Error("failed to write dead letters", zap.Error(err), zap.Int("records", len(records)))
		s.inst.CaptureNonFatalError(metrics.DLQWriteTotal, err, metrics.Tags{metrics.TagKind: s.name})
		return
	}
	s.inst.AddCounter(metrics.DLQWriteTotal, len(records), metrics.Tags{metrics.TagKind: s.name})
	for _, r := range records {
		response.DeadLettered = append(response.DeadLettered, r.Index)
	}
}

// Close releases the dead letter writer.
func (s *Sink) Close() error {
	if s.dlq != nil {
		return s.dlq.Close()
	}
	return nil
}
