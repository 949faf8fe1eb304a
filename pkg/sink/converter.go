package sink

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// ConverterConfig selects the schema used to decode a batch.
type ConverterConfig struct {
	Mode        message.SchemaMessageMode
	SchemaClass string
	// Workers bounds the number of messages converted concurrently.
	// Values below one convert sequentially.
	Workers int
}

// BatchConverter converts raw messages into outcomes.
type BatchConverter struct {
	parser  message.Parser
	builder EntryBuilder
	config  ConverterConfig
	logger  *zap.Logger
}

// NewBatchConverter creates a converter.
func NewBatchConverter(parser message.Parser, builder EntryBuilder, config ConverterConfig, logger *zap.Logger) *BatchConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Mode == "" {
		config.Mode = message.ModeLogMessage
	}
	return &BatchConverter{
		parser:  parser,
		builder: builder,
		config:  config,
		logger:  logger.With(zap.String("component", "batch_converter")),
	}
}

// Schema resolves the schema configured for this converter.
func (c *BatchConverter) Schema() (*message.Schema, error) {
	return c.parser.Schema(c.config.SchemaClass)
}

// Convert returns at least one outcome per message, sorted by index. A
// message failure becomes a failed outcome. An error is returned only when
// the entry builder reports broken configuration or ctx is done, in which
// case the batch must not be written.
func (c *BatchConverter) Convert(ctx context.Context, messages []message.Message) ([]Outcome, error) {
	var (
		mu       sync.Mutex
		outcomes = make([]Outcome, 0, len(messages))
	)

	workers := c.config.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range messages {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			converted, err := c.convertOne(i, messages[i])
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes = append(outcomes, converted...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(outcomes, func(a, b int) bool {
		return outcomes[a].Index < outcomes[b].Index
	})
	return outcomes, nil
}

func (c *BatchConverter) convertOne(index int, msg message.Message) ([]Outcome, error) {
	metadata := msg.MetadataString()

	schema, err := c.parser.Schema(c.config.SchemaClass)
	if err != nil {
		return []Outcome{FailedOutcome(index, ErrorKindConfig, err, metadata)}, nil
	}

	parsed, err := c.parser.Parse(msg, c.config.Mode, c.config.SchemaClass)
	if err != nil {
		kind := ErrorKindDeserialization
		if sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig) {
			kind = ErrorKindConfig
		}
		c.logger.Debug("message parse failed",
			zap.Int("index", index),
			zap.String("metadata", metadata),
			zap.Error(err))
		return []Outcome{FailedOutcome(index, kind, err, metadata)}, nil
	}

	var entries []Entry
	if mb, ok := c.builder.(MetadataEntryBuilder); ok {
		entries, err = mb.BuildWithMetadata(index, parsed, schema, msg.Metadata)
	} else {
		entries, err = c.builder.Build(index, parsed, schema)
	}
	if err != nil {
		if sinkerrors.IsFatal(err) {
			c.logger.Error("entry builder configuration is invalid",
				zap.Int("index", index),
				zap.Error(err))
			return nil, err
		}
		return []Outcome{FailedOutcome(index, ErrorKindOf(err), err, metadata)}, nil
	}

	outcomes := make([]Outcome, 0, len(entries))
	for _, e := range entries {
		e.Index = index
		outcomes = append(outcomes, SuccessOutcome(e, metadata))
	}
	return outcomes, nil
}
