package pipeline

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/connector/registry"
	"github.com/ajitpratap0/depot/pkg/dlq"
	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Components is a fully assembled sink and the destination behind it.
type Components struct {
	Destination core.Destination
	Parser      message.Parser
	Converter   *sink.BatchConverter
	Sink        *sink.Sink
}

// Close closes the sink's dead letter writer and the destination.
func (c *Components) Close() error {
	sinkErr := c.Sink.Close()
	if err := c.Destination.Close(); err != nil {
		return err
	}
	return sinkErr
}

// Build creates the parser, the configured destination, the dead letter
// writer and the sink that ties them together. The destination must have
// been registered, usually by a blank import of its package.
func Build(ctx context.Context, cfg *config.Config, deps core.Dependencies) (*Components, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Instrumentation == nil {
		deps.Instrumentation = metrics.NoopInstrumentation{}
	}

	parser, err := NewParser(cfg.Input)
	if err != nil {
		return nil, err
	}

	dest, err := registry.CreateDestination(ctx, cfg.Sink.Type, cfg, deps)
	if err != nil {
		return nil, err
	}

	deadLetters, err := dlq.New(ctx, cfg.DLQ, deps.Logger)
	if err != nil {
		_ = dest.Close()
		return nil, err
	}

	converter := sink.NewBatchConverter(parser, dest.EntryBuilder(), sink.ConverterConfig{
		Mode:        message.SchemaMessageMode(cfg.Input.Mode),
		SchemaClass: cfg.Input.SchemaClass(),
		Workers:     cfg.Sink.Workers,
	}, deps.Logger)

	opts := []sink.Option{sink.WithInstrumentation(deps.Instrumentation)}
	if deadLetters != nil {
		opts = append(opts, sink.WithDeadLetterWriter(deadLetters))
	}
	if observer := dest.SchemaObserver(); observer != nil {
		opts = append(opts, sink.WithSchemaObserver(observer))
	}

	return &Components{
		Destination: dest,
		Parser:      parser,
		Converter:   converter,
		Sink:        sink.New(cfg.Sink.Name, converter, dest.Writer(), deps.Logger, opts...),
	}, nil
}

// NewParser builds the parser selected by cfg.Format.
func NewParser(cfg config.InputConfig) (message.Parser, error) {
	switch cfg.Format {
	case "avro":
		schemas := make(map[string]string, len(cfg.AvroSchemas))
		for _, s := range cfg.AvroSchemas {
			data, err := os.ReadFile(s.File) //nolint:gosec // G304: path comes from the operator
			if err != nil {
				return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "failed to read avro schema").
					WithDetail("schema_class", s.Class).
					WithDetail("path", s.File)
			}
			schemas[s.Class] = string(data)
		}
		var opts []message.AvroOption
		if cfg.ConfluentEncoding {
			opts = append(opts, message.WithConfluentHeader())
		}
		return message.NewAvroParser(schemas, opts...)
	default:
		schemas, err := message.LoadRegistry(cfg.SchemaFile)
		if err != nil {
			return nil, err
		}
		return message.NewJSONParser(schemas), nil
	}
}
