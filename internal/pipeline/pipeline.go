// Package pipeline feeds a stream of raw messages through a sink in
// batches.
//
// # Basic Usage
//
//	p := pipeline.New(s, pipeline.Config{BatchSize: 500, FlushInterval: time.Second}, logger)
//	stats, err := p.Run(ctx, pipeline.NewMessageReader(os.Stdin))
//
// A batch is pushed when it is full or when the flush interval passes with
// messages pending. Per-message failures are counted and the run goes on.
// A fatal sink error stops the run.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sink"
)

// Pusher is the part of a sink the pipeline drives.
type Pusher interface {
	Push(ctx context.Context, messages []message.Message) (*sink.Response, error)
}

// Source produces messages into out until it is exhausted.
type Source interface {
	Stream(ctx context.Context, out chan<- message.Message) error
}

// Config controls batching.
type Config struct {
	BatchSize     int           // Messages per pushed batch
	FlushInterval time.Duration // Maximum time a message waits for its batch
}

// DefaultConfig returns the batching used when none is configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Stats summarizes a run.
type Stats struct {
	Batches      int
	Messages     int
	Failed       int
	DeadLettered int
	Duration     time.Duration
}

// Pipeline batches messages from a Source and pushes them.
type Pipeline struct {
	sink   Pusher
	config Config
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a pipeline. Zero config values take their defaults.
func New(s Pusher, config Config, logger *zap.Logger) *Pipeline {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		sink:   s,
		config: config,
		logger: logger.With(zap.String("component", "pipeline")),
	}
}

// Run reads src to the end, pushing every batch. It returns the first source
// or fatal sink error.
func (p *Pipeline) Run(ctx context.Context, src Source) (Stats, error) {
	start := time.Now()
	p.logger.Info("starting pipeline",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("flush_interval", p.config.FlushInterval))

	messages := make(chan message.Message, p.config.BatchSize*2)
	batches := make(chan []message.Message, 4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(messages)
		return src.Stream(gctx, messages)
	})
	g.Go(func() error {
		defer close(batches)
		return p.collect(gctx, messages, batches)
	})
	g.Go(func() error {
		return p.push(gctx, batches)
	})
	err := g.Wait()

	p.mu.Lock()
	p.stats.Duration = time.Since(start)
	stats := p.stats
	p.mu.Unlock()

	p.logger.Info("pipeline finished",
		zap.Int("batches", stats.Batches),
		zap.Int("messages", stats.Messages),
		zap.Int("failed", stats.Failed),
		zap.Int("dead_lettered", stats.DeadLettered),
		zap.Duration("duration", stats.Duration),
		zap.Error(err))
	return stats, err
}

// Stats returns the counters of the current run.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// collect groups messages into batches.
func (p *Pipeline) collect(ctx context.Context, in <-chan message.Message, out chan<- []message.Message) error {
	batch := make([]message.Message, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case out <- batch:
			batch = make([]message.Message, 0, p.config.BatchSize)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return flush()
			}
			batch = append(batch, msg)
			if len(batch) >= p.config.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// push sends batches to the sink one at a time, keeping batch order.
func (p *Pipeline) push(ctx context.Context, in <-chan []message.Message) error {
	for batch := range in {
		response, err := p.sink.Push(ctx, batch)
		if err != nil {
			p.logger.Error("batch rejected", zap.Error(err), zap.Int("messages", len(batch)))
			return err
		}

		p.mu.Lock()
		p.stats.Batches++
		p.stats.Messages += len(batch)
		p.stats.Failed += len(response.Errors)
		p.stats.DeadLettered += len(response.DeadLettered)
		p.mu.Unlock()

		if index, ok := response.LowestFailedIndex(); ok {
			p.logger.Warn("batch pushed with failures",
				zap.Int("messages", len(batch)),
				zap.Int("failed", len(response.Errors)),
				zap.Int("lowest_failed_index", index))
		}
	}
	return nil
}
