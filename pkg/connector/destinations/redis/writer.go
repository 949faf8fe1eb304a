package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// PipelineClient opens pipelines. *goredis.Client and *goredis.ClusterClient
// both satisfy it.
type PipelineClient interface {
	Pipeline() goredis.Pipeliner
}

// DirectClient issues one network call per command.
type DirectClient interface {
	Expirer
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	LPush(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *goredis.IntCmd
}

// PipelineWriter queues every entry and its expiry on one pipeline and reads
// all responses after a single flush.
type PipelineWriter struct {
	client PipelineClient
	ttl    TTL
	inst   metrics.Instrumentation
	logger *zap.Logger
}

// NewPipelineWriter creates a PipelineWriter. A nil ttl disables expiry.
func NewPipelineWriter(client PipelineClient, ttl TTL, inst metrics.Instrumentation, logger *zap.Logger) *PipelineWriter {
	if ttl == nil {
		ttl = NoTTL{}
	}
	if inst == nil {
		inst = metrics.NoopInstrumentation{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineWriter{client: client, ttl: ttl, inst: inst, logger: logger}
}

// Write implements sink.Writer.
func (w *PipelineWriter) Write(ctx context.Context, entries []sink.Entry) []sink.WriteResult {
	start := time.Now()
	pipe := w.client.Pipeline()

	cmds := make([]goredis.Cmder, len(entries))
	ttls := make([]*goredis.BoolCmd, len(entries))
	for i, e := range entries {
		cmds[i] = queue(ctx, pipe, e)
		ttls[i] = w.ttl.Apply(ctx, pipe, e.Key)
	}

	// Exec reports the first failed command. Every command carries its own
	// error, so the aggregate is only logged.
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Debug("pipeline returned errors", zap.Error(err), zap.Int("entries", len(entries)))
	}

	results := make([]sink.WriteResult, len(entries))
	for i, e := range entries {
		results[i] = resultOf(e, cmds[i].Err())
		recordWrite(w.inst, e, results[i].Success)
		if !results[i].Success {
			w.logger.Warn("redis write failed",
				zap.String("entry", e.String()),
				zap.Error(results[i].Err))
			continue
		}
		if ttls[i] != nil {
			checkTTL(w.inst, w.logger, w.ttl, e, ttls[i].Err())
		}
	}
	w.inst.CaptureDuration(metrics.RedisWriteLatency, start, metrics.Tags{metrics.TagKind: "pipeline"})
	return results
}

// DirectWriter writes entries one call at a time. Expiry is set only after
// the primary write succeeded.
type DirectWriter struct {
	client DirectClient
	ttl    TTL
	inst   metrics.Instrumentation
	logger *zap.Logger
}

// NewDirectWriter creates a DirectWriter. A nil ttl disables expiry.
func NewDirectWriter(client DirectClient, ttl TTL, inst metrics.Instrumentation, logger *zap.Logger) *DirectWriter {
	if ttl == nil {
		ttl = NoTTL{}
	}
	if inst == nil {
		inst = metrics.NoopInstrumentation{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectWriter{client: client, ttl: ttl, inst: inst, logger: logger}
}

// Write implements sink.Writer.
func (w *DirectWriter) Write(ctx context.Context, entries []sink.Entry) []sink.WriteResult {
	start := time.Now()
	results := make([]sink.WriteResult, len(entries))
	for i, e := range entries {
		results[i] = resultOf(e, w.send(ctx, e))
		recordWrite(w.inst, e, results[i].Success)
		if !results[i].Success {
			w.logger.Warn("redis write failed",
				zap.String("entry", e.String()),
				zap.Error(results[i].Err))
			continue
		}
		if cmd := w.ttl.Apply(ctx, w.client, e.Key); cmd != nil {
			checkTTL(w.inst, w.logger, w.ttl, e, cmd.Err())
		}
	}
	w.inst.CaptureDuration(metrics.RedisWriteLatency, start, metrics.Tags{metrics.TagKind: "direct"})
	return results
}

func (w *DirectWriter) send(ctx context.Context, e sink.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = sinkerrors.Newf(sinkerrors.ErrorTypeWrite, "redis client panicked: %v", r)
		}
	}()
	switch e.Kind {
	case sink.ValueSet:
		return w.client.Set(ctx, e.Key, e.Value, 0).Err()
	case sink.ListPush:
		return w.client.LPush(ctx, e.Key, e.Value).Err()
	case sink.HashFieldSet:
		return w.client.HSet(ctx, e.Key, e.Field, e.Value).Err()
	default:
		return unsupported(e)
	}
}

func queue(ctx context.Context, pipe goredis.Pipeliner, e sink.Entry) goredis.Cmder {
	switch e.Kind {
	case sink.ValueSet:
		return pipe.Set(ctx, e.Key, e.Value, 0)
	case sink.ListPush:
		return pipe.LPush(ctx, e.Key, e.Value)
	case sink.HashFieldSet:
		return pipe.HSet(ctx, e.Key, e.Field, e.Value)
	default:
		cmd := goredis.NewStatusCmd(ctx)
		cmd.SetErr(unsupported(e))
		return cmd
	}
}

func unsupported(e sink.Entry) error {
	return sinkerrors.Newf(sinkerrors.ErrorTypeWrite, "redis cannot write %s entries", e.Kind)
}

func resultOf(e sink.Entry, err error) sink.WriteResult {
	if err != nil {
		var se *sinkerrors.Error
		if !errors.As(err, &se) {
			err = sinkerrors.Wrap(err, sinkerrors.ErrorTypeWrite, "redis write failed").
				WithDetail("entry", e.String())
		}
		return sink.WriteResult{Index: e.Index, Err: err}
	}
	return sink.WriteResult{Index: e.Index, Success: true}
}

func recordWrite(inst metrics.Instrumentation, e sink.Entry, ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	inst.IncrementCounter(metrics.RedisWriteTotal, metrics.Tags{
		metrics.TagKind:   e.Kind.String(),
		metrics.TagStatus: status,
	})
}

func checkTTL(inst metrics.Instrumentation, logger *zap.Logger, ttl TTL, e sink.Entry, err error) {
	if err == nil {
		inst.IncrementCounter(metrics.RedisTTLTotal, metrics.Tags{metrics.TagStatus: "success"})
		return
	}
	ttlErr := sinkerrors.Wrap(err, sinkerrors.ErrorTypeTTL, "failed to set expiry").
		WithDetail("key", e.Key).
		WithDetail("ttl", ttl.String())
	logger.Warn("redis expiry failed",
		zap.String("key", e.Key),
		zap.Stringer("ttl", ttl),
		zap.Error(ttlErr))
	inst.CaptureNonFatalError(metrics.RedisTTLTotal, ttlErr, metrics.Tags{metrics.TagStatus: "failed"})
}
