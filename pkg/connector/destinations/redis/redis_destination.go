// Package redis writes message fields to Redis as plain values, list
// elements or hash fields.
//
// A standalone deployment writes through one pipeline per batch. A cluster
// deployment writes one command at a time, since a pipeline cannot span
// slots owned by different nodes.
package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/logger"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Deployment types.
const (
	DeploymentStandalone = "standalone"
	DeploymentCluster    = "cluster"
)

// Destination is the Redis backend.
type Destination struct {
	client  goredis.UniversalClient
	builder sink.EntryBuilder
	writer  sink.Writer
	logger  *zap.Logger
}

var _ core.Destination = (*Destination)(nil)

// NewDestination connects to Redis as configured by cfg.
func NewDestination(ctx context.Context, cfg config.RedisConfig, deps core.Dependencies) (*Destination, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewDestinationWithClient(cfg, client, deps)
}

// NewDestinationWithClient builds the destination around an existing client.
func NewDestinationWithClient(cfg config.RedisConfig, client goredis.UniversalClient, deps core.Dependencies) (*Destination, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Get()
	}
	log = logger.Component(log, "redis_destination")

	builderCfg, err := BuilderConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	builder, err := NewEntryBuilder(builderCfg)
	if err != nil {
		return nil, err
	}
	ttl, err := NewTTL(cfg.TTLType, cfg.TTLValue)
	if err != nil {
		return nil, err
	}

	var writer sink.Writer
	switch cfg.DeploymentType {
	case DeploymentCluster:
		writer = NewDirectWriter(client, ttl, deps.Instrumentation, log)
	default:
		writer = NewPipelineWriter(client, ttl, deps.Instrumentation, log)
	}

	log.Info("redis destination created",
		zap.String("deployment", cfg.DeploymentType),
		zap.String("data_type", cfg.DataType),
		zap.Stringer("ttl", ttl))

	return &Destination{client: client, builder: builder, writer: writer, logger: log}, nil
}

// NewClient creates the client for cfg.DeploymentType.
func NewClient(cfg config.RedisConfig) (goredis.UniversalClient, error) {
	addrs := cfg.Addresses()
	if len(addrs) == 0 {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "redis.urls must name at least one address")
	}
	switch cfg.DeploymentType {
	case DeploymentCluster:
		return goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:       addrs,
			Password:    cfg.Password,
			DialTimeout: cfg.DialTimeout,
		}), nil
	case "", DeploymentStandalone:
		return goredis.NewClient(&goredis.Options{
			Addr:        addrs[0],
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		}), nil
	default:
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "unknown redis deployment type %q", cfg.DeploymentType)
	}
}

// BuilderConfigFrom extracts the entry builder settings from cfg.
func BuilderConfigFrom(cfg config.RedisConfig) (BuilderConfig, error) {
	mapping, err := cfg.HashSetMapping()
	if err != nil {
		return BuilderConfig{}, err
	}
	return BuilderConfig{
		DataType:              cfg.DataType,
		KeyTemplate:           cfg.KeyTemplate,
		KeyValueDataFieldName: cfg.KeyValueDataFieldName,
		ListDataFieldName:     cfg.ListDataFieldName,
		HashSetMapping:        mapping,
	}, nil
}

// Name implements core.Destination.
func (d *Destination) Name() string { return config.SinkTypeRedis }

// EntryBuilder implements core.Destination.
func (d *Destination) EntryBuilder() sink.EntryBuilder { return d.builder }

// Writer implements core.Destination.
func (d *Destination) Writer() sink.Writer { return d.writer }

// SchemaObserver implements core.Destination. Redis has no schema.
func (d *Destination) SchemaObserver() sink.SchemaObserver { return nil }

// Health pings the server.
func (d *Destination) Health(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "redis ping failed")
	}
	return nil
}

// Close closes the client.
func (d *Destination) Close() error {
	d.logger.Info("closing redis destination")
	return d.client.Close()
}
