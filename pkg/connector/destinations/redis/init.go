package redis

import (
	"context"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(config.SinkTypeRedis, func(ctx context.Context, cfg *config.Config, deps core.Dependencies) (core.Destination, error) {
		return NewDestination(ctx, cfg.Redis, deps)
	})
}
