package bigquery

import (
	"context"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/connector/registry"
)

func init() {
	// Register BigQuery destination in the global registry
	_ = registry.RegisterDestination(config.SinkTypeBigQuery, func(ctx context.Context, cfg *config.Config, deps core.Dependencies) (core.Destination, error) {
		return NewDestination(ctx, cfg.BigQuery, deps)
	})
}
