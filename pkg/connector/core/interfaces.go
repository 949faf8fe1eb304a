// Package core defines the contract between the sink pipeline and the
// backend destinations that plug into it.
package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/sink"
)

// Destination is a configured backend. It supplies the entry builder and
// writer used by a sink.Sink and owns the backend client.
type Destination interface {
	// Name is the registry name of the destination.
	Name() string
	EntryBuilder() sink.EntryBuilder
	Writer() sink.Writer
	// SchemaObserver returns nil when the backend has no schema to manage.
	SchemaObserver() sink.SchemaObserver
	Health(ctx context.Context) error
	Close() error
}

// Dependencies are the shared services handed to destination factories.
type Dependencies struct {
	Instrumentation metrics.Instrumentation
	Logger          *zap.Logger
}

// DestinationFactory creates a destination from the loaded configuration.
type DestinationFactory func(ctx context.Context, cfg *config.Config, deps Dependencies) (Destination, error)

// HealthStatus is the last observed health of a destination.
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy", "degraded"
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
	Error     error                  `json:"error,omitempty"`
}
