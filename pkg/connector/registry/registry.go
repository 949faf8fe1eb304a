// Package registry keeps the destination factories available to the CLI.
// Destinations register themselves from init functions.
package registry

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Registry manages destination registration and instantiation
type Registry struct {
	destinations map[string]core.DestinationFactory
	mu           sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		destinations: make(map[string]core.DestinationFactory),
	}
}

// RegisterDestination registers a destination factory
func (r *Registry) RegisterDestination(name string, factory core.DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "destination %s already registered", name)
	}

	r.destinations[name] = factory
	return nil
}

// CreateDestination creates the destination registered as name
func (r *Registry) CreateDestination(ctx context.Context, name string, cfg *config.Config, deps core.Dependencies) (core.Destination, error) {
	r.mu.RLock()
	factory, exists := r.destinations[name]
	r.mu.RUnlock()

	if !exists {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "destination %s not found", name).
			WithDetail("available", r.ListDestinations())
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.String("destination", name))

	destination, err := factory(ctx, cfg, deps)
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.TypeOf(err), "failed to create destination "+name)
	}
	return destination, nil
}

// ListDestinations returns the registered names in sorted order
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDestination checks if a destination is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

// Global registry functions

// RegisterDestination registers a destination in the global registry
func RegisterDestination(name string, factory core.DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// CreateDestination creates a destination from the global registry
func CreateDestination(ctx context.Context, name string, cfg *config.Config, deps core.Dependencies) (core.Destination, error) {
	return globalRegistry.CreateDestination(ctx, name, cfg, deps)
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// HasDestination checks if a destination is registered in the global registry
func HasDestination(name string) bool {
	return globalRegistry.HasDestination(name)
}
