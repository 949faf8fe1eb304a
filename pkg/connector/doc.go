// Package connector hosts the destinations that depot sinks write to.
//
// # Architecture Overview
//
//   - core: the Destination interface and the dependencies handed to
//     destination factories.
//
//   - base: shared building blocks. RetryPolicy retries rate limited
//     backend calls with capped exponential backoff and HealthChecker
//     probes a backend periodically.
//
//   - destinations: the redis and bigquery implementations. Each package
//     registers itself with the registry from an init function.
//
//   - registry: maps destination names to factories.
//
// # Usage
//
//	import _ "github.com/ajitpratap0/depot/pkg/connector/destinations"
//
//	dest, err := registry.CreateDestination(ctx, cfg.Sink.Type, cfg, core.Dependencies{
//	    Instrumentation: inst,
//	    Logger:          logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer dest.Close()
//
//	converter := sink.NewBatchConverter(parser, dest.EntryBuilder(), convCfg, logger)
//	s := sink.New(cfg.Sink.Name, converter, dest.Writer(), logger,
//	    sink.WithSchemaObserver(dest.SchemaObserver()))
package connector
