// Package depot is a sink connector that turns batches of serialized
// messages into writes against Redis or BigQuery.
//
// A batch flows through four stages:
//
//  1. A message.Parser decodes every payload with a configured schema.
//  2. A destination entry builder turns each decoded message into entries:
//     Redis values, list pushes and hash fields, or BigQuery table rows.
//  3. For BigQuery, the table schema is reconciled before the first write
//     of a new message schema, with retries on rate limited updates.
//  4. A destination writer sends the entries in one round trip and reports
//     the outcome of every entry.
//
// Failures are kept per message. A message that cannot be decoded or
// written is reported in the sink.Response by its batch index and can be
// forwarded to a dead letter queue. Configuration and schema mapping errors
// fail the whole batch.
//
// # Quick Start
//
//	cfg, err := config.Load("depot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	components, err := pipeline.Build(ctx, cfg, core.Dependencies{Logger: logger.Get()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer components.Close()
//
//	resp, err := components.Sink.Push(ctx, messages)
//
// # Key Packages
//
//	pkg/sink                  - Batch conversion, push orchestration and responses
//	pkg/message               - Schemas and the JSON and Avro parsers
//	pkg/connector/destinations/redis    - Key templating, entry builders, TTL and writers
//	pkg/connector/destinations/bigquery - Column mapping, schema reconciliation and row inserts
//	pkg/connector/registry    - Destination factories
//	pkg/dlq                   - Dead letter writers for Kafka, GCS and the log
//	pkg/config                - YAML and environment configuration
//	pkg/metrics               - Prometheus instrumentation
//	cmd/depot                 - Command line interface
package depot
