// Package bigquery streams messages into a BigQuery table and keeps the
// dataset and table definition in line with the message schema.
//
// The table is reconciled before the first insert and again whenever the
// schema of a batch differs from the last reconciled one:
//
//	dest, err := bigquery.NewDestination(ctx, cfg, deps)
//	s := sink.New("bigquery", converter, dest.Writer(), log,
//	    sink.WithSchemaObserver(dest.SchemaObserver()))
package bigquery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/base"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/logger"
	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// TableManager reconciles the table when a batch carries a schema it has
// not reconciled yet. It implements sink.SchemaObserver.
type TableManager struct {
	mapper     *ColumnMapper
	metadata   MetadataLayout
	reconciler *SchemaReconciler
	logger     *zap.Logger

	mu          sync.Mutex
	fingerprint string
}

var _ sink.SchemaObserver = (*TableManager)(nil)

// NewTableManager creates a TableManager.
func NewTableManager(mapper *ColumnMapper, metadata MetadataLayout, reconciler *SchemaReconciler, logger *zap.Logger) *TableManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableManager{mapper: mapper, metadata: metadata, reconciler: reconciler, logger: logger}
}

// Columns returns the desired table columns for schema.
func (m *TableManager) Columns(schema *message.Schema) ([]Column, error) {
	columns, err := m.mapper.MapSchema(schema)
	if err != nil {
		return nil, err
	}
	return append(columns, m.metadata.Columns()...), nil
}

// ObserveSchema implements sink.SchemaObserver.
func (m *TableManager) ObserveSchema(ctx context.Context, schema *message.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp := schema.Fingerprint()
	if fp == m.fingerprint {
		return nil
	}
	if _, err := m.reconcile(ctx, schema); err != nil {
		return err
	}
	m.fingerprint = fp
	return nil
}

// Reconcile reconciles the table for schema regardless of what was
// reconciled before.
func (m *TableManager) Reconcile(ctx context.Context, schema *message.Schema) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome, err := m.reconcile(ctx, schema)
	if err == nil {
		m.fingerprint = schema.Fingerprint()
	}
	return outcome, err
}

func (m *TableManager) reconcile(ctx context.Context, schema *message.Schema) (Outcome, error) {
	columns, err := m.Columns(schema)
	if err != nil {
		return "", err
	}
	if empty := EmptyRecords(columns); len(empty) > 0 {
		m.logger.Warn("record columns without fields will be rejected by BigQuery",
			zap.String("schema", schema.Name),
			zap.Strings("columns", empty))
	}
	outcome, err := m.reconciler.Reconcile(ctx, columns)
	if err != nil {
		return "", err
	}
	m.logger.Info("table reconciled",
		zap.String("schema", schema.Name),
		zap.String("outcome", string(outcome)))
	return outcome, nil
}

// Destination is the BigQuery backend.
type Destination struct {
	client  Client
	builder *RowBuilder
	writer  *RowWriter
	tables  *TableManager
	id      TableIdentity
	logger  *zap.Logger
}

var _ core.Destination = (*Destination)(nil)

// NewDestination connects to BigQuery as configured by cfg.
func NewDestination(ctx context.Context, cfg config.BigQueryConfig, deps core.Dependencies) (*Destination, error) {
	client, err := NewGCPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewDestinationWithClient(cfg, client, deps)
}

// NewDestinationWithClient builds the destination around an existing client.
func NewDestinationWithClient(cfg config.BigQueryConfig, client Client, deps core.Dependencies) (*Destination, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Get()
	}
	log = logger.Component(log, "bigquery_destination")

	fields, err := ParseMetadataColumns(cfg.MetadataColumns)
	if err != nil {
		return nil, err
	}
	layout := MetadataLayout{Namespace: cfg.MetadataNamespace, Fields: fields}

	id := TableIdentity{Namespace: cfg.DatasetName, Name: cfg.TableName}
	tableCfg := TableConfig{
		Identity:        id,
		DatasetLocation: cfg.DatasetLocation,
		DatasetLabels:   cfg.DatasetLabels,
		TableLabels:     cfg.TableLabels,
		Partition: PartitionConfig{
			Enabled:  cfg.TablePartitioningEnabled,
			Key:      cfg.TablePartitionKey,
			ExpiryMS: cfg.TablePartitionExpiryMS,
		},
	}
	retryCap := cfg.UpdateRetryCap
	if retryCap <= 0 {
		retryCap = 10 * time.Second
	}
	retry := base.NewRetryPolicy(cfg.UpdateMaxAttempts, retryCap)
	reconciler := NewSchemaReconciler(client, tableCfg, retry, deps.Instrumentation, log)

	d := &Destination{
		client:  client,
		builder: NewRowBuilder(layout, cfg.RowInsertIDEnabled),
		writer:  NewRowWriter(client, id, deps.Instrumentation, log),
		tables:  NewTableManager(NewColumnMapper(DefaultTypeMappings()), layout, reconciler, log),
		id:      id,
		logger:  log,
	}

	log.Info("bigquery destination created",
		zap.Stringer("table", id),
		zap.String("location", cfg.DatasetLocation),
		zap.Bool("partitioned", cfg.TablePartitioningEnabled))
	return d, nil
}

// Name implements core.Destination.
func (d *Destination) Name() string { return config.SinkTypeBigQuery }

// EntryBuilder implements core.Destination.
func (d *Destination) EntryBuilder() sink.EntryBuilder { return d.builder }

// Writer implements core.Destination.
func (d *Destination) Writer() sink.Writer { return d.writer }

// SchemaObserver implements core.Destination.
func (d *Destination) SchemaObserver() sink.SchemaObserver { return d.tables }

// Tables returns the table manager, e.g. to reconcile ahead of any batch.
func (d *Destination) Tables() *TableManager { return d.tables }

// Health reads the dataset metadata.
func (d *Destination) Health(ctx context.Context) error {
	if _, err := d.client.GetDatasetState(ctx, d.id.Namespace); err != nil {
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "bigquery health check failed").
			WithDetail("dataset", d.id.Namespace)
	}
	return nil
}

// Close closes the client.
func (d *Destination) Close() error {
	d.logger.Info("closing bigquery destination")
	return d.client.Close()
}
