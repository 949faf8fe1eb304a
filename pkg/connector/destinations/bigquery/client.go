package bigquery

import (
	"context"

	"cloud.google.com/go/bigquery"
)

// TableIdentity names a table. Namespace is the dataset.
type TableIdentity struct {
	Namespace string
	Name      string
}

func (t TableIdentity) String() string {
	return t.Namespace + "." + t.Name
}

// DatasetState is a snapshot of a remote dataset.
type DatasetState struct {
	Exists   bool
	Location string
	Labels   map[string]string
}

// TableState is a snapshot of a remote table.
type TableState struct {
	Exists  bool
	Type    bigquery.TableType
	Labels  map[string]string
	Columns []Column
	// Partitioning is nil when the table has no time partitioning.
	Partitioning *PartitionSpec
}

// Row is one row handed to InsertRows. An empty InsertID disables
// best-effort deduplication.
type Row struct {
	InsertID string
	Values   map[string]interface{}
}

// RowError is the failure of the row at Index of an insert call.
type RowError struct {
	Index int
	Err   error
}

// Client is the BigQuery surface used by the reconciler and the row writer.
// Mutating calls may fail with rate limit errors.
type Client interface {
	GetDatasetState(ctx context.Context, dataset string) (DatasetState, error)
	CreateDataset(ctx context.Context, dataset, location string, labels map[string]string) error
	UpdateDatasetLabels(ctx context.Context, dataset string, labels map[string]string) error
	GetTableState(ctx context.Context, id TableIdentity) (TableState, error)
	CreateTable(ctx context.Context, id TableIdentity, columns []Column, partition *PartitionSpec, labels map[string]string) error
	UpdateTable(ctx context.Context, id TableIdentity, columns []Column, partition *PartitionSpec, labels map[string]string) error
	// InsertRows streams rows. The error is set when the call as a whole
	// failed. Otherwise the returned RowErrors name the rejected rows.
	InsertRows(ctx context.Context, id TableIdentity, rows []Row) ([]RowError, error)
	Close() error
}
