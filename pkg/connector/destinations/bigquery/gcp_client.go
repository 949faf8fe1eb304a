package bigquery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// GCPClient implements Client with the BigQuery client library. Metadata
// reads are bounded by the connect timeout and every other call by the read
// timeout.
type GCPClient struct {
	client         *bigquery.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
}

var _ Client = (*GCPClient)(nil)

// NewGCPClient creates a client for cfg.ProjectID, authenticating with
// cfg.CredentialPath when it is set and application default credentials
// otherwise.
func NewGCPClient(ctx context.Context, cfg config.BigQueryConfig, opts ...option.ClientOption) (*GCPClient, error) {
	if cfg.CredentialPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialPath))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "failed to create BigQuery client").
			WithDetail("project_id", cfg.ProjectID)
	}
	return &GCPClient{
		client:         client,
		connectTimeout: cfg.ClientConnectTimeout,
		readTimeout:    cfg.ClientReadTimeout,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// GetDatasetState implements Client.
func (c *GCPClient) GetDatasetState(ctx context.Context, dataset string) (DatasetState, error) {
	ctx, cancel := withTimeout(ctx, c.connectTimeout)
	defer cancel()

	md, err := c.client.Dataset(dataset).Metadata(ctx)
	if isNotFound(err) {
		return DatasetState{}, nil
	}
	if err != nil {
		return DatasetState{}, err
	}
	return DatasetState{Exists: true, Location: md.Location, Labels: md.Labels}, nil
}

// CreateDataset implements Client.
func (c *GCPClient) CreateDataset(ctx context.Context, dataset, location string, labels map[string]string) error {
	ctx, cancel := withTimeout(ctx, c.readTimeout)
	defer cancel()

	return c.client.Dataset(dataset).Create(ctx, &bigquery.DatasetMetadata{
		Location: location,
		Labels:   labels,
	})
}

// UpdateDatasetLabels implements Client. Labels missing from labels are
// removed.
func (c *GCPClient) UpdateDatasetLabels(ctx context.Context, dataset string, labels map[string]string) error {
	ctx, cancel := withTimeout(ctx, c.readTimeout)
	defer cancel()

	ds := c.client.Dataset(dataset)
	md, err := ds.Metadata(ctx)
	if err != nil {
		return err
	}
	var update bigquery.DatasetMetadataToUpdate
	for k := range md.Labels {
		if _, ok := labels[k]; !ok {
			update.DeleteLabel(k)
		}
	}
	for k, v := range labels {
		update.SetLabel(k, v)
	}
	_, err = ds.Update(ctx, update, md.ETag)
	return err
}

// GetTableState implements Client.
func (c *GCPClient) GetTableState(ctx context.Context, id TableIdentity) (TableState, error) {
	ctx, cancel := withTimeout(ctx, c.connectTimeout)
	defer cancel()

	md, err := c.table(id).Metadata(ctx)
	if isNotFound(err) {
		return TableState{}, nil
	}
	if err != nil {
		return TableState{}, err
	}
	return TableState{
		Exists:       true,
		Type:         md.Type,
		Labels:       md.Labels,
		Columns:      ColumnsFromSchema(md.Schema),
		Partitioning: partitionSpecFrom(md.TimePartitioning, md.RequirePartitionFilter),
	}, nil
}

// CreateTable implements Client.
func (c *GCPClient) CreateTable(ctx context.Context, id TableIdentity, columns []Column, partition *PartitionSpec, labels map[string]string) error {
	ctx, cancel := withTimeout(ctx, c.readTimeout)
	defer cancel()

	md := &bigquery.TableMetadata{
		Schema: ToSchema(columns),
		Labels: labels,
	}
	if partition != nil {
		md.TimePartitioning = partition.toTimePartitioning()
		md.RequirePartitionFilter = partition.RequirePartitionFilter
	}
	return c.table(id).Create(ctx, md)
}

// UpdateTable implements Client. Partitioning is only updated on tables that
// are already partitioned.
func (c *GCPClient) UpdateTable(ctx context.Context, id TableIdentity, columns []Column, partition *PartitionSpec, labels map[string]string) error {
	ctx, cancel := withTimeout(ctx, c.readTimeout)
	defer cancel()

	t := c.table(id)
	md, err := t.Metadata(ctx)
	if err != nil {
		return err
	}

	update := bigquery.TableMetadataToUpdate{Schema: ToSchema(columns)}
	for k := range md.Labels {
		if _, ok := labels[k]; !ok {
			update.DeleteLabel(k)
		}
	}
	for k, v := range labels {
		update.SetLabel(k, v)
	}
	if partition != nil && md.TimePartitioning != nil {
		tp := *md.TimePartitioning
		tp.Expiration = time.Duration(partition.expiryMS()) * time.Millisecond
		update.TimePartitioning = &tp
	}

	_, err = t.Update(ctx, update, md.ETag)
	return err
}

// InsertRows implements Client.
func (c *GCPClient) InsertRows(ctx context.Context, id TableIdentity, rows []Row) ([]RowError, error) {
	ctx, cancel := withTimeout(ctx, c.readTimeout)
	defer cancel()

	savers := make([]bigquery.ValueSaver, len(rows))
	for i, r := range rows {
		savers[i] = rowSaver(r)
	}

	err := c.table(id).Inserter().Put(ctx, savers)
	if err == nil {
		return nil, nil
	}
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) {
		return nil, err
	}
	rowErrs := make([]RowError, 0, len(multi))
	for _, re := range multi {
		rowErrs = append(rowErrs, RowError{Index: re.RowIndex, Err: re.Errors})
	}
	return rowErrs, nil
}

// Close implements Client.
func (c *GCPClient) Close() error {
	return c.client.Close()
}

func (c *GCPClient) table(id TableIdentity) *bigquery.Table {
	return c.client.Dataset(id.Namespace).Table(id.Name)
}

// rowSaver adapts a Row to bigquery.ValueSaver.
type rowSaver Row

func (r rowSaver) Save() (map[string]bigquery.Value, string, error) {
	values := make(map[string]bigquery.Value, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	insertID := r.InsertID
	if insertID == "" {
		insertID = bigquery.NoDedupeID
	}
	return values, insertID, nil
}
