package bigquery

import (
	"context"
	"sync"

	"cloud.google.com/go/bigquery"
)

// fakeClient keeps dataset and table state in memory. Queued errors are
// returned by the next calls of an API before it succeeds.
type fakeClient struct {
	mu       sync.Mutex
	dataset  DatasetState
	table    TableState
	failures map[string][]error
	calls    map[string]int

	inserted  [][]Row
	rowErrs   []RowError
	insertErr error
	closed    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeClient) fail(api string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[api] = append(f.failures[api], errs...)
}

func (f *fakeClient) next(api string) error {
	f.calls[api]++
	if q := f.failures[api]; len(q) > 0 {
		f.failures[api] = q[1:]
		return q[0]
	}
	return nil
}

func (f *fakeClient) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[APIDatasetCreate] + f.calls[APIDatasetUpdate] + f.calls[APITableCreate] + f.calls[APITableUpdate]
}

func (f *fakeClient) count(api string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[api]
}

func (f *fakeClient) GetDatasetState(context.Context, string) (DatasetState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("dataset_get"); err != nil {
		return DatasetState{}, err
	}
	return f.dataset, nil
}

func (f *fakeClient) CreateDataset(_ context.Context, _ string, location string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(APIDatasetCreate); err != nil {
		return err
	}
	f.dataset = DatasetState{Exists: true, Location: location, Labels: labels}
	return nil
}

func (f *fakeClient) UpdateDatasetLabels(_ context.Context, _ string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(APIDatasetUpdate); err != nil {
		return err
	}
	f.dataset.Labels = labels
	return nil
}

func (f *fakeClient) GetTableState(context.Context, TableIdentity) (TableState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("table_get"); err != nil {
		return TableState{}, err
	}
	return f.table, nil
}

func (f *fakeClient) CreateTable(_ context.Context, _ TableIdentity, columns []Column, partition *PartitionSpec, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(APITableCreate); err != nil {
		return err
	}
	f.table = TableState{
		Exists:       true,
		Type:         bigquery.RegularTable,
		Labels:       labels,
		Columns:      columns,
		Partitioning: partition,
	}
	return nil
}

func (f *fakeClient) UpdateTable(_ context.Context, _ TableIdentity, columns []Column, partition *PartitionSpec, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(APITableUpdate); err != nil {
		return err
	}
	f.table.Columns = columns
	f.table.Labels = labels
	if f.table.Partitioning != nil && partition != nil {
		p := *f.table.Partitioning
		p.ExpiryMS = partition.ExpiryMS
		f.table.Partitioning = &p
	}
	return nil
}

func (f *fakeClient) InsertRows(_ context.Context, _ TableIdentity, rows []Row) ([]RowError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[APITableInsertAll]++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, rows)
	return f.rowErrs, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
