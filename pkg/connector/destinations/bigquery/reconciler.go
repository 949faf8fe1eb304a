package bigquery

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/connector/base"
	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/observability"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Outcome is the result of a reconciliation.
type Outcome string

const (
	OutcomeCreated   Outcome = "CREATED"
	OutcomeUpdated   Outcome = "UPDATED"
	OutcomeUnchanged Outcome = "UNCHANGED"
)

// API names tagged on BigQuery metrics.
const (
	APIDatasetCreate  = "dataset_create"
	APIDatasetUpdate  = "dataset_update"
	APITableCreate    = "table_create"
	APITableUpdate    = "table_update"
	APITableInsertAll = "table_insert_all"
)

// rateLimitMarkers identify rate limited BigQuery responses.
var rateLimitMarkers = []string{"Exceeded rate limits", "rateLimitExceeded"}

// TableConfig is the desired dataset and table configuration.
type TableConfig struct {
	Identity        TableIdentity
	DatasetLocation string
	DatasetLabels   map[string]string
	TableLabels     map[string]string
	Partition       PartitionConfig
}

// SchemaReconciler creates or updates a dataset and table so that they
// match the desired columns. Calls for the same table must not overlap.
type SchemaReconciler struct {
	client Client
	cfg    TableConfig
	retry  base.RetryPolicy
	inst   metrics.Instrumentation
	logger *zap.Logger
}

// NewSchemaReconciler creates a reconciler. A nil retry uses ten attempts
// with delays below ten seconds.
func NewSchemaReconciler(client Client, cfg TableConfig, retry *base.RetryPolicy, inst metrics.Instrumentation, logger *zap.Logger) *SchemaReconciler {
	if retry == nil {
		retry = base.NewRetryPolicy(10, 10*time.Second)
	}
	if inst == nil {
		inst = metrics.NoopInstrumentation{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaReconciler{
		client: client,
		cfg:    cfg,
		retry:  *retry,
		inst:   inst,
		logger: logger.With(zap.Stringer("table", cfg.Identity)),
	}
}

// Reconcile brings the remote dataset and table in line with desired.
// Remote state is read on every call.
func (r *SchemaReconciler) Reconcile(ctx context.Context, desired []Column) (Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "bigquery.reconcile",
		observability.Attr("bigquery.dataset", r.cfg.Identity.Namespace),
		observability.Attr("bigquery.table", r.cfg.Identity.Name))
	defer span.End()

	outcome, err := r.reconcile(ctx, desired)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttribute("bigquery.outcome", string(outcome))
	return outcome, nil
}

func (r *SchemaReconciler) reconcile(ctx context.Context, desired []Column) (Outcome, error) {
	partition, err := BuildPartitionSpec(r.cfg.Partition, desired)
	if err != nil {
		return "", err
	}

	if err := r.reconcileDataset(ctx); err != nil {
		return "", err
	}

	table, err := r.client.GetTableState(ctx, r.cfg.Identity)
	if err != nil {
		return "", sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to read table").
			WithDetail("table", r.cfg.Identity.String())
	}

	if !table.Exists {
		err := r.mutate(ctx, APITableCreate, func() error {
			return r.client.CreateTable(ctx, r.cfg.Identity, desired, partition, r.cfg.TableLabels)
		})
		if err != nil {
			return "", err
		}
		r.logger.Info("table created", zap.Int("columns", len(desired)))
		return OutcomeCreated, nil
	}

	if !r.tableNeedsUpdate(table, desired, partition) {
		r.logger.Info("table is up to date, skipping update")
		return OutcomeUnchanged, nil
	}

	err = r.mutate(ctx, APITableUpdate, func() error {
		return r.client.UpdateTable(ctx, r.cfg.Identity, desired, partition, r.cfg.TableLabels)
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("table updated", zap.Int("columns", len(desired)))
	return OutcomeUpdated, nil
}

func (r *SchemaReconciler) reconcileDataset(ctx context.Context) error {
	dataset := r.cfg.Identity.Namespace
	state, err := r.client.GetDatasetState(ctx, dataset)
	if err != nil {
		return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "failed to read dataset").
			WithDetail("dataset", dataset)
	}

	if !state.Exists {
		err := r.mutate(ctx, APIDatasetCreate, func() error {
			return r.client.CreateDataset(ctx, dataset, r.cfg.DatasetLocation, r.cfg.DatasetLabels)
		})
		if err != nil {
			return err
		}
		r.logger.Info("dataset created", zap.String("location", r.cfg.DatasetLocation))
		return nil
	}

	if !strings.EqualFold(state.Location, r.cfg.DatasetLocation) {
		return sinkerrors.Newf(sinkerrors.ErrorTypeLocationImmutable,
			"Dataset location cannot be changed from %s to %s", state.Location, r.cfg.DatasetLocation).
			WithDetail("dataset", dataset)
	}

	if labelsEqual(state.Labels, r.cfg.DatasetLabels) {
		return nil
	}
	err = r.mutate(ctx, APIDatasetUpdate, func() error {
		return r.client.UpdateDatasetLabels(ctx, dataset, r.cfg.DatasetLabels)
	})
	if err != nil {
		return err
	}
	r.logger.Info("dataset labels updated")
	return nil
}

func (r *SchemaReconciler) tableNeedsUpdate(table TableState, desired []Column, partition *PartitionSpec) bool {
	if !labelsEqual(table.Labels, r.cfg.TableLabels) {
		return true
	}
	if !ColumnsEqual(table.Columns, desired) {
		return true
	}
	// Expiry is only managed while partitioning is configured.
	if partition != nil && isStandardTable(table) && table.Partitioning != nil {
		return table.Partitioning.expiryMS() != partition.expiryMS()
	}
	return false
}

// mutate runs one mutating call under the retry policy and records one
// counter and one latency observation for it.
func (r *SchemaReconciler) mutate(ctx context.Context, api string, call func() error) error {
	tags := metrics.Tags{
		metrics.TagAPI:     api,
		metrics.TagDataset: r.cfg.Identity.Namespace,
		metrics.TagTable:   r.cfg.Identity.Name,
	}

	policy := r.retry
	policy.OnRetry = func(next int, err error, delay time.Duration) {
		r.inst.IncrementCounter(metrics.BigQueryRetryTotal, tags)
		r.logger.Warn("rate limited, retrying",
			zap.String("api", api),
			zap.Int("attempt", next),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	policy.OnInterrupt = func(err error) {
		r.inst.CaptureNonFatalError(metrics.BigQueryRetryTotal, err, tags)
		r.logger.Error("retry sleep interrupted", zap.String("api", api), zap.Error(err))
	}

	start := time.Now()
	attempts, err := policy.ExecuteWithCondition(ctx, call, isRateLimited)

	status := "success"
	if err != nil {
		status = "failed"
	}
	tags[metrics.TagStatus] = status
	r.inst.IncrementCounter(metrics.BigQueryOperationTotal, tags)
	r.inst.CaptureDuration(metrics.BigQueryOperationLatency, start, tags)

	if err == nil {
		return nil
	}
	errType := sinkerrors.ErrorTypeBackend
	if isRateLimited(err) {
		errType = sinkerrors.ErrorTypeRateLimit
	}
	return sinkerrors.Wrap(err, errType, api+" failed").
		WithDetail("table", r.cfg.Identity.String()).
		WithDetail("attempts", attempts)
}

func isRateLimited(err error) bool {
	msg := err.Error()
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isStandardTable(t TableState) bool {
	return t.Type == "" || t.Type == bigquery.RegularTable
}

// labelsEqual treats nil and empty label sets as equal.
func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
