package bigquery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// RowWriter streams TableRow entries into one table with a single insert
// call per batch.
type RowWriter struct {
	client Client
	id     TableIdentity
	inst   metrics.Instrumentation
	logger *zap.Logger
}

// NewRowWriter creates a RowWriter.
func NewRowWriter(client Client, id TableIdentity, inst metrics.Instrumentation, logger *zap.Logger) *RowWriter {
	if inst == nil {
		inst = metrics.NoopInstrumentation{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RowWriter{client: client, id: id, inst: inst, logger: logger}
}

// Write implements sink.Writer. Row errors are matched to entries by
// position. A failed call fails every row.
func (w *RowWriter) Write(ctx context.Context, entries []sink.Entry) []sink.WriteResult {
	results := make([]sink.WriteResult, len(entries))
	rows := make([]Row, 0, len(entries))
	positions := make([]int, 0, len(entries))
	for i, e := range entries {
		results[i] = sink.WriteResult{Index: e.Index, Success: true}
		if e.Kind != sink.TableRow {
			results[i] = sink.WriteResult{Index: e.Index, Err: sinkerrors.Newf(sinkerrors.ErrorTypeWrite, "bigquery cannot write %s entries", e.Kind)}
			continue
		}
		rows = append(rows, Row{InsertID: e.InsertID, Values: e.Row})
		positions = append(positions, i)
	}
	if len(rows) == 0 {
		return results
	}

	tags := metrics.Tags{
		metrics.TagAPI:     APITableInsertAll,
		metrics.TagDataset: w.id.Namespace,
		metrics.TagTable:   w.id.Name,
	}
	start := time.Now()
	rowErrs, err := w.client.InsertRows(ctx, w.id, rows)

	status := "success"
	if err != nil || len(rowErrs) > 0 {
		status = "failed"
	}
	tags[metrics.TagStatus] = status
	w.inst.IncrementCounter(metrics.BigQueryOperationTotal, tags)
	w.inst.CaptureDuration(metrics.BigQueryOperationLatency, start, tags)

	if err != nil {
		callErr := sinkerrors.Wrap(err, sinkerrors.ErrorTypeWrite, "bigquery insert failed").
			WithDetail("table", w.id.String())
		w.logger.Error("insert call failed", zap.Int("rows", len(rows)), zap.Error(callErr))
		for _, p := range positions {
			results[p].Success = false
			results[p].Err = callErr
		}
		return results
	}

	for _, re := range rowErrs {
		if re.Index < 0 || re.Index >= len(positions) {
			w.logger.Warn("row error for unknown row", zap.Int("row", re.Index), zap.Error(re.Err))
			continue
		}
		p := positions[re.Index]
		results[p].Success = false
		results[p].Err = sinkerrors.Wrap(re.Err, sinkerrors.ErrorTypeWrite, "row rejected").
			WithDetail("table", w.id.String()).
			WithDetail("row", re.Index)
	}
	if len(rowErrs) > 0 {
		w.logger.Warn("rows rejected", zap.Int("rows", len(rows)), zap.Int("rejected", len(rowErrs)))
	}
	return results
}
