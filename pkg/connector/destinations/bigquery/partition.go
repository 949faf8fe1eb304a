package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// PartitionConfig is the configured table partitioning.
type PartitionConfig struct {
	Enabled bool
	Key     string
	// ExpiryMS of zero or less means partitions never expire.
	ExpiryMS int64
}

// PartitionSpec is daily time partitioning on Field.
type PartitionSpec struct {
	Field                  string
	Type                   bigquery.TimePartitioningType
	ExpiryMS               int64
	RequirePartitionFilter bool
}

// BuildPartitionSpec returns the partitioning for cfg, or nil when it is
// disabled. The key must name a top-level TIMESTAMP or DATE column.
func BuildPartitionSpec(cfg PartitionConfig, columns []Column) (*PartitionSpec, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Key == "" {
		return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "Partition key has to be configured for partitioned table")
	}
	col, ok := FindColumn(columns, cfg.Key)
	if !ok {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "Partition key %s is not present in the schema", cfg.Key).
			WithDetail("partition_key", cfg.Key)
	}
	if col.Type != bigquery.TimestampFieldType && col.Type != bigquery.DateFieldType {
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "Range BigQuery partitioning is not supported, supported partition fields have to be of DATE or TIMESTAMP type, got %s", col.Type).
			WithDetail("partition_key", cfg.Key)
	}

	spec := &PartitionSpec{
		Field:                  cfg.Key,
		Type:                   bigquery.DayPartitioningType,
		RequirePartitionFilter: true,
	}
	if cfg.ExpiryMS > 0 {
		spec.ExpiryMS = cfg.ExpiryMS
	}
	return spec, nil
}

// canonicalExpiry maps every "never expire" value to 0.
func canonicalExpiry(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return ms
}

func (p *PartitionSpec) expiryMS() int64 {
	if p == nil {
		return 0
	}
	return canonicalExpiry(p.ExpiryMS)
}

func (p *PartitionSpec) toTimePartitioning() *bigquery.TimePartitioning {
	return &bigquery.TimePartitioning{
		Type:       p.Type,
		Field:      p.Field,
		Expiration: time.Duration(canonicalExpiry(p.ExpiryMS)) * time.Millisecond,
	}
}

func partitionSpecFrom(tp *bigquery.TimePartitioning, requireFilter bool) *PartitionSpec {
	if tp == nil {
		return nil
	}
	return &PartitionSpec{
		Field:                  tp.Field,
		Type:                   tp.Type,
		ExpiryMS:               canonicalExpiry(tp.Expiration.Milliseconds()),
		RequirePartitionFilter: requireFilter,
	}
}
