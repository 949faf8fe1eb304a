package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

const redisYAML = `
sink:
  type: redis
  workers: 4
input:
  format: json
  schema_file: schemas.yaml
  message_class: com.example.Order
redis:
  urls: ${TEST_REDIS_HOST}:6379, replica:6379
  data_type: hashset
  key_template: "Test-%s,order_number"
  hashset_field_to_column_mapping: '{"order_details":"details_%s,order_number"}'
  ttl_type: DURATION
  ttl_value: 60
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("TEST_REDIS_HOST", "primary")

	cfg, err := Load(writeConfig(t, redisYAML))
	require.NoError(t, err)

	assert.Equal(t, SinkTypeRedis, cfg.Sink.Type)
	assert.Equal(t, 4, cfg.Sink.Workers)
	assert.Equal(t, []string{"primary:6379", "replica:6379"}, cfg.Redis.Addresses())
	assert.Equal(t, "standalone", cfg.Redis.DeploymentType)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, int64(60), cfg.Redis.TTLValue)

	mapping, err := cfg.Redis.HashSetMapping()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"order_details": "details_%s,order_number"}, mapping)

	assert.Equal(t, "com.example.Order", cfg.Input.SchemaClass())
	assert.Equal(t, 10, cfg.BigQuery.UpdateMaxAttempts)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("TEST_REDIS_HOST", "primary")
	t.Setenv("DEPOT_REDIS_DEPLOYMENT_TYPE", "cluster")
	t.Setenv("DEPOT_SINK_WORKERS", "9")

	cfg, err := Load(writeConfig(t, redisYAML))
	require.NoError(t, err)
	assert.Equal(t, "cluster", cfg.Redis.DeploymentType)
	assert.Equal(t, 9, cfg.Sink.Workers)
}

func TestLoadBigQueryConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sink:
  type: bigquery
input:
  format: avro
  avro_schemas:
    - class: com.example.Order
      file: order.avsc
  message_class: com.example.Order
bigquery:
  project_id: p
  dataset_name: ds
  table_name: orders
  dataset_labels:
    team: data
  table_partitioning_enabled: true
  table_partition_key: created_at
  table_partition_expiry_ms: 86400000
  update_retry_cap: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team": "data"}, cfg.BigQuery.DatasetLabels)
	assert.Equal(t, int64(86400000), cfg.BigQuery.TablePartitionExpiryMS)
	assert.Equal(t, 2*time.Second, cfg.BigQuery.UpdateRetryCap)
	assert.Equal(t, 60*time.Second, cfg.BigQuery.ClientReadTimeout)
	assert.Equal(t, "asia-southeast1", cfg.BigQuery.DatasetLocation)
	assert.Equal(t, []AvroSchemaConfig{{Class: "com.example.Order", File: "order.avsc"}}, cfg.Input.AvroSchemas)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := NewDefault()
		cfg.Sink.Type = SinkTypeRedis
		cfg.Input.SchemaFile = "schemas.yaml"
		cfg.Input.MessageClass = "com.example.Order"
		cfg.Redis.URLs = "localhost:6379"
		cfg.Redis.KeyTemplate = "order-%s,order_number"
		cfg.Redis.KeyValueDataFieldName = "order_number"
		return cfg
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown sink", func(c *Config) { c.Sink.Type = "s3" }, "sink.type"},
		{"no workers", func(c *Config) { c.Sink.Workers = 0 }, "sink.workers"},
		{"empty template", func(c *Config) { c.Redis.KeyTemplate = "" }, "Template '' is invalid"},
		{"list without field", func(c *Config) { c.Redis.DataType = "list" }, "Empty config SINK_REDIS_LIST_DATA_FIELD_NAME found"},
		{"hashset without mapping", func(c *Config) { c.Redis.DataType = "hashset" }, "Empty config SINK_REDIS_HASHSET_FIELD_TO_COLUMN_MAPPING found"},
		{"negative ttl", func(c *Config) { c.Redis.TTLValue = -1 }, "Provide a positive TTL value"},
		{"unknown mode", func(c *Config) { c.Input.Mode = "LOG_BOTH" }, "input.mode"},
		{"kafka dlq without topic", func(c *Config) { c.DLQ.Type = "kafka" }, "dlq.kafka"},
		{"partition without key", func(c *Config) {
			c.Sink.Type = SinkTypeBigQuery
			c.BigQuery.ProjectID, c.BigQuery.DatasetName, c.BigQuery.TableName = "p", "d", "t"
			c.BigQuery.TablePartitioningEnabled = true
		}, "partition key must be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDumpRoundTrip(t *testing.T) {
	data, err := Dump(NewDefault())
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, NewDefault().Redis, cfg.Redis)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}
