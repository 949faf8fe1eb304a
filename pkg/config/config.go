// Package config defines the depot configuration and loads it from YAML
// files with environment overrides.
//
// The configuration is organized into sections:
//   - Sink: which backend to write to and how many workers convert a batch
//   - Input: how messages are decoded
//   - Redis and BigQuery: backend specific settings
//   - DLQ: where failed messages go
//   - Logging, Metrics and Tracing: ambient observability
//
// Example usage:
//
//	cfg, err := config.Load("depot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sink.Type)
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/depot/pkg/logger"
	"github.com/ajitpratap0/depot/pkg/observability"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Sink types.
const (
	SinkTypeRedis    = "redis"
	SinkTypeBigQuery = "bigquery"
)

// Config is the root configuration.
type Config struct {
	Sink     SinkConfig                  `yaml:"sink" mapstructure:"sink"`
	Input    InputConfig                 `yaml:"input" mapstructure:"input"`
	Redis    RedisConfig                 `yaml:"redis" mapstructure:"redis"`
	BigQuery BigQueryConfig              `yaml:"bigquery" mapstructure:"bigquery"`
	DLQ      DLQConfig                   `yaml:"dlq" mapstructure:"dlq"`
	Logging  logger.Config               `yaml:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig               `yaml:"metrics" mapstructure:"metrics"`
	Tracing  observability.TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// SinkConfig selects the backend.
type SinkConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Type    string `yaml:"type" mapstructure:"type"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
}

// InputConfig describes how messages are decoded.
type InputConfig struct {
	// Format is "json" or "avro".
	Format string `yaml:"format" mapstructure:"format"`
	// Mode is LOG_MESSAGE or LOG_KEY.
	Mode         string `yaml:"mode" mapstructure:"mode"`
	MessageClass string `yaml:"message_class" mapstructure:"message_class"`
	KeyClass     string `yaml:"key_class" mapstructure:"key_class"`
	// SchemaFile is the YAML schema registry used by the json format.
	SchemaFile string `yaml:"schema_file" mapstructure:"schema_file"`
	// AvroSchemas lists the .avsc file of every schema class used by the
	// avro format.
	AvroSchemas       []AvroSchemaConfig `yaml:"avro_schemas" mapstructure:"avro_schemas"`
	ConfluentEncoding bool               `yaml:"confluent_encoding" mapstructure:"confluent_encoding"`
}

// AvroSchemaConfig binds a schema class to an Avro schema file.
type AvroSchemaConfig struct {
	Class string `yaml:"class" mapstructure:"class"`
	File  string `yaml:"file" mapstructure:"file"`
}

// SchemaClass returns the class decoded under the configured mode.
func (c InputConfig) SchemaClass() string {
	if c.Mode == "LOG_KEY" {
		return c.KeyClass
	}
	return c.MessageClass
}

// RedisConfig configures the key-value sink.
type RedisConfig struct {
	URLs           string        `yaml:"urls" mapstructure:"urls"`
	DeploymentType string        `yaml:"deployment_type" mapstructure:"deployment_type"`
	Password       string        `yaml:"password" mapstructure:"password"`
	DB             int           `yaml:"db" mapstructure:"db"`
	DialTimeout    time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	DataType       string        `yaml:"data_type" mapstructure:"data_type"`
	KeyTemplate    string        `yaml:"key_template" mapstructure:"key_template"`

	KeyValueDataFieldName string `yaml:"key_value_data_field_name" mapstructure:"key_value_data_field_name"`
	ListDataFieldName     string `yaml:"list_data_field_name" mapstructure:"list_data_field_name"`
	// HashSetFieldToColumnMapping is a JSON object mapping message fields to
	// hash field templates, e.g. {"order_details":"details_%s,order_number"}.
	// It is a string so that field names keep their case.
	HashSetFieldToColumnMapping string `yaml:"hashset_field_to_column_mapping" mapstructure:"hashset_field_to_column_mapping"`

	TTLType  string `yaml:"ttl_type" mapstructure:"ttl_type"`
	TTLValue int64  `yaml:"ttl_value" mapstructure:"ttl_value"`
}

// Addresses splits URLs on commas.
func (c RedisConfig) Addresses() []string {
	var out []string
	for _, u := range strings.Split(c.URLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// HashSetMapping parses HashSetFieldToColumnMapping.
func (c RedisConfig) HashSetMapping() (map[string]string, error) {
	if strings.TrimSpace(c.HashSetFieldToColumnMapping) == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(c.HashSetFieldToColumnMapping), &m); err != nil {
		return nil, sinkerrors.Wrap(err, sinkerrors.ErrorTypeConfig, "invalid hashset_field_to_column_mapping")
	}
	return m, nil
}

// BigQueryConfig configures the warehouse sink.
type BigQueryConfig struct {
	ProjectID      string `yaml:"project_id" mapstructure:"project_id"`
	CredentialPath string `yaml:"credential_path" mapstructure:"credential_path"`

	DatasetName     string            `yaml:"dataset_name" mapstructure:"dataset_name"`
	DatasetLocation string            `yaml:"dataset_location" mapstructure:"dataset_location"`
	DatasetLabels   map[string]string `yaml:"dataset_labels" mapstructure:"dataset_labels"`
	TableName       string            `yaml:"table_name" mapstructure:"table_name"`
	TableLabels     map[string]string `yaml:"table_labels" mapstructure:"table_labels"`

	TablePartitioningEnabled bool   `yaml:"table_partitioning_enabled" mapstructure:"table_partitioning_enabled"`
	TablePartitionKey        string `yaml:"table_partition_key" mapstructure:"table_partition_key"`
	// TablePartitionExpiryMS of zero or less means partitions never expire.
	TablePartitionExpiryMS int64 `yaml:"table_partition_expiry_ms" mapstructure:"table_partition_expiry_ms"`

	RowInsertIDEnabled bool `yaml:"row_insert_id_enabled" mapstructure:"row_insert_id_enabled"`

	// MetadataColumns are message metadata keys written next to the message
	// fields, as "name=type" pairs separated by commas.
	MetadataColumns   string `yaml:"metadata_columns" mapstructure:"metadata_columns"`
	MetadataNamespace string `yaml:"metadata_namespace" mapstructure:"metadata_namespace"`

	ClientConnectTimeout time.Duration `yaml:"client_connect_timeout" mapstructure:"client_connect_timeout"`
	ClientReadTimeout    time.Duration `yaml:"client_read_timeout" mapstructure:"client_read_timeout"`

	// UpdateMaxAttempts and UpdateRetryCap bound the rate-limit retry of
	// dataset and table mutations.
	UpdateMaxAttempts int           `yaml:"update_max_attempts" mapstructure:"update_max_attempts"`
	UpdateRetryCap    time.Duration `yaml:"update_retry_cap" mapstructure:"update_retry_cap"`
}

// DLQConfig configures the dead letter writer.
type DLQConfig struct {
	// Type is "none", "log", "kafka" or "gcs".
	Type  string         `yaml:"type" mapstructure:"type"`
	Kafka KafkaDLQConfig `yaml:"kafka" mapstructure:"kafka"`
	GCS   GCSDLQConfig   `yaml:"gcs" mapstructure:"gcs"`
}

// KafkaDLQConfig configures the Kafka dead letter writer.
type KafkaDLQConfig struct {
	Brokers  []string `yaml:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" mapstructure:"topic"`
	ClientID string   `yaml:"client_id" mapstructure:"client_id"`
}

// GCSDLQConfig configures the GCS dead letter writer.
type GCSDLQConfig struct {
	ProjectID      string `yaml:"project_id" mapstructure:"project_id"`
	CredentialPath string `yaml:"credential_path" mapstructure:"credential_path"`
	Bucket         string `yaml:"bucket" mapstructure:"bucket"`
	Prefix         string `yaml:"prefix" mapstructure:"prefix"`
	// Compression is one of none, gzip, snappy, lz4, zstd.
	Compression string `yaml:"compression" mapstructure:"compression"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace     string `yaml:"namespace" mapstructure:"namespace"`
	ListenAddress string `yaml:"listen_address" mapstructure:"listen_address"`
}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	return &Config{
		Sink: SinkConfig{
			Name:    "depot",
			Workers: runtime.NumCPU(),
		},
		Input: InputConfig{
			Format: "json",
			Mode:   "LOG_MESSAGE",
		},
		Redis: RedisConfig{
			DeploymentType: "standalone",
			DataType:       "keyvalue",
			DialTimeout:    5 * time.Second,
			TTLType:        "DISABLE",
		},
		BigQuery: BigQueryConfig{
			DatasetLocation:      "asia-southeast1",
			ClientConnectTimeout: 60 * time.Second,
			ClientReadTimeout:    60 * time.Second,
			UpdateMaxAttempts:    10,
			UpdateRetryCap:       10 * time.Second,
		},
		DLQ: DLQConfig{
			Type: "log",
			GCS:  GCSDLQConfig{Compression: "gzip"},
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Namespace:     "depot",
			ListenAddress: ":9102",
		},
		Tracing: observability.TracingConfig{
			ServiceName:  "depot",
			SamplingRate: 1.0,
		},
	}
}

// Validate checks the configuration, returning a configuration error that
// names the first offending key.
func (c *Config) Validate() error {
	if c.Sink.Workers < 1 {
		return invalid("sink.workers", "must be positive")
	}

	switch c.Input.Format {
	case "json":
		if c.Input.SchemaFile == "" {
			return invalid("input.schema_file", "is required for the json format")
		}
	case "avro":
		if len(c.Input.AvroSchemas) == 0 {
			return invalid("input.avro_schemas", "is required for the avro format")
		}
	default:
		return invalid("input.format", fmt.Sprintf("unknown format %q", c.Input.Format))
	}
	switch c.Input.Mode {
	case "LOG_MESSAGE", "LOG_KEY":
	default:
		return invalid("input.mode", fmt.Sprintf("unknown mode %q", c.Input.Mode))
	}
	if c.Input.SchemaClass() == "" {
		return invalid("input.message_class", "schema class for mode "+c.Input.Mode+" is required")
	}

	switch c.Sink.Type {
	case SinkTypeRedis:
		if err := c.Redis.validate(); err != nil {
			return err
		}
	case SinkTypeBigQuery:
		if err := c.BigQuery.validate(); err != nil {
			return err
		}
	default:
		return invalid("sink.type", fmt.Sprintf("unknown sink type %q", c.Sink.Type))
	}

	return c.DLQ.validate()
}

func (c RedisConfig) validate() error {
	if len(c.Addresses()) == 0 {
		return invalid("redis.urls", "at least one address is required")
	}
	switch c.DeploymentType {
	case "standalone", "cluster":
	default:
		return invalid("redis.deployment_type", fmt.Sprintf("unknown deployment type %q", c.DeploymentType))
	}
	if c.KeyTemplate == "" {
		return invalid("redis.key_template", "Template '' is invalid")
	}
	switch c.DataType {
	case "keyvalue":
		if c.KeyValueDataFieldName == "" {
			return invalid("redis.key_value_data_field_name", "Empty config SINK_REDIS_KEY_VALUE_DATA_FIELD_NAME found")
		}
	case "list":
		if c.ListDataFieldName == "" {
			return invalid("redis.list_data_field_name", "Empty config SINK_REDIS_LIST_DATA_FIELD_NAME found")
		}
	case "hashset":
		m, err := c.HashSetMapping()
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return invalid("redis.hashset_field_to_column_mapping", "Empty config SINK_REDIS_HASHSET_FIELD_TO_COLUMN_MAPPING found")
		}
	default:
		return invalid("redis.data_type", fmt.Sprintf("unknown data type %q", c.DataType))
	}
	switch c.TTLType {
	case "", "DISABLE", "DURATION", "EXACT_TIME":
	default:
		return invalid("redis.ttl_type", fmt.Sprintf("unknown ttl type %q", c.TTLType))
	}
	if c.TTLValue < 0 {
		return invalid("redis.ttl_value", "Provide a positive TTL value")
	}
	return nil
}

func (c BigQueryConfig) validate() error {
	if c.ProjectID == "" {
		return invalid("bigquery.project_id", "is required")
	}
	if c.DatasetName == "" {
		return invalid("bigquery.dataset_name", "is required")
	}
	if c.TableName == "" {
		return invalid("bigquery.table_name", "is required")
	}
	if c.TablePartitioningEnabled && c.TablePartitionKey == "" {
		return invalid("bigquery.table_partition_key", "partition key must be set when partitioning is enabled")
	}
	if c.UpdateMaxAttempts < 1 {
		return invalid("bigquery.update_max_attempts", "must be positive")
	}
	return nil
}

func (c DLQConfig) validate() error {
	switch c.Type {
	case "", "none", "log":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return invalid("dlq.kafka", "brokers and topic are required")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return invalid("dlq.gcs.bucket", "is required")
		}
	default:
		return invalid("dlq.type", fmt.Sprintf("unknown dead letter type %q", c.Type))
	}
	return nil
}

func invalid(key, reason string) error {
	return sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "%s: %s", key, reason).WithDetail("key", key)
}
