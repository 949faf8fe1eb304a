package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/connector/registry"
	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

func redisConfig(addr string) config.RedisConfig {
	cfg := config.NewDefault().Redis
	cfg.URLs = addr
	cfg.KeyTemplate = "order-%s,order_number"
	cfg.KeyValueDataFieldName = "order_url"
	return cfg
}

func TestDestinationStandalone(t *testing.T) {
	mr := miniredis.RunT(t)
	deps := core.Dependencies{Logger: zaptest.NewLogger(t)}

	d, err := NewDestination(context.Background(), redisConfig(mr.Addr()), deps)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "redis", d.Name())
	assert.Nil(t, d.SchemaObserver())
	assert.IsType(t, &PipelineWriter{}, d.Writer())
	assert.IsType(t, &KeyValueBuilder{}, d.EntryBuilder())
	require.NoError(t, d.Health(context.Background()))
}

func TestDestinationClusterUsesDirectWriter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(mr.Addr())
	cfg.DeploymentType = DeploymentCluster

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	d, err := NewDestinationWithClient(cfg, client, core.Dependencies{})
	require.NoError(t, err)
	defer d.Close()

	assert.IsType(t, &DirectWriter{}, d.Writer())
}

func TestDestinationRejectsBadConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := redisConfig(mr.Addr())
	cfg.TTLType = TTLTypeDuration
	cfg.TTLValue = -5
	_, err := NewDestination(context.Background(), cfg, core.Dependencies{})
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))

	cfg = redisConfig(mr.Addr())
	cfg.DataType = DataTypeHashSet
	cfg.HashSetFieldToColumnMapping = "{not json"
	_, err = NewDestination(context.Background(), cfg, core.Dependencies{})
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))

	cfg = redisConfig("")
	_, err = NewDestination(context.Background(), cfg, core.Dependencies{})
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}

func TestDestinationHealthFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	d, err := NewDestination(context.Background(), redisConfig(mr.Addr()), core.Dependencies{})
	require.NoError(t, err)
	defer d.Close()

	mr.Close()
	err = d.Health(context.Background())
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeBackend))
}

func TestRegisteredInGlobalRegistry(t *testing.T) {
	assert.True(t, registry.HasDestination("redis"))
}

func TestSinkPushEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(mr.Addr())
	cfg.DataType = DataTypeHashSet
	cfg.HashSetFieldToColumnMapping = `{"order_url":"url","order_details":"details_%s,order_number"}`

	d, err := NewDestination(context.Background(), cfg, core.Dependencies{})
	require.NoError(t, err)
	defer d.Close()

	schemas := message.NewRegistry()
	schemas.Register(orderSchema())
	parser := message.NewJSONParser(schemas)

	conv := sink.NewBatchConverter(parser, d.EntryBuilder(), sink.ConverterConfig{
		Mode:        message.ModeLogMessage,
		SchemaClass: "com.example.Order",
		Workers:     2,
	}, zaptest.NewLogger(t))
	s := sink.New("redis", conv, d.Writer(), zaptest.NewLogger(t))

	resp, err := s.Push(context.Background(), []message.Message{
		{Value: []byte(`{"order_number":"A","order_url":"u-a","order_details":"d-a"}`)},
		{Value: []byte(`not json`)},
		{Value: []byte(`{"order_number":"B","order_url":"u-b","order_details":"d-b"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, resp.FailedIndexes())
	assert.Equal(t, sink.ErrorKindDeserialization, resp.Errors[1].Kind)

	assert.Equal(t, "u-a", mr.HGet("order-A", "url"))
	assert.Equal(t, "d-b", mr.HGet("order-B", "details_B"))
}
