package sink

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

func TestConvertPreservesIndexes(t *testing.T) {
	values := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		if i%7 == 0 {
			values = append(values, fmt.Sprintf("bad-%d", i))
			continue
		}
		values = append(values, fmt.Sprintf("order-%d", i))
	}

	c := NewBatchConverter(&stubParser{}, &stubBuilder{}, ConverterConfig{SchemaClass: "c", Workers: 8}, zaptest.NewLogger(t))
	outcomes, err := c.Convert(context.Background(), messages(values...))
	require.NoError(t, err)
	require.Len(t, outcomes, 50)

	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		if i%7 == 0 {
			assert.False(t, o.Success)
			assert.Nil(t, o.Entry)
			assert.Equal(t, ErrorKindDeserialization, o.Err.Kind)
		} else {
			assert.True(t, o.Success)
			assert.Nil(t, o.Err)
			assert.Equal(t, i, o.Entry.Index)
			assert.Equal(t, fmt.Sprintf("order-%d", i), o.Entry.Value)
		}
		assert.Equal(t, fmt.Sprintf("{offset=%d}", i), o.Metadata)
	}
}

func TestConvertFanout(t *testing.T) {
	c := NewBatchConverter(&stubParser{}, &stubBuilder{fanout: 3}, ConverterConfig{SchemaClass: "c", Workers: 2}, nil)
	outcomes, err := c.Convert(context.Background(), messages("a", "b"))
	require.NoError(t, err)
	require.Len(t, outcomes, 6)

	for i, o := range outcomes {
		assert.Equal(t, i/3, o.Index)
		assert.Equal(t, fmt.Sprintf("f%d", i%3), o.Entry.Field)
	}
}

func TestConvertSchemaResolutionFailure(t *testing.T) {
	parser := &stubParser{schemaErr: sinkerrors.New(sinkerrors.ErrorTypeConfig, "unknown class")}
	c := NewBatchConverter(parser, &stubBuilder{}, ConverterConfig{SchemaClass: "c"}, nil)

	outcomes, err := c.Convert(context.Background(), messages("a", "b", "c"))
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Success)
		assert.Equal(t, ErrorKindConfig, o.Err.Kind)
	}
}

func TestConvertBuilderConfigurationErrorAbortsBatch(t *testing.T) {
	builder := &stubBuilder{err: func(v string) error {
		if v == "b" {
			return sinkerrors.New(sinkerrors.ErrorTypeConfig, "Empty config SINK_REDIS_LIST_DATA_FIELD_NAME found")
		}
		return nil
	}}
	c := NewBatchConverter(&stubParser{}, builder, ConverterConfig{SchemaClass: "c", Workers: 4}, nil)

	outcomes, err := c.Convert(context.Background(), messages("a", "b", "c"))
	require.Error(t, err)
	assert.Nil(t, outcomes)
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
}

func TestConvertBuilderDataErrorFailsMessage(t *testing.T) {
	builder := &stubBuilder{err: func(v string) error {
		if v == "b" {
			return sinkerrors.New(sinkerrors.ErrorTypeDeserialization, "value is absent")
		}
		return nil
	}}
	c := NewBatchConverter(&stubParser{}, builder, ConverterConfig{SchemaClass: "c"}, nil)

	outcomes, err := c.Convert(context.Background(), messages("a", "b", "c"))
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Equal(t, ErrorKindDeserialization, outcomes[1].Err.Kind)
	assert.True(t, outcomes[2].Success)
}

func TestConvertCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewBatchConverter(&stubParser{}, &stubBuilder{}, ConverterConfig{SchemaClass: "c"}, nil)
	_, err := c.Convert(ctx, messages("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertEmptyBatch(t *testing.T) {
	c := NewBatchConverter(&stubParser{}, &stubBuilder{}, ConverterConfig{SchemaClass: "c"}, nil)
	outcomes, err := c.Convert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, message.ModeLogMessage, c.config.Mode)
}
