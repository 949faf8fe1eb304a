package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

func TestMessageReader(t *testing.T) {
	input := strings.Join([]string{
		`{"key":"A-1","value":{"order_number":"A-1"},"metadata":{"offset":7}}`,
		``,
		`{"value":"plain text"}`,
		`{"value_base64":"AAEC","key":null}`,
	}, "\n")
	r := NewMessageReader(strings.NewReader(input))

	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "A-1", string(msg.Key))
	assert.JSONEq(t, `{"order_number":"A-1"}`, string(msg.Value))
	assert.Equal(t, float64(7), msg.Metadata["offset"])

	msg, err = r.Next()
	require.NoError(t, err)
	assert.Nil(t, msg.Key)
	assert.Equal(t, "plain text", string(msg.Value))

	msg, err = r.Next()
	require.NoError(t, err)
	assert.Nil(t, msg.Key)
	assert.Equal(t, []byte{0, 1, 2}, msg.Value)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMessageReaderInvalidLine(t *testing.T) {
	r := NewMessageReader(strings.NewReader("{\"value\":1}\n{oops\n"))
	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	require.Error(t, err)
	assert.True(t, sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig))
	var se *sinkerrors.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Details["line"])
}

func TestMessageReaderStream(t *testing.T) {
	r := NewMessageReader(strings.NewReader("{\"value\":1}\n{\"value\":2}\n"))
	out := make(chan message.Message, 4)
	require.NoError(t, r.Stream(context.Background(), out))
	close(out)

	var values []string
	for msg := range out {
		values = append(values, string(msg.Value))
	}
	assert.Equal(t, []string{"1", "2"}, values)
}

func TestMessageReaderStreamCancelled(t *testing.T) {
	r := NewMessageReader(strings.NewReader("{\"value\":1}\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Stream(ctx, make(chan message.Message))
	assert.ErrorIs(t, err, context.Canceled)
}
