package json

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Zero(t, again.Len())
	PutBuffer(again)
	PutBuffer(nil)
}

func TestLineEncoder(t *testing.T) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := NewLineEncoder(buf)
	require.NoError(t, enc.Encode(map[string]interface{}{"url": "https://a.example/?x=1&y=<2>"}))
	require.NoError(t, enc.Encode([]int{1, 2}))
	assert.Equal(t, 2, enc.Lines())

	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, []string{`{"url":"https://a.example/?x=1&y=<2>"}`, `[1,2]`}, lines)
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, 1, out["a"])
}
