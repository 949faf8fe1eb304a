package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/depot/pkg/message"
	"github.com/ajitpratap0/depot/pkg/sink"
	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

type recordingPusher struct {
	mu      sync.Mutex
	batches [][]message.Message
	respond func(batch []message.Message) (*sink.Response, error)
}

func (p *recordingPusher) Push(_ context.Context, batch []message.Message) (*sink.Response, error) {
	p.mu.Lock()
	p.batches = append(p.batches, batch)
	p.mu.Unlock()
	if p.respond != nil {
		return p.respond(batch)
	}
	return &sink.Response{Errors: map[int]*sink.ErrorInfo{}}, nil
}

func (p *recordingPusher) sizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.batches))
	for i, b := range p.batches {
		out[i] = len(b)
	}
	return out
}

func lines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(`{"value":{"n":1}}` + "\n")
	}
	return b.String()
}

func TestPipelineBatchesBySize(t *testing.T) {
	pusher := &recordingPusher{}
	p := New(pusher, Config{BatchSize: 3, FlushInterval: time.Hour}, zaptest.NewLogger(t))

	stats, err := p.Run(context.Background(), NewMessageReader(strings.NewReader(lines(7))))
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, pusher.sizes())
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 7, stats.Messages)
	assert.Zero(t, stats.Failed)
}

func TestPipelineCountsFailures(t *testing.T) {
	pusher := &recordingPusher{respond: func(batch []message.Message) (*sink.Response, error) {
		return &sink.Response{
			Errors:       map[int]*sink.ErrorInfo{0: {Kind: sink.ErrorKindDeserialization, Err: errors.New("bad")}},
			DeadLettered: []int{0},
		}, nil
	}}
	p := New(pusher, Config{BatchSize: 2}, nil)

	stats, err := p.Run(context.Background(), NewMessageReader(strings.NewReader(lines(4))))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 2, stats.DeadLettered)
	assert.Equal(t, stats, p.Stats())
}

func TestPipelineStopsOnFatalError(t *testing.T) {
	fatal := sinkerrors.New(sinkerrors.ErrorTypeSchemaMapping, "No type mapping found for field: ts")
	pusher := &recordingPusher{respond: func([]message.Message) (*sink.Response, error) {
		return nil, fatal
	}}
	p := New(pusher, Config{BatchSize: 1}, nil)

	stats, err := p.Run(context.Background(), NewMessageReader(strings.NewReader(lines(50))))
	require.ErrorIs(t, err, fatal)
	assert.Len(t, pusher.sizes(), 1)
	assert.Zero(t, stats.Batches)
}

type slowSource struct {
	msgs []message.Message
	wait time.Duration
}

func (s slowSource) Stream(ctx context.Context, out chan<- message.Message) error {
	for _, m := range s.msgs {
		out <- m
	}
	select {
	case <-time.After(s.wait):
	case <-ctx.Done():
	}
	return nil
}

func TestPipelineFlushesOnInterval(t *testing.T) {
	pusher := &recordingPusher{}
	p := New(pusher, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, nil)

	src := slowSource{msgs: []message.Message{{Value: []byte("{}")}, {Value: []byte("{}")}}, wait: 200 * time.Millisecond}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run(context.Background(), src)
	}()

	require.Eventually(t, func() bool {
		return len(pusher.sizes()) == 1
	}, 150*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []int{2}, pusher.sizes())
	<-done
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(&recordingPusher{}, Config{}, nil)
	assert.Equal(t, DefaultConfig(), p.config)
}
