// Package metrics provides instrumentation for depot sinks using Prometheus.
//
// Components do not talk to Prometheus directly. They receive an
// Instrumentation and report named events tagged with Tags:
//
//	start := time.Now()
//	err := client.CreateTable(ctx, id, spec)
//	inst.IncrementCounter(metrics.BigQueryOperationTotal, tags)
//	inst.CaptureDuration(metrics.BigQueryOperationLatency, start, tags)
//
// # Labels
//
// Prometheus needs a fixed label set, so tags are projected onto LabelKeys.
// Tags with any other key are dropped and missing keys are reported empty.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// Event names reported by depot components.
const (
	BigQueryOperationTotal   = "bigquery_operation_total"
	BigQueryOperationLatency = "bigquery_operation_latency"
	BigQueryRetryTotal       = "bigquery_retry_total"
	RedisWriteTotal          = "redis_write_total"
	RedisTTLTotal            = "redis_ttl_total"
	RedisWriteLatency        = "redis_write_latency"
	SinkMessagesTotal        = "sink_messages_total"
	SinkPushLatency          = "sink_push_latency"
	DLQWriteTotal            = "dlq_write_total"
)

// Tag keys understood by the Prometheus exporter.
const (
	TagAPI     = "api"
	TagDataset = "dataset"
	TagTable   = "table"
	TagKind    = "kind"
	TagStatus  = "status"
)

// LabelKeys is the label set every depot metric carries, after "event".
var LabelKeys = []string{TagAPI, TagDataset, TagTable, TagKind, TagStatus}

// Tags annotate a metric event.
type Tags map[string]string

// Instrumentation receives metric events from sinks.
type Instrumentation interface {
	IncrementCounter(event string, tags Tags)
	AddCounter(event string, n int, tags Tags)
	CaptureDuration(event string, start time.Time, tags Tags)
	CaptureNonFatalError(event string, err error, tags Tags)
}

// PrometheusInstrumentation exports events as Prometheus collectors.
type PrometheusInstrumentation struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

// NewPrometheusInstrumentation registers depot collectors on reg. A nil reg
// uses prometheus.DefaultRegisterer.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	inst := metrics.NewPrometheusInstrumentation(reg, "depot")
func NewPrometheusInstrumentation(reg prometheus.Registerer, namespace string) *PrometheusInstrumentation {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := append([]string{"event"}, LabelKeys...)
	errorLabels := append(append([]string{"event"}, LabelKeys...), "error_type")

	return &PrometheusInstrumentation{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_events_total",
				Help:      "Total number of sink events by name",
			},
			labels,
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_latency_seconds",
				Help:      "Latency of sink backend calls in seconds",
				Buckets: []float64{
					0.001, // 1ms - pipelined key-value writes
					0.01,
					0.1,
					0.5,
					1,
					5,
					10,
					30, // 30s - rate limited schema updates
				},
			},
			labels,
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Total number of non-fatal sink errors",
			},
			errorLabels,
		),
	}
}

// IncrementCounter adds one to the event counter.
func (p *PrometheusInstrumentation) IncrementCounter(event string, tags Tags) {
	p.events.WithLabelValues(labelValues(event, tags)...).Inc()
}

// AddCounter adds n to the event counter.
func (p *PrometheusInstrumentation) AddCounter(event string, n int, tags Tags) {
	if n <= 0 {
		return
	}
	p.events.WithLabelValues(labelValues(event, tags)...).Add(float64(n))
}

// CaptureDuration observes the time elapsed since start.
func (p *PrometheusInstrumentation) CaptureDuration(event string, start time.Time, tags Tags) {
	p.latency.WithLabelValues(labelValues(event, tags)...).Observe(time.Since(start).Seconds())
}

// CaptureNonFatalError counts an error that did not stop the sink.
func (p *PrometheusInstrumentation) CaptureNonFatalError(event string, err error, tags Tags) {
	values := append(labelValues(event, tags), string(sinkerrors.TypeOf(err)))
	p.errors.WithLabelValues(values...).Inc()
}

func labelValues(event string, tags Tags) []string {
	values := make([]string, 0, len(LabelKeys)+1)
	values = append(values, event)
	for _, k := range LabelKeys {
		values = append(values, tags[k])
	}
	return values
}

// NoopInstrumentation discards every event.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementCounter(string, Tags) {}
func (NoopInstrumentation) AddCounter(string, int, Tags) {}
func (NoopInstrumentation) CaptureDuration(string, time.Time, Tags) {}
func (NoopInstrumentation) CaptureNonFatalError(string, error, Tags) {}

// Recorder keeps events in memory. It is safe for concurrent use and is
// meant for tests and the CLI summary.
type Recorder struct {
	mu        sync.Mutex
	counters  map[string]int
	durations map[string]int
	errs      map[string][]error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters:  make(map[string]int),
		durations: make(map[string]int),
		errs:      make(map[string][]error),
	}
}

func (r *Recorder) IncrementCounter(event string, tags Tags) {
	r.AddCounter(event, 1, tags)
}

func (r *Recorder) AddCounter(event string, n int, tags Tags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[event] += n
	r.counters[Key(event, tags)] += n
}

func (r *Recorder) CaptureDuration(event string, _ time.Time, tags Tags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[event]++
	r.durations[Key(event, tags)]++
}

func (r *Recorder) CaptureNonFatalError(event string, err error, tags Tags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[event] = append(r.errs[event], err)
}

// Count returns the counter total for an event name or a Key.
func (r *Recorder) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

// Durations returns how many latencies were captured for an event name or a Key.
func (r *Recorder) Durations(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durations[key]
}

// Errors returns the non-fatal errors captured for event.
func (r *Recorder) Errors(event string) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs[event]...)
}

// Key renders an event and its tags as "event{k=v,...}" with sorted keys.
func Key(event string, tags Tags) string {
	if len(tags) == 0 {
		return event
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := event + "{"
	for i, k := range keys {
		if i > 0 {
			s += ","
		}
		s += k + "=" + tags[k]
	}
	return s + "}"
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Start returns when the timer was created.
func (t *Timer) Start() time.Time {
	return t.start
}

// Stop returns the time elapsed since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
