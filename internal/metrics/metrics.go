// Package metrics exposes ingestion counters through Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edge"

// Message kinds and drop reasons used as label values.
const (
	KindTelemetry   = "telemetry"
	KindStatus      = "status"
	KindTimeRequest = "time_request"
	KindModbus      = "modbus"

	ReasonMalformedPayload = "malformed_payload"
	ReasonMalformedTopic   = "malformed_topic"
	ReasonUnhandledTopic   = "unhandled_topic"
	ReasonQueueFull        = "queue_full"
	ReasonPanic            = "panic"
)

// Metrics groups the collectors of one process (or one test).
type Metrics struct {
	Messages        *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	Enqueued        prometheus.Counter
	Written         prometheus.Counter
	FlushErrors     prometheus.Counter
	FlushDuration   prometheus.Histogram
	QueueDepth      prometheus.Gauge
	TimeSyncReplies *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by kind.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped before reaching the store, by reason.",
		}, []string{"reason"}),
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_enqueued_total",
			Help:      "Telemetry records handed to the persistence writer.",
		}),
		Written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Telemetry records appended to daily files.",
		}),
		FlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_errors_total",
			Help:      "Flushes that failed and dropped their batch.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writer_queue_depth",
			Help:      "Records waiting in the writer queue.",
		}),
		TimeSyncReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timesync_responses_total",
			Help:      "Time-sync responses by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.Messages,
		m.Dropped,
		m.Enqueued,
		m.Written,
		m.FlushErrors,
		m.FlushDuration,
		m.QueueDepth,
		m.TimeSyncReplies,
	)
	return m
}

// RegisterDeviceGauge exposes the live device count.
func RegisterDeviceGauge(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "devices",
		Help:      "Devices present in the live view.",
	}, func() float64 { return float64(count()) }))
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) Message(kind string) {
	if m != nil {
		m.Messages.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Drop(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RecordEnqueued(depth int) {
	if m != nil {
		m.Enqueued.Inc()
		m.QueueDepth.Set(float64(depth))
	}
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m != nil {
		m.QueueDepth.Set(float64(depth))
	}
}

// Flushed records one flush. n counts the rows that reached the OS, even when err is set.
func (m *Metrics) Flushed(n int, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(took.Seconds())
	m.Written.Add(float64(n))
	if err != nil {
		m.FlushErrors.Inc()
	}
}

func (m *Metrics) TimeSync(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.TimeSyncReplies.WithLabelValues("error").Inc()
		return
	}
	m.TimeSyncReplies.WithLabelValues("ok").Inc()
}
