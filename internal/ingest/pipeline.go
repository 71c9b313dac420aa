// Package ingest routes inbound messages into the live view, the persistence
// writer and the time-sync responder.
package ingest

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"edge-logger/internal/message"
	"edge-logger/internal/metrics"
	"edge-logger/internal/model"
	"edge-logger/internal/state"
	"edge-logger/internal/storage"
)

// Enqueuer accepts records for persistence.
type Enqueuer interface {
	Enqueue(model.TelemetryRecord) error
}

// TimeResponder answers a time-sync request.
type TimeResponder interface {
	Respond(device, payload string) error
}

// Pipeline is safe for concurrent use by many delivery goroutines.
type Pipeline struct {
	router    message.Router
	store     *state.Store
	writer    Enqueuer
	responder TimeResponder
	clock     func() time.Time
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now as the source of server timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithMetrics attaches message counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithResponder enables answers to time requests. Without one they are dropped.
func WithResponder(r TimeResponder) Option {
	return func(p *Pipeline) { p.responder = r }
}

// New builds a pipeline that routes messages into store and writer.
func New(router message.Router, store *state.Store, writer Enqueuer, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		router: router,
		store:  store,
		writer: writer,
		clock:  time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleMessage processes one delivery. It never panics and never blocks on disk.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.Drop(metrics.ReasonPanic)
			p.log.Error().Interface("panic", r).Str("topic", topic).Msg("message handler panicked")
		}
	}()

	ev, err := p.router.Classify(topic, payload)
	switch {
	case errors.Is(err, message.ErrUnhandledTopic):
		p.metrics.Drop(metrics.ReasonUnhandledTopic)
		p.log.Debug().Str("topic", topic).Msg("ignoring topic")
		return
	case errors.Is(err, message.ErrMalformedTopic):
		p.metrics.Drop(metrics.ReasonMalformedTopic)
		p.log.Warn().Str("topic", topic).Msg("bad topic")
		return
	case errors.Is(err, message.ErrMalformedPayload):
		p.metrics.Drop(metrics.ReasonMalformedPayload)
		p.log.Warn().Str("topic", topic).Bytes("payload", payload).Msg("bad telemetry payload")
		return
	case err != nil:
		p.log.Warn().Err(err).Str("topic", topic).Msg("unclassified message")
		return
	}

	switch e := ev.(type) {
	case message.Telemetry:
		p.metrics.Message(metrics.KindTelemetry)
		p.record(e.Device, e.Datatype, e.Value)
	case message.Status:
		p.metrics.Message(metrics.KindStatus)
		p.store.UpdateStatus(e.Device, e.Status, p.clock().UnixMilli())
	case message.TimeRequest:
		p.metrics.Message(metrics.KindTimeRequest)
		if p.responder == nil {
			return
		}
		if err := p.responder.Respond(e.Device, e.Payload); err != nil {
			p.log.Error().Err(err).Str("device", e.Device).Msg("time response failed")
		}
	}
}

// IngestReading feeds a reading from a non-MQTT source through the telemetry path.
func (p *Pipeline) IngestReading(device, metric, value string) {
	p.metrics.Message(metrics.KindModbus)
	p.record(device, metric, value)
}

func (p *Pipeline) record(device, metric, value string) {
	rec := model.NewTelemetryRecord(p.clock(), device, metric, value)
	p.store.UpdateTelemetry(rec.Device, rec.Datatype, rec.Value, rec.TsUnixMs)

	if err := p.writer.Enqueue(rec); err != nil {
		if errors.Is(err, storage.ErrQueueFull) {
			p.metrics.Drop(metrics.ReasonQueueFull)
		}
		p.log.Error().Err(err).Str("device", device).Str("datatype", metric).Msg("telemetry not queued for disk")
	}
}
