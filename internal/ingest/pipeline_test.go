package ingest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-logger/internal/message"
	"edge-logger/internal/metrics"
	"edge-logger/internal/model"
	"edge-logger/internal/state"
	"edge-logger/internal/storage"
)

type fakeWriter struct {
	mu    sync.Mutex
	recs  []model.TelemetryRecord
	err   error
	panic bool
}

func (f *fakeWriter) Enqueue(r model.TelemetryRecord) error {
	if f.panic {
		panic("disk on fire")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, r)
	return nil
}

type fakeResponder struct {
	calls [][2]string
	err   error
}

func (f *fakeResponder) Respond(device, payload string) error {
	f.calls = append(f.calls, [2]string{device, payload})
	return f.err
}

var now = time.Date(2024, 5, 6, 7, 8, 9, 10_000_000, time.UTC)

func newPipeline(t *testing.T, w Enqueuer, opts ...Option) (*Pipeline, *state.Store, *metrics.Metrics) {
	t.Helper()
	store := state.NewStore(10)
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{WithClock(func() time.Time { return now }), WithMetrics(m)}, opts...)
	return New(message.Router{Base: "v1"}, store, w, zerolog.Nop(), opts...), store, m
}

func TestTelemetryUpdatesStoreAndWriter(t *testing.T) {
	w := &fakeWriter{}
	p, store, m := newPipeline(t, w)

	p.HandleMessage("v1/telemetry/ignored/ignored", []byte(" esp-01 | temp | 21.5 "))

	require.Len(t, w.recs, 1)
	assert.Equal(t, model.TelemetryRecord{
		TsISO:    "2024-05-06T07:08:09.010Z",
		TsUnixMs: now.UnixMilli(),
		Device:   "esp-01",
		Datatype: "temp",
		Value:    "21.5",
	}, w.recs[0])

	detail, ok := store.SnapshotDevice("esp-01")
	require.True(t, ok)
	assert.Equal(t, model.DefaultStatus, detail.Status)
	assert.Equal(t, model.LatestValue{Value: "21.5", TsUnixMs: now.UnixMilli()}, detail.Latest["temp"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues(metrics.KindTelemetry)))
}

func TestStatusUpdatesStoreOnly(t *testing.T) {
	w := &fakeWriter{}
	p, store, _ := newPipeline(t, w)

	p.HandleMessage("v1/status/esp-02", []byte(" online "))
	p.HandleMessage("v1/status/esp-03", nil)

	assert.Empty(t, w.recs)
	st := store.Statuses()
	assert.Equal(t, model.DeviceStatus{Status: "online", LastSeenUnixMs: now.UnixMilli()}, st["esp-02"])
	assert.Equal(t, model.DefaultStatus, st["esp-03"].Status)
}

func TestTimeRequestCallsResponder(t *testing.T) {
	resp := &fakeResponder{err: errors.New("offline")}
	p, store, _ := newPipeline(t, &fakeWriter{}, WithResponder(resp))

	p.HandleMessage("v1/time/request/esp-01", []byte("999"))

	assert.Equal(t, [][2]string{{"esp-01", "999"}}, resp.calls)
	assert.Equal(t, 0, store.Len())
}

func TestDroppedMessages(t *testing.T) {
	tests := []struct {
		topic, payload, reason string
	}{
		{"v1/telemetry/a/b", "only|two", metrics.ReasonMalformedPayload},
		{"v1/telemetry/a/b", "|temp|1", metrics.ReasonMalformedPayload},
		{"v1/status/", "online", metrics.ReasonMalformedTopic},
		{"v2/status/x", "online", metrics.ReasonUnhandledTopic},
		{"v1/other/x", "x", metrics.ReasonUnhandledTopic},
	}
	for _, tt := range tests {
		t.Run(tt.topic+" "+tt.payload, func(t *testing.T) {
			w := &fakeWriter{}
			p, store, m := newPipeline(t, w)
			p.HandleMessage(tt.topic, []byte(tt.payload))

			assert.Empty(t, w.recs)
			assert.Equal(t, 0, store.Len())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues(tt.reason)))
		})
	}
}

func TestEnqueueFailureKeepsLiveView(t *testing.T) {
	p, store, m := newPipeline(t, &fakeWriter{err: storage.ErrQueueFull})

	p.HandleMessage("v1/telemetry/a/b", []byte("dev|temp|1"))

	assert.Equal(t, "1", store.Latest()["dev"]["temp"].Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues(metrics.ReasonQueueFull)))
}

func TestHandlerRecoversPanic(t *testing.T) {
	p, store, m := newPipeline(t, &fakeWriter{panic: true})

	assert.NotPanics(t, func() {
		p.HandleMessage("v1/telemetry/a/b", []byte("dev|temp|1"))
	})
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues(metrics.ReasonPanic)))
}

func TestIngestReading(t *testing.T) {
	w := &fakeWriter{}
	p, store, m := newPipeline(t, w)

	p.IngestReading("plc-1", "pressure", "3.25")

	require.Len(t, w.recs, 1)
	assert.Equal(t, "plc-1", w.recs[0].Device)
	assert.Equal(t, "3.25", store.Latest()["plc-1"]["pressure"].Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues(metrics.KindModbus)))
}

func TestConcurrentDeliveries(t *testing.T) {
	w := &fakeWriter{}
	p, store, _ := newPipeline(t, w)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.HandleMessage("v1/telemetry/x/y", []byte("dev|temp|1"))
				p.HandleMessage("v1/status/dev", []byte("online"))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, w.recs, 400)
	assert.Equal(t, "online", store.Statuses()["dev"].Status)
}
