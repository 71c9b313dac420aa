package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Message(KindTelemetry)
	m.Message(KindTelemetry)
	m.Drop(ReasonMalformedPayload)
	m.RecordEnqueued(3)
	m.Flushed(5, time.Millisecond, nil)
	m.Flushed(1, time.Millisecond, errors.New("disk full"))
	m.TimeSync(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues(KindTelemetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues(ReasonMalformedPayload)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Written))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TimeSyncReplies.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Message(KindStatus)
		m.Drop(ReasonPanic)
		m.RecordEnqueued(1)
		m.SetQueueDepth(0)
		m.Flushed(1, 0, nil)
		m.TimeSync(nil)
	})
}

func TestDeviceGauge(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	RegisterDeviceGauge(reg, func() int { return 7 })

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "edge_devices", families[0].GetName())
	assert.Equal(t, 7.0, families[0].GetMetric()[0].GetGauge().GetValue())
}
