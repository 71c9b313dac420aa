package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterClassify(t *testing.T) {
	t.Parallel()
	r := Router{Base: "v1"}

	tests := []struct {
		name    string
		topic   string
		payload string
		want    Event
		wantErr error
	}{
		{
			name:    "telemetry",
			topic:   "v1/telemetry/esp-01/temp",
			payload: "esp-01|temp|21.5",
			want:    Telemetry{Reading: Reading{"esp-01", "temp", "21.5"}},
		},
		{
			name:    "telemetry identity comes from payload",
			topic:   "v1/telemetry/other/metric",
			payload: "esp-02|humidity|40",
			want:    Telemetry{Reading: Reading{"esp-02", "humidity", "40"}},
		},
		{
			name:    "telemetry malformed",
			topic:   "v1/telemetry/esp-01/temp",
			payload: "bad",
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "status",
			topic:   "v1/status/esp-01",
			payload: " online \n",
			want:    Status{Device: "esp-01", Status: "online"},
		},
		{
			name:    "status empty payload",
			topic:   "v1/status/esp-01",
			payload: "   ",
			want:    Status{Device: "esp-01", Status: "unknown"},
		},
		{
			name:    "status without device",
			topic:   "v1/status/",
			payload: "online",
			wantErr: ErrMalformedTopic,
		},
		{
			name:    "time request",
			topic:   "v1/time/request/esp-03",
			payload: "12345",
			want:    TimeRequest{Device: "esp-03", Payload: "12345"},
		},
		{
			name:    "time response is not inbound",
			topic:   "v1/time/response/esp-03",
			payload: "x",
			wantErr: ErrUnhandledTopic,
		},
		{
			name:    "other base",
			topic:   "v2/status/esp-01",
			payload: "online",
			wantErr: ErrUnhandledTopic,
		},
		{
			name:    "no slash",
			topic:   "v1",
			wantErr: ErrUnhandledTopic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Classify(tt.topic, []byte(tt.payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouterDropsInvalidUTF8(t *testing.T) {
	t.Parallel()
	r := Router{Base: "v1"}

	got, err := r.Classify("v1/telemetry/d/t", []byte("dev|temp|2\xff1"))
	require.NoError(t, err)
	assert.Equal(t, Telemetry{Reading: Reading{"dev", "temp", "21"}}, got)
}

func TestRouterTopics(t *testing.T) {
	t.Parallel()
	r := Router{Base: "plant/a"}

	assert.Equal(t, []string{
		"plant/a/telemetry/+/+",
		"plant/a/status/+",
		"plant/a/time/request/+",
	}, r.Filters())
	assert.Equal(t, "plant/a/time/response/esp-01", r.ResponseTopic("esp-01"))
}
