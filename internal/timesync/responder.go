// Package timesync answers device clock-sync requests.
package timesync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"edge-logger/internal/message"
	"edge-logger/internal/metrics"
)

// Publisher sends one MQTT message.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Responder publishes the server clock to a requesting device.
type Responder struct {
	Publisher Publisher
	Router    message.Router
	QoS       byte
	Clock     func() time.Time
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Respond publishes "unix_ms|<now>|req_ts=<echo>" to the device's response topic.
// The request payload is echoed only when it is a plain decimal number; otherwise
// the server time is echoed in its place.
func (r *Responder) Respond(device, payload string) error {
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	now := strconv.FormatInt(clock().UnixMilli(), 10)

	echo := strings.TrimSpace(payload)
	if !isDigits(echo) {
		echo = now
	}

	topic := r.Router.ResponseTopic(device)
	body := Response(now, echo)
	err := r.Publisher.Publish(topic, r.QoS, false, []byte(body))
	r.Metrics.TimeSync(err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	r.Logger.Debug().Str("device", device).Str("topic", topic).Str("payload", body).Msg("time response sent")
	return nil
}

// Response formats a time-sync answer.
func Response(nowMs, echo string) string {
	return "unix_ms|" + nowMs + "|req_ts=" + echo
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
