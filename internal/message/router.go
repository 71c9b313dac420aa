package message

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"edge-logger/internal/model"
)

var (
	// ErrMalformedPayload is returned for telemetry payloads that do not parse.
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	// ErrMalformedTopic is returned when a known topic lacks its device segment.
	ErrMalformedTopic = errors.New("malformed topic")
	// ErrUnhandledTopic is returned for topics outside the three subscriptions.
	ErrUnhandledTopic = errors.New("unhandled topic")
)

// Event is one of Telemetry, Status or TimeRequest.
type Event interface {
	event()
}

// Telemetry carries a parsed reading.
type Telemetry struct {
	Reading
}

// Status carries a device status update.
type Status struct {
	Device string
	Status string
}

// TimeRequest carries a clock-sync request.
type TimeRequest struct {
	Device  string
	Payload string
}

func (Telemetry) event()   {}
func (Status) event()      {}
func (TimeRequest) event() {}

// Router classifies topics under a fixed base prefix.
// It holds no mutable state and is safe for concurrent use.
type Router struct {
	Base string
}

func (r Router) telemetryPrefix() string { return r.Base + "/telemetry/" }
func (r Router) statusPrefix() string    { return r.Base + "/status/" }
func (r Router) requestPrefix() string   { return r.Base + "/time/request/" }

// Filters returns the subscription filters for all inbound kinds.
func (r Router) Filters() []string {
	return []string{
		r.Base + "/telemetry/+/+",
		r.Base + "/status/+",
		r.Base + "/time/request/+",
	}
}

// ResponseTopic is where the time-sync answer for device is published.
func (r Router) ResponseTopic(device string) string {
	return r.Base + "/time/response/" + device
}

// Classify maps a delivery to its event.
func (r Router) Classify(topic string, payload []byte) (Event, error) {
	text := decode(payload)

	switch {
	case strings.HasPrefix(topic, r.telemetryPrefix()):
		reading, ok := ParsePayload(text)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPayload, text)
		}
		return Telemetry{Reading: reading}, nil

	case strings.HasPrefix(topic, r.statusPrefix()):
		device := lastSegment(topic)
		if device == "" {
			return nil, fmt.Errorf("%w: %s", ErrMalformedTopic, topic)
		}
		status := strings.TrimSpace(text)
		if status == "" {
			status = model.DefaultStatus
		}
		return Status{Device: device, Status: status}, nil

	case strings.HasPrefix(topic, r.requestPrefix()):
		device := lastSegment(topic)
		if device == "" {
			return nil, fmt.Errorf("%w: %s", ErrMalformedTopic, topic)
		}
		return TimeRequest{Device: device, Payload: text}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnhandledTopic, topic)
}

func lastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// decode drops invalid UTF-8 sequences.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "")
}
