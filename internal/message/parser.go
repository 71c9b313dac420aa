// Package message turns raw MQTT deliveries into typed ingest events.
package message

import "strings"

// Reading is a parsed telemetry payload.
type Reading struct {
	Device   string
	Datatype string
	Value    string
}

// ParsePayload splits "device|datatype|value" on the first two pipes.
// The value may contain further pipes and may be empty; device and datatype may not.
func ParsePayload(payload string) (Reading, bool) {
	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 {
		return Reading{}, false
	}
	r := Reading{
		Device:   strings.TrimSpace(parts[0]),
		Datatype: strings.TrimSpace(parts[1]),
		Value:    strings.TrimSpace(parts[2]),
	}
	if r.Device == "" || r.Datatype == "" {
		return Reading{}, false
	}
	return r, true
}
