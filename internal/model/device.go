package model

// DefaultStatus is reported for devices that have not published a status yet.
const DefaultStatus = "unknown"

// LatestValue is the most recent value of one metric of one device.
type LatestValue struct {
	Value    string `json:"value"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}

// HistoryPoint is one retained (timestamp, value) pair.
type HistoryPoint struct {
	TsUnixMs int64  `json:"ts_unix_ms"`
	Value    string `json:"value"`
}

// DeviceStatus mirrors a device entry of the live view.
type DeviceStatus struct {
	Status         string `json:"status"`
	LastSeenUnixMs int64  `json:"last_seen_unix_ms"`
}

// DeviceSummary is a point-in-time copy of one device.
type DeviceSummary struct {
	Device         string                 `json:"device"`
	Status         string                 `json:"status"`
	LastSeenUnixMs int64                  `json:"last_seen_unix_ms"`
	Latest         map[string]LatestValue `json:"latest"`
}

// DeviceDetail extends DeviceSummary with per-metric history, oldest first.
type DeviceDetail struct {
	DeviceSummary
	History map[string][]HistoryPoint `json:"history"`
}
