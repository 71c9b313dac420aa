package model

import "time"

// ISOLayout is the server timestamp layout written to the daily CSV files.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout names a daily telemetry file (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// TelemetryRecord is one server-stamped reading.
// Both timestamps derive from the same instant and are never recomputed.
type TelemetryRecord struct {
	TsISO    string `json:"ts_server_iso"`
	TsUnixMs int64  `json:"ts_server_unix_ms"`
	Device   string `json:"device"`
	Datatype string `json:"datatype"`
	Value    string `json:"value"`
}

// NewTelemetryRecord stamps a reading with now (converted to UTC).
func NewTelemetryRecord(now time.Time, device, datatype, value string) TelemetryRecord {
	now = now.UTC()
	return TelemetryRecord{
		TsISO:    now.Format(ISOLayout),
		TsUnixMs: now.UnixMilli(),
		Device:   device,
		Datatype: datatype,
		Value:    value,
	}
}

// Date returns the UTC calendar day of the record, e.g. "2024-01-31".
func (r TelemetryRecord) Date() string {
	return time.UnixMilli(r.TsUnixMs).UTC().Format(DateLayout)
}

// CSVHeader is the first row of every daily telemetry file.
var CSVHeader = []string{"ts_server_iso", "ts_server_unix_ms", "device", "datatype", "value"}
