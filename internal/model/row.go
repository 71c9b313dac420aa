package model

// TelemetryRow is a persisted reading in the telemetry index.
// Table: telemetry
type TelemetryRow struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Device   string `gorm:"column:device;index:idx_telemetry_lookup,priority:1"`
	Datatype string `gorm:"column:datatype;index:idx_telemetry_lookup,priority:2"`
	Value    string `gorm:"column:value"`
	TsUnixMs int64  `gorm:"column:ts_unix_ms;index:idx_telemetry_lookup,priority:3"`
	TsISO    string `gorm:"column:ts_iso"`
}

func (TelemetryRow) TableName() string { return "telemetry" }

// RowFromRecord converts a record into its index row.
func RowFromRecord(r TelemetryRecord) TelemetryRow {
	return TelemetryRow{
		Device:   r.Device,
		Datatype: r.Datatype,
		Value:    r.Value,
		TsUnixMs: r.TsUnixMs,
		TsISO:    r.TsISO,
	}
}

// Record converts an index row back into a record.
func (r TelemetryRow) Record() TelemetryRecord {
	return TelemetryRecord{
		TsISO:    r.TsISO,
		TsUnixMs: r.TsUnixMs,
		Device:   r.Device,
		Datatype: r.Datatype,
		Value:    r.Value,
	}
}
