// Package db is the optional SQLite index of persisted telemetry.
package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"edge-logger/internal/model"
)

// DB wraps the GORM connection.
type DB struct {
	ORM *gorm.DB
}

// Open opens the SQLite database using GORM and runs migrations.
func Open(path string) (*DB, error) {
	g, err := openORM(path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	if err := migrateORM(g); err != nil {
		_ = closeORM(g)
		return nil, fmt.Errorf("migrate index %s: %w", path, err)
	}
	return &DB{ORM: g}, nil
}

func (d *DB) Close() error { return closeORM(d.ORM) }

// InsertBatch stores records in a single transaction.
func (d *DB) InsertBatch(ctx context.Context, recs []model.TelemetryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]model.TelemetryRow, len(recs))
	for i, r := range recs {
		rows[i] = model.RowFromRecord(r)
	}
	return insertRows(ctx, d.ORM, rows)
}

// SaveBatch lets the persistence writer feed the index.
func (d *DB) SaveBatch(ctx context.Context, recs []model.TelemetryRecord) error {
	return d.InsertBatch(ctx, recs)
}

// HistoryQuery selects rows of one series. Zero From/To leave that side open;
// Limit > 0 keeps only the most recent rows.
type HistoryQuery struct {
	Device   string
	Datatype string
	From     int64 // unix ms, inclusive
	To       int64 // unix ms, inclusive
	Limit    int
}

// History returns matching records, oldest first.
func (d *DB) History(ctx context.Context, q HistoryQuery) ([]model.TelemetryRecord, error) {
	tx := d.ORM.WithContext(ctx).Model(&model.TelemetryRow{}).Where("device = ?", q.Device)
	if q.Datatype != "" {
		tx = tx.Where("datatype = ?", q.Datatype)
	}
	if q.From > 0 {
		tx = tx.Where("ts_unix_ms >= ?", q.From)
	}
	if q.To > 0 {
		tx = tx.Where("ts_unix_ms <= ?", q.To)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []model.TelemetryRow
	if err := tx.Order("ts_unix_ms DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.TelemetryRecord, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.Record()
	}
	return out, nil
}

// Latest returns the newest record per series of device, sorted by datatype.
// An empty device returns the newest record of every series.
func (d *DB) Latest(ctx context.Context, device string) ([]model.TelemetryRecord, error) {
	sub := d.ORM.Model(&model.TelemetryRow{}).
		Select("device, datatype, MAX(ts_unix_ms) AS ts").
		Group("device, datatype")
	if device != "" {
		sub = sub.Where("device = ?", device)
	}

	var rows []model.TelemetryRow
	err := d.ORM.WithContext(ctx).
		Table("telemetry AS t").
		Select("t.*").
		Joins("JOIN (?) AS l ON l.device = t.device AND l.datatype = t.datatype AND l.ts = t.ts_unix_ms", sub).
		Order("t.device, t.datatype, t.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// rows sharing a timestamp: keep the one inserted last
	out := make([]model.TelemetryRecord, 0, len(rows))
	for i, r := range rows {
		if i > 0 && rows[i-1].Device == r.Device && rows[i-1].Datatype == r.Datatype {
			continue
		}
		out = append(out, r.Record())
	}
	return out, nil
}

// Devices lists every device with at least one row.
func (d *DB) Devices(ctx context.Context) ([]string, error) {
	var out []string
	err := d.ORM.WithContext(ctx).Model(&model.TelemetryRow{}).
		Distinct("device").
		Order("device").
		Pluck("device", &out).Error
	return out, err
}

// Count returns the number of rows in the index.
func (d *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.ORM.WithContext(ctx).Model(&model.TelemetryRow{}).Count(&n).Error
	return n, err
}
