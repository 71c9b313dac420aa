// Package telemetrydb is a read API over the telemetry index for tools outside
// this module.
package telemetrydb

import (
	"context"
	"time"

	dbpkg "edge-logger/internal/db"
	"edge-logger/internal/model"
)

// Client exposes a stable API for third-party packages to access the index.
type Client struct{ db *dbpkg.DB }

// Open opens the SQLite index (runs migrations) and returns a client.
func Open(path string) (*Client, error) {
	d, err := dbpkg.Open(path)
	if err != nil {
		return nil, err
	}
	return &Client{db: d}, nil
}

// Close closes the underlying DB.
func (c *Client) Close() error { return c.db.Close() }

// Reading is one persisted telemetry value.
type Reading struct {
	Device    string    `json:"device"`
	Datatype  string    `json:"datatype"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func fromRecord(r model.TelemetryRecord) Reading {
	return Reading{
		Device:    r.Device,
		Datatype:  r.Datatype,
		Value:     r.Value,
		Timestamp: time.UnixMilli(r.TsUnixMs).UTC(),
	}
}

func fromRecords(recs []model.TelemetryRecord) []Reading {
	out := make([]Reading, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out
}

// Range bounds a History call. Zero times leave that side open; Limit <= 0 means all.
type Range struct {
	From  time.Time
	To    time.Time
	Limit int
}

// History returns readings of one series, oldest first. An empty datatype
// matches every series of the device.
func (c *Client) History(ctx context.Context, device, datatype string, r Range) ([]Reading, error) {
	q := dbpkg.HistoryQuery{Device: device, Datatype: datatype, Limit: r.Limit}
	if !r.From.IsZero() {
		q.From = r.From.UnixMilli()
	}
	if !r.To.IsZero() {
		q.To = r.To.UnixMilli()
	}
	recs, err := c.db.History(ctx, q)
	if err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

// Latest returns the newest reading of each series of device, or of every
// device when device is empty.
func (c *Client) Latest(ctx context.Context, device string) ([]Reading, error) {
	recs, err := c.db.Latest(ctx, device)
	if err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

// Devices lists the devices present in the index.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	return c.db.Devices(ctx)
}

// Count returns the number of persisted readings.
func (c *Client) Count(ctx context.Context) (int64, error) {
	return c.db.Count(ctx)
}
