package telemetrydb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	dbpkg "edge-logger/internal/db"
	"edge-logger/internal/model"
	"edge-logger/pkg/telemetrydb"
)

// seed writes records through the internal index, then reopens it with the public client.
func seed(t *testing.T, recs []model.TelemetryRecord) *telemetrydb.Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")

	d, err := dbpkg.Open(path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	if err := d.InsertBatch(context.Background(), recs); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close index: %v", err)
	}

	client, err := telemetrydb.Open(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestHistoryAndLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	client := seed(t, []model.TelemetryRecord{
		model.NewTelemetryRecord(start, "esp-01", "temp", "20.0"),
		model.NewTelemetryRecord(start.Add(time.Minute), "esp-01", "temp", "20.5"),
		model.NewTelemetryRecord(start.Add(2*time.Minute), "esp-01", "temp", "21.0"),
		model.NewTelemetryRecord(start, "esp-01", "humidity", "40"),
		model.NewTelemetryRecord(start, "esp-02", "temp", "18"),
	})

	hist, err := client.History(ctx, "esp-01", "temp", telemetrydb.Range{From: start.Add(time.Minute)})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(hist))
	}
	if hist[0].Value != "20.5" || hist[1].Value != "21.0" {
		t.Fatalf("unexpected history order: %+v", hist)
	}
	if !hist[1].Timestamp.Equal(start.Add(2 * time.Minute)) {
		t.Fatalf("expected timestamp %v, got %v", start.Add(2*time.Minute), hist[1].Timestamp)
	}

	limited, err := client.History(ctx, "esp-01", "temp", telemetrydb.Range{Limit: 1})
	if err != nil {
		t.Fatalf("History with limit failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Value != "21.0" {
		t.Fatalf("expected only the newest reading, got %+v", limited)
	}

	latest, err := client.Latest(ctx, "esp-01")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 series, got %d", len(latest))
	}
	if latest[1].Datatype != "temp" || latest[1].Value != "21.0" {
		t.Fatalf("unexpected latest temp: %+v", latest[1])
	}

	devices, err := client.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 2 || devices[0] != "esp-01" || devices[1] != "esp-02" {
		t.Fatalf("unexpected devices: %v", devices)
	}

	n, err := client.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 rows, got %d", n)
	}
}

func TestOpenEmptyIndex(t *testing.T) {
	t.Parallel()
	client := seed(t, nil)

	latest, err := client.Latest(context.Background(), "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(latest) != 0 {
		t.Fatalf("expected no readings, got %d", len(latest))
	}
}
