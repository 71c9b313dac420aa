package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-logger/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(offset time.Duration, device, datatype, value string) model.TelemetryRecord {
	return model.NewTelemetryRecord(base.Add(offset), device, datatype, value)
}

func TestInsertAndHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	var batch []model.TelemetryRecord
	for i := 0; i < 10; i++ {
		batch = append(batch, rec(time.Duration(i)*time.Second, "esp-01", "temp", string(rune('a'+i))))
	}
	batch = append(batch, rec(0, "esp-01", "humidity", "40"), rec(0, "esp-02", "temp", "x"))
	require.NoError(t, d.SaveBatch(ctx, batch))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	all, err := d.History(ctx, HistoryQuery{Device: "esp-01", Datatype: "temp"})
	require.NoError(t, err)
	require.Len(t, all, 10)
	assert.Equal(t, batch[0], all[0])
	assert.Equal(t, batch[9], all[9])

	last3, err := d.History(ctx, HistoryQuery{Device: "esp-01", Datatype: "temp", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, batch[7:10], last3)

	window, err := d.History(ctx, HistoryQuery{
		Device:   "esp-01",
		Datatype: "temp",
		From:     base.Add(2 * time.Second).UnixMilli(),
		To:       base.Add(4 * time.Second).UnixMilli(),
	})
	require.NoError(t, err)
	assert.Equal(t, batch[2:5], window)

	both, err := d.History(ctx, HistoryQuery{Device: "esp-01"})
	require.NoError(t, err)
	assert.Len(t, both, 11)
}

func TestLatestAndDevices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDB(t)

	require.NoError(t, d.InsertBatch(ctx, []model.TelemetryRecord{
		rec(0, "b", "temp", "1"),
		rec(time.Second, "b", "temp", "2"),
		rec(time.Second, "b", "temp", "2-later"),
		rec(0, "b", "humidity", "50"),
		rec(0, "a", "temp", "9"),
	}))

	latest, err := d.Latest(ctx, "b")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "humidity", latest[0].Datatype)
	assert.Equal(t, "temp", latest[1].Datatype)
	assert.Equal(t, "2-later", latest[1].Value)

	every, err := d.Latest(ctx, "")
	require.NoError(t, err)
	assert.Len(t, every, 3)
	assert.Equal(t, "a", every[0].Device)

	devices, err := d.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, devices)
}

func TestInsertEmptyBatch(t *testing.T) {
	t.Parallel()
	d := newTestDB(t)
	require.NoError(t, d.InsertBatch(context.Background(), nil))

	devices, err := d.Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}
