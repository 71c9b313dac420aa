package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"edge-logger/internal/model"
)

var (
	// ErrDayNotFound is returned when no file exists for the requested date.
	ErrDayNotFound = errors.New("no telemetry file for date")
	// ErrInvalidDate is returned for date keys that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)

// DayFileName returns the file name used for date.
func DayFileName(date string) string { return date + ".csv" }

// DayFilePath resolves the daily file for date under dir.
func DayFilePath(dir, date string) (string, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	path := filepath.Join(dir, DayFileName(date))
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrDayNotFound, date)
	}
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDayNotFound, date)
	}
	return path, nil
}

// dayFile is the single open output of the writer, keyed by UTC date.
type dayFile struct {
	dir  string
	date string
	f    *os.File
	w    *csv.Writer
}

// use makes date the open file, closing the previous one.
func (d *dayFile) use(date string) error {
	if d.f != nil && d.date == date {
		return nil
	}
	if err := d.close(); err != nil {
		return fmt.Errorf("close %s: %w", DayFileName(d.date), err)
	}

	path := filepath.Join(d.dir, DayFileName(date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if off, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return fmt.Errorf("seek %s: %w", path, err)
	} else if off == 0 {
		if err := w.Write(model.CSVHeader); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}

	d.f, d.w, d.date = f, w, date
	return nil
}

func (d *dayFile) write(r model.TelemetryRecord) error {
	return d.w.Write([]string{
		r.TsISO,
		strconv.FormatInt(r.TsUnixMs, 10),
		r.Device,
		r.Datatype,
		r.Value,
	})
}

// flush hands buffered rows to the OS. No fsync.
func (d *dayFile) flush() error {
	if d.w == nil {
		return nil
	}
	d.w.Flush()
	return d.w.Error()
}

func (d *dayFile) close() error {
	if d.f == nil {
		return nil
	}
	err := d.flush()
	if cerr := d.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	d.f, d.w, d.date = nil, nil, ""
	return err
}
