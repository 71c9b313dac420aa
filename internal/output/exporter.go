// Package output writes telemetry records to CSV or JSON files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"edge-logger/internal/model"
)

// WriteJSON writes records to a JSON file with pretty formatting.
func WriteJSON(path string, recs []model.TelemetryRecord) error {
	return toFile(path, recs, EncodeJSON)
}

// WriteCSV writes records to a CSV file with the daily-file header.
func WriteCSV(path string, recs []model.TelemetryRecord) error {
	return toFile(path, recs, EncodeCSV)
}

// EncodeJSON writes records as an indented JSON array.
func EncodeJSON(w io.Writer, recs []model.TelemetryRecord) error {
	if recs == nil {
		recs = []model.TelemetryRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// EncodeCSV writes records in the same column layout as the daily files.
func EncodeCSV(w io.Writer, recs []model.TelemetryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range recs {
		row := []string{r.TsISO, strconv.FormatInt(r.TsUnixMs, 10), r.Device, r.Datatype, r.Value}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func toFile(path string, recs []model.TelemetryRecord, enc func(io.Writer, []model.TelemetryRecord) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := enc(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
