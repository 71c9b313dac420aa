package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	dbpkg "edge-logger/internal/db"
	"edge-logger/internal/output"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var q dbpkg.HistoryQuery
	var dbPath, outJSON, outCSV, from, to string
	flag.StringVar(&dbPath, "db", "logs/index.db", "path to the telemetry index")
	flag.StringVar(&q.Device, "device", "", "device id (required)")
	flag.StringVar(&q.Datatype, "datatype", "", "datatype (empty: all of the device)")
	flag.IntVar(&q.Limit, "limit", 0, "keep only the newest N rows (0: all)")
	flag.StringVar(&from, "from", "", "RFC3339 lower bound (inclusive)")
	flag.StringVar(&to, "to", "", "RFC3339 upper bound (inclusive)")
	flag.StringVar(&outJSON, "json", "", "path to write JSON (- for stdout)")
	flag.StringVar(&outCSV, "csv", "", "path to write CSV (- for stdout)")
	flag.Parse()

	if q.Device == "" {
		log.Fatal().Msg("--device is required")
	}
	if outJSON == "" && outCSV == "" {
		log.Fatal().Msg("no output specified: set --json and/or --csv")
	}
	var err error
	if q.From, err = parseBound(from); err != nil {
		log.Fatal().Err(err).Msg("--from")
	}
	if q.To, err = parseBound(to); err != nil {
		log.Fatal().Err(err).Msg("--to")
	}

	db, err := dbpkg.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open index")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := db.History(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("query history")
		return
	}
	log.Info().Int("rows", len(recs)).Str("device", q.Device).Msg("exporting")

	if outJSON != "" {
		if outJSON == "-" {
			err = output.EncodeJSON(os.Stdout, recs)
		} else {
			err = output.WriteJSON(outJSON, recs)
		}
		if err != nil {
			log.Error().Err(err).Msg("write json")
		}
	}
	if outCSV != "" {
		if outCSV == "-" {
			err = output.EncodeCSV(os.Stdout, recs)
		} else {
			err = output.WriteCSV(outCSV, recs)
		}
		if err != nil {
			log.Error().Err(err).Msg("write csv")
		}
	}
}

func parseBound(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
