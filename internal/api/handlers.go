// Package api serves the read-only HTTP view of the live state and the daily files.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"edge-logger/internal/db"
	"edge-logger/internal/model"
	"edge-logger/internal/state"
	"edge-logger/internal/storage"
)

const maxHistoryLimit = 10000

// DayFiles resolves a YYYY-MM-DD key to its CSV path.
type DayFiles interface {
	DayFile(date string) (string, error)
}

// History reads persisted rows.
type History interface {
	History(ctx context.Context, q db.HistoryQuery) ([]model.TelemetryRecord, error)
}

// Handlers serves the read-only HTTP API.
type Handlers struct {
	store    *state.Store
	files    DayFiles
	history  History // nil when the index is disabled
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandlers wires the handlers to their data sources. history may be nil.
func NewHandlers(store *state.Store, files DayFiles, history History, gatherer prometheus.Gatherer, log zerolog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		files:    files,
		history:  history,
		gatherer: gatherer,
		log:      log,
		now:      time.Now,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/devices", h.Devices)
	mux.HandleFunc("GET /api/device/{id}", h.Device)
	mux.HandleFunc("GET /api/latest", h.Latest)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/csv", h.CSV)
	mux.HandleFunc("GET /api/history", h.History)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug().Err(err).Msg("write response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{"status": "ok", "devices": h.store.Len()})
}

// GET /api/devices
func (h *Handlers) Devices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.store.SnapshotAll())
}

// GET /api/device/{id}
func (h *Handlers) Device(w http.ResponseWriter, r *http.Request) {
	detail, ok := h.store.SnapshotDevice(r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found")
		return
	}
	h.writeJSON(w, detail)
}

// GET /api/latest
func (h *Handlers) Latest(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{"latest": h.store.Latest()})
}

// GET /api/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{"devices": h.store.Statuses()})
}

// GET /api/csv?date=YYYY-MM-DD, defaulting to today (UTC).
func (h *Handlers) CSV(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.now().UTC().Format(model.DateLayout)
	}

	path, err := h.files.DayFile(date)
	switch {
	case errors.Is(err, storage.ErrInvalidDate):
		h.writeError(w, http.StatusBadRequest, "invalid_date")
		return
	case errors.Is(err, storage.ErrDayNotFound):
		h.writeError(w, http.StatusNotFound, "not_found")
		return
	case err != nil:
		h.log.Error().Err(err).Str("date", date).Msg("resolve csv")
		h.writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found")
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+storage.DayFileName(date)+`"`)
	http.ServeContent(w, r, storage.DayFileName(date), st.ModTime(), f)
}

// GET /api/history?device=&datatype=&limit=&from=&to=
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "index_disabled")
		return
	}

	q := r.URL.Query()
	hq := db.HistoryQuery{Device: q.Get("device"), Datatype: q.Get("datatype")}
	if hq.Device == "" {
		h.writeError(w, http.StatusBadRequest, "device_required")
		return
	}

	var err error
	if hq.Limit, err = intParam(q.Get("limit"), 0, maxHistoryLimit); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	if hq.From, err = msParam(q.Get("from")); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_from")
		return
	}
	if hq.To, err = msParam(q.Get("to")); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_to")
		return
	}
	if hq.Limit == 0 {
		hq.Limit = maxHistoryLimit
	}

	recs, err := h.history.History(r.Context(), hq)
	if err != nil {
		h.log.Error().Err(err).Str("device", hq.Device).Msg("history query")
		h.writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if recs == nil {
		recs = []model.TelemetryRecord{}
	}
	h.writeJSON(w, map[string]any{"device": hq.Device, "datatype": hq.Datatype, "rows": recs})
}

func intParam(s string, lo, hi int) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return min(max(n, lo), hi), nil
}

func msParam(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
