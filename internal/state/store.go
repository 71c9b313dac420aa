// Package state holds the in-memory live view of the device fleet.
package state

import (
	"sort"
	"sync"

	"edge-logger/internal/model"
)

type deviceEntry struct {
	status   string
	lastSeen int64
}

// Store aggregates device status, latest values and bounded history.
// One mutex guards all three maps; reads copy out before unlocking.
type Store struct {
	mu       sync.Mutex
	capacity int

	devices map[string]*deviceEntry
	latest  map[string]map[string]model.LatestValue
	history map[string]map[string]*ring
}

// NewStore creates a store retaining historyPoints points per metric.
// Values below 1 are clamped to 1.
func NewStore(historyPoints int) *Store {
	if historyPoints < 1 {
		historyPoints = 1
	}
	return &Store{
		capacity: historyPoints,
		devices:  make(map[string]*deviceEntry),
		latest:   make(map[string]map[string]model.LatestValue),
		history:  make(map[string]map[string]*ring),
	}
}

// entryLocked returns the device entry, inserting a default one if absent.
func (s *Store) entryLocked(device string) *deviceEntry {
	e, ok := s.devices[device]
	if !ok {
		e = &deviceEntry{status: model.DefaultStatus}
		s.devices[device] = e
	}
	return e
}

// UpdateStatus records a status message for device.
func (s *Store) UpdateStatus(device, status string, tsUnixMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(device)
	e.status = status
	e.lastSeen = tsUnixMs
}

// UpdateTelemetry records a reading; the status of the device is left untouched.
func (s *Store) UpdateTelemetry(device, metric, value string, tsUnixMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entryLocked(device).lastSeen = tsUnixMs

	metrics, ok := s.latest[device]
	if !ok {
		metrics = make(map[string]model.LatestValue)
		s.latest[device] = metrics
	}
	metrics[metric] = model.LatestValue{Value: value, TsUnixMs: tsUnixMs}

	rings, ok := s.history[device]
	if !ok {
		rings = make(map[string]*ring)
		s.history[device] = rings
	}
	r, ok := rings[metric]
	if !ok {
		r = newRing(s.capacity)
		rings[metric] = r
	}
	r.push(model.HistoryPoint{TsUnixMs: tsUnixMs, Value: value})
}

// SnapshotAll returns every known device sorted by id.
func (s *Store) SnapshotAll() []model.DeviceSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DeviceSummary, 0, len(s.devices))
	for id := range s.devices {
		out = append(out, s.summaryLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// SnapshotDevice returns the device with its full history, or false if unknown.
func (s *Store) SnapshotDevice(device string) (model.DeviceDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[device]; !ok {
		return model.DeviceDetail{}, false
	}

	rings := s.history[device]
	history := make(map[string][]model.HistoryPoint, len(rings))
	for metric, r := range rings {
		history[metric] = r.points()
	}
	return model.DeviceDetail{
		DeviceSummary: s.summaryLocked(device),
		History:       history,
	}, true
}

// Latest copies the latest-value map keyed by device then metric.
func (s *Store) Latest() map[string]map[string]model.LatestValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]model.LatestValue, len(s.latest))
	for device, metrics := range s.latest {
		out[device] = copyLatest(metrics)
	}
	return out
}

// Statuses copies the device status map.
func (s *Store) Statuses() map[string]model.DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.DeviceStatus, len(s.devices))
	for id, e := range s.devices {
		out[id] = model.DeviceStatus{Status: e.status, LastSeenUnixMs: e.lastSeen}
	}
	return out
}

// Len returns the number of known devices.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

func (s *Store) summaryLocked(device string) model.DeviceSummary {
	e := s.devices[device]
	return model.DeviceSummary{
		Device:         device,
		Status:         e.status,
		LastSeenUnixMs: e.lastSeen,
		Latest:         copyLatest(s.latest[device]),
	}
}

func copyLatest(in map[string]model.LatestValue) map[string]model.LatestValue {
	out := make(map[string]model.LatestValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
