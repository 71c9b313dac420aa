package storage

import (
	"sync"
	"time"

	"edge-logger/internal/model"
)

// queue is a FIFO for many producers and a single consumer.
// max <= 0 means unbounded.
type queue struct {
	mu    sync.Mutex
	items []model.TelemetryRecord
	head  int
	max   int
	ready chan struct{}
}

func newQueue(max int) *queue {
	return &queue{max: max, ready: make(chan struct{}, 1)}
}

// push appends r and returns the resulting depth.
func (q *queue) push(r model.TelemetryRecord) (int, error) {
	q.mu.Lock()
	n := len(q.items) - q.head
	if q.max > 0 && n >= q.max {
		q.mu.Unlock()
		return n, ErrQueueFull
	}
	q.items = append(q.items, r)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return n + 1, nil
}

func (q *queue) tryPop() (model.TelemetryRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return model.TelemetryRecord{}, false
	}
	r := q.items[q.head]
	q.items[q.head] = model.TelemetryRecord{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 4096 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return r, true
}

// pop waits up to timeout for a record. It returns early, empty-handed, when stop closes.
func (q *queue) pop(stop <-chan struct{}, timeout time.Duration) (model.TelemetryRecord, bool) {
	if r, ok := q.tryPop(); ok {
		return r, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if r, ok := q.tryPop(); ok {
				return r, true
			}
		case <-stop:
			return model.TelemetryRecord{}, false
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
