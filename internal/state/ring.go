package state

import "edge-logger/internal/model"

// ring is a fixed-capacity FIFO that overwrites its oldest point when full.
type ring struct {
	buf   []model.HistoryPoint
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]model.HistoryPoint, capacity)}
}

func (r *ring) push(p model.HistoryPoint) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = p
		r.size++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

// points copies the contents oldest first.
func (r *ring) points() []model.HistoryPoint {
	out := make([]model.HistoryPoint, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
