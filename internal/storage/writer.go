// Package storage persists telemetry records to dated, append-only CSV files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"edge-logger/internal/metrics"
	"edge-logger/internal/model"
)

var (
	// ErrQueueFull is returned by Enqueue when a bounded queue is at capacity.
	ErrQueueFull = errors.New("storage queue full")
	// ErrWriterStopped is returned by Enqueue after Stop.
	ErrWriterStopped = errors.New("storage writer stopped")
)

// Index receives every flushed batch after it reached the daily file.
type Index interface {
	SaveBatch(ctx context.Context, records []model.TelemetryRecord) error
}

// WriterOptions configures a Writer. Zero values take the defaults below.
type WriterOptions struct {
	Dir           string
	FlushInterval time.Duration // default 1s
	BatchSize     int           // default 200
	PollTimeout   time.Duration // default 200ms
	MaxQueue      int           // <= 0: unbounded
	IndexTimeout  time.Duration // default 5s
	Index         Index
	Metrics       *metrics.Metrics
	Clock         func() time.Time // default time.Now; drives the flush interval
}

// Writer owns one background worker that batches records into daily files.
type Writer struct {
	opts WriterOptions
	log  zerolog.Logger
	q    *queue

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWriter ensures the output directory exists. Call Start to begin writing.
func NewWriter(opts WriterOptions, log zerolog.Logger) (*Writer, error) {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 200 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", opts.Dir, err)
	}

	return &Writer{
		opts: opts,
		log:  log,
		q:    newQueue(opts.MaxQueue),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

// Dir returns the directory holding the daily files.
func (w *Writer) Dir() string { return w.opts.Dir }

// DayFile resolves the file for a YYYY-MM-DD date key.
func (w *Writer) DayFile(date string) (string, error) {
	return DayFilePath(w.opts.Dir, date)
}

// Enqueue hands a record to the worker without waiting for disk I/O.
func (w *Writer) Enqueue(r model.TelemetryRecord) error {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return ErrWriterStopped
	}

	depth, err := w.q.push(r)
	if err != nil {
		return err
	}
	w.opts.Metrics.RecordEnqueued(depth)
	return nil
}

// Pending returns the number of queued records not yet taken by the worker.
func (w *Writer) Pending() int { return w.q.len() }

// Start launches the worker. Subsequent calls are no-ops.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
	w.log.Info().
		Str("dir", w.opts.Dir).
		Dur("flush_interval", w.opts.FlushInterval).
		Int("batch_size", w.opts.BatchSize).
		Msg("storage writer started")
}

// Stop signals the worker and waits for it to write its buffer and close the file.
// Records still queued at that point are not written; their count is returned.
func (w *Writer) Stop() int {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return w.q.len()
	}
	w.stopped = true
	started := w.started
	close(w.stop)
	w.mu.Unlock()

	if started {
		<-w.done
	}

	left := w.q.len()
	if left > 0 {
		w.log.Warn().Int("records", left).Msg("storage writer stopped with records still queued; they were not persisted")
	}
	return left
}

func (w *Writer) run() {
	defer close(w.done)

	out := &dayFile{dir: w.opts.Dir}
	buf := make([]model.TelemetryRecord, 0, w.opts.BatchSize)
	lastFlush := w.opts.Clock()

	for {
		select {
		case <-w.stop:
			if len(buf) > 0 {
				w.flush(out, buf)
			}
			if err := out.close(); err != nil {
				w.log.Error().Err(err).Msg("close telemetry file")
			}
			w.log.Info().Msg("storage writer stopped")
			return
		default:
		}

		if r, ok := w.q.pop(w.stop, w.opts.PollTimeout); ok {
			buf = append(buf, r)
		}

		now := w.opts.Clock()
		if len(buf) > 0 && (len(buf) >= w.opts.BatchSize || now.Sub(lastFlush) >= w.opts.FlushInterval) {
			w.flush(out, buf)
			buf = buf[:0]
			lastFlush = now
			w.opts.Metrics.SetQueueDepth(w.q.len())
		}
	}
}

// flush writes batch to the daily files, then to the index. A failed CSV write
// drops the rows not yet handed to the OS, closes the open file so the next
// batch reopens it, and keeps the whole batch out of the index.
func (w *Writer) flush(out *dayFile, batch []model.TelemetryRecord) {
	started := time.Now()
	written, err := w.writeBatch(out, batch)
	w.opts.Metrics.Flushed(written, time.Since(started), err)
	if err != nil {
		w.log.Error().Err(err).
			Int("written", written).
			Int("dropped", len(batch)-written).
			Msg("telemetry flush failed")
		return
	}

	if w.opts.Index == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.IndexTimeout)
	defer cancel()
	if err := w.opts.Index.SaveBatch(ctx, batch); err != nil {
		w.log.Error().Err(err).Int("records", len(batch)).Msg("telemetry index write failed")
	}
}

// writeBatch returns how many rows of batch reached the OS. Rows of a date are
// counted once that date's file has been flushed.
func (w *Writer) writeBatch(out *dayFile, batch []model.TelemetryRecord) (written int, err error) {
	pending := 0
	defer func() {
		if err == nil {
			return
		}
		// rows already buffered for the open date still land if the close flushes
		if cerr := out.close(); cerr == nil {
			written += pending
		} else {
			w.log.Debug().Err(cerr).Msg("close after failed flush")
		}
	}()

	for _, r := range batch {
		date := r.Date()
		if out.f != nil && out.date != date {
			if err := out.close(); err != nil {
				pending = 0
				return written, fmt.Errorf("close %s: %w", DayFileName(out.date), err)
			}
			written += pending
			pending = 0
		}
		if err := out.use(date); err != nil {
			return written, err
		}
		if err := out.write(r); err != nil {
			return written, fmt.Errorf("write row: %w", err)
		}
		pending++
	}
	if err := out.flush(); err != nil {
		pending = 0
		return written, fmt.Errorf("flush %s: %w", DayFileName(out.date), err)
	}
	return written + pending, nil
}
