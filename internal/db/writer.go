package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/spectrum.report/internal/lbt"
	"github.com/banshee-data/spectrum.report/internal/monitoring"
)

const (
	// writerQueueSize bounds the sensing events held in memory between
	// flushes. The sensing path never blocks: a full queue drops.
	writerQueueSize = 4096

	// writerFlushInterval is how often buffered events are written out.
	writerFlushInterval = time.Second

	// writerFlushBatch flushes early once this many events are queued.
	writerFlushBatch = 512
)

// EventWriter buffers sensing events from the engine and flushes them
// to sqlite in batches. RecordSensing is safe to call from the decision
// path: it is a non-blocking channel send.
type EventWriter struct {
	db    *DB
	runID string
	ch    chan lbt.SensingEvent
	drops atomic.Uint64
}

var _ lbt.EventSink = (*EventWriter)(nil)

// NewEventWriter creates a writer for the given run. Run must be called
// for events to reach the database.
func NewEventWriter(db *DB, runID string) *EventWriter {
	return &EventWriter{
		db:    db,
		runID: runID,
		ch:    make(chan lbt.SensingEvent, writerQueueSize),
	}
}

// RecordSensing queues one event, dropping it if the queue is full.
func (w *EventWriter) RecordSensing(ev lbt.SensingEvent) {
	select {
	case w.ch <- ev:
	default:
		w.drops.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was
// full.
func (w *EventWriter) Dropped() uint64 {
	return w.drops.Load()
}

// Run drains the queue until ctx is cancelled, then performs a final
// flush of whatever is still buffered.
func (w *EventWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(writerFlushInterval)
	defer ticker.Stop()

	batch := make([]lbt.SensingEvent, 0, writerFlushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.db.InsertSensingEvents(w.runID, batch); err != nil {
			monitoring.Logf("db: failed to flush %d sensing events: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// drain anything queued before the cancellation
			for {
				select {
				case ev := <-w.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case ev := <-w.ch:
			batch = append(batch, ev)
			if len(batch) >= writerFlushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
