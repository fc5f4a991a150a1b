package ingest

import (
	"sync"

	"github.com/roach88/finishline/internal/tmreader"
)

// recordQueue is a thread-safe FIFO of timer records.
//
// The queue is unbounded so a burst of finishes never blocks the serial
// reader while the engine is busy with an operator correction.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type recordQueue struct {
	mu      sync.Mutex
	records []tmreader.Record
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRecordQueue() *recordQueue {
	return &recordQueue{
		records: make([]tmreader.Record, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a record to the back of the queue.
// Returns false if the queue is closed.
func (q *recordQueue) Enqueue(r tmreader.Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.records = append(q.records, r)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front record without blocking.
func (q *recordQueue) TryDequeue() (tmreader.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return tmreader.Record{}, false
	}
	r := q.records[0]
	if len(q.records) == 1 {
		q.records = q.records[:0]
	} else {
		q.records = q.records[1:]
	}
	return r, true
}

// Wait returns a channel that signals when records may be available.
// It is closed by Close.
func (q *recordQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *recordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Closed reports whether Close has been called.
func (q *recordQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more records will be enqueued and wakes waiters.
func (q *recordQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
