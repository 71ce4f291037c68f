package logfeed

import (
	"github.com/rcheng-dev/botconsole/internal/model"
)

// DefaultCapacity bounds the rendered log to the last 100 records, matching
// what the upstream feed returns per pull.
const DefaultCapacity = 100

// Buffer holds normalized records most-recent-first with a hard cap.
// It is not safe for concurrent use; the reconciliation loop is the only
// writer and publishes copies to readers.
type Buffer struct {
	records []model.LogRecord
	cap     int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity}
}

// Push inserts a record at the front. When full, the oldest record (the
// last element) is evicted.
func (b *Buffer) Push(rec model.LogRecord) {
	b.records = append([]model.LogRecord{rec}, b.records...)
	if len(b.records) > b.cap {
		b.records = b.records[:b.cap]
	}
}

// Replace swaps in a whole batch, newest-first, truncated to capacity.
// The upstream log endpoint returns the tail of the file on every pull,
// not deltas, so each pull replaces the buffer wholesale.
func (b *Buffer) Replace(newestFirst []model.LogRecord) {
	if len(newestFirst) > b.cap {
		newestFirst = newestFirst[:b.cap]
	}
	b.records = append(b.records[:0:0], newestFirst...)
}

// Records returns a copy, newest first.
func (b *Buffer) Records() []model.LogRecord {
	out := make([]model.LogRecord, len(b.records))
	copy(out, b.records)
	return out
}

func (b *Buffer) Len() int { return len(b.records) }
