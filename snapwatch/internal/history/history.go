// Package history holds the pending snapshot records of one handler, newest
// first, with lookup by snapshot ID.
package history

import (
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// DefaultCapacity bounds the buffer when no capacity is given.
const DefaultCapacity = 1024

// Buffer is a bounded, newest-first record container. It is not safe for
// concurrent use; the owning handler serialises access.
type Buffer struct {
	capacity int
	// items is oldest-first; iteration in reverse yields newest-first.
	items []*event.Record
	index map[int64]*event.Record
}

// New creates a Buffer. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		index:    make(map[int64]*event.Record),
	}
}

// Cap returns the capacity bound.
func (b *Buffer) Cap() int { return b.capacity }

// Len returns the number of buffered records.
func (b *Buffer) Len() int { return len(b.items) }

// Insert adds r as the newest record. Records that are not snapshot events
// or carry no snapshot ID are rejected. If the buffer is full the oldest
// record is evicted and returned.
func (b *Buffer) Insert(r *event.Record) (evicted *event.Record, ok bool) {
	if r == nil || !r.IsSnapshotEvent || r.SnapshotID == 0 {
		return nil, false
	}
	if len(b.items) >= b.capacity {
		evicted = b.items[0]
		b.items[0] = nil
		b.items = b.items[1:]
		delete(b.index, evicted.SnapshotID)
	}
	b.items = append(b.items, r)
	b.index[r.SnapshotID] = r
	return evicted, true
}

// Find returns the record with the given snapshot ID, or nil. The returned
// pointer aliases buffer state.
func (b *Buffer) Find(snapshotID int64) *event.Record {
	return b.index[snapshotID]
}

// Sweep removes records created more than maxAge before now and returns
// them oldest first.
func (b *Buffer) Sweep(now time.Time, maxAge time.Duration) []*event.Record {
	if maxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-maxAge)
	var expired []*event.Record
	kept := b.items[:0]
	for _, r := range b.items {
		if r.CreatedAt.Before(cutoff) {
			expired = append(expired, r)
			delete(b.index, r.SnapshotID)
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(b.items); i++ {
		b.items[i] = nil
	}
	b.items = kept
	return expired
}

// Snapshot returns copies of all records, newest first.
func (b *Buffer) Snapshot() []event.Record {
	out := make([]event.Record, 0, len(b.items))
	for i := len(b.items) - 1; i >= 0; i-- {
		out = append(out, *b.items[i])
	}
	return out
}
