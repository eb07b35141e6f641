package scheduler

import (
	"sync"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Ledger records which snapshot IDs have completed on which channel.
// The handler writes it; status surfaces read it concurrently.
type Ledger struct {
	mu   sync.RWMutex
	seen map[event.Channel]map[int64]bool
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[event.Channel]map[int64]bool)}
}

// Mark records a completion. ok is the capture outcome.
func (l *Ledger) Mark(ch event.Channel, snapshotID int64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.seen[ch]
	if m == nil {
		m = make(map[int64]bool)
		l.seen[ch] = m
	}
	m[snapshotID] = ok
}

// Captured reports whether a completion was recorded and whether it succeeded.
func (l *Ledger) Captured(ch event.Channel, snapshotID int64) (done, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ok, done = l.seen[ch][snapshotID]
	return done, ok
}

// Count returns the number of completions and failures on a channel.
func (l *Ledger) Count(ch event.Channel) (total, failed int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ok := range l.seen[ch] {
		total++
		if !ok {
			failed++
		}
	}
	return total, failed
}

// Forget drops every entry for snapshotID.
func (l *Ledger) Forget(snapshotID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.seen {
		delete(m, snapshotID)
	}
}
