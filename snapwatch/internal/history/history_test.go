package history

import (
	"testing"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

func rec(id int64, at time.Time) *event.Record {
	return &event.Record{SnapshotID: id, IsSnapshotEvent: true, ScreenshotEnabled: true, CreatedAt: at}
}

func TestFindAmongSeveral(t *testing.T) {
	b := New(0)
	now := time.Now()
	for _, id := range []int64{5, 6, 7} {
		if _, ok := b.Insert(rec(id, now)); !ok {
			t.Fatalf("insert %d rejected", id)
		}
	}
	r := b.Find(6)
	if r == nil || r.SnapshotID != 6 {
		t.Fatalf("Find(6): got %+v", r)
	}
	r.ScreenshotReceived = true
	r.Evaluate()

	for _, id := range []int64{5, 7} {
		if b.Find(id).Ready() {
			t.Fatalf("record %d must still be waiting", id)
		}
	}
	if !b.Find(6).Ready() {
		t.Fatal("record 6 must be ready")
	}
	if b.Find(8) != nil {
		t.Fatal("Find(8) must miss")
	}
}

func TestInsertRejectsNonSnapshot(t *testing.T) {
	b := New(4)
	if _, ok := b.Insert(&event.Record{SnapshotID: 1}); ok {
		t.Fatal("non-snapshot record accepted")
	}
	if _, ok := b.Insert(&event.Record{IsSnapshotEvent: true}); ok {
		t.Fatal("record without snapshot id accepted")
	}
	if b.Len() != 0 {
		t.Fatalf("Len: got %d", b.Len())
	}
}

func TestNewestFirst(t *testing.T) {
	b := New(4)
	now := time.Now()
	b.Insert(rec(1, now))
	b.Insert(rec(2, now))
	b.Insert(rec(3, now))
	snap := b.Snapshot()
	if len(snap) != 3 || snap[0].SnapshotID != 3 || snap[2].SnapshotID != 1 {
		t.Fatalf("Snapshot order: %+v", snap)
	}
	snap[0].SnapshotID = 99
	if b.Find(3) == nil {
		t.Fatal("Snapshot must return copies")
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	b := New(2)
	now := time.Now()
	b.Insert(rec(1, now))
	b.Insert(rec(2, now))
	evicted, ok := b.Insert(rec(3, now))
	if !ok {
		t.Fatal("insert rejected")
	}
	if evicted == nil || evicted.SnapshotID != 1 {
		t.Fatalf("evicted: got %+v, want id 1", evicted)
	}
	if b.Len() != 2 {
		t.Fatalf("Len: got %d", b.Len())
	}
	if b.Find(1) != nil {
		t.Fatal("evicted record still found")
	}
}

func TestSweep(t *testing.T) {
	b := New(8)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Insert(rec(1, base))
	b.Insert(rec(2, base.Add(time.Minute)))
	b.Insert(rec(3, base.Add(3*time.Minute)))

	expired := b.Sweep(base.Add(4*time.Minute), 2*time.Minute)
	if len(expired) != 2 || expired[0].SnapshotID != 1 || expired[1].SnapshotID != 2 {
		t.Fatalf("expired: %+v", expired)
	}
	if b.Len() != 1 || b.Find(3) == nil {
		t.Fatalf("remaining: %+v", b.Snapshot())
	}
	if b.Find(1) != nil {
		t.Fatal("swept record still indexed")
	}
	if got := b.Sweep(base.Add(time.Hour), 0); got != nil {
		t.Fatal("zero maxAge must not sweep")
	}
}
