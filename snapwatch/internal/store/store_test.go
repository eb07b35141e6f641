package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	x, err := New(OpenMemory(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func record(page, eventID string, snapshotID int64, at time.Time) event.Record {
	return event.Record{
		PageID:            page,
		EventID:           eventID,
		SnapshotID:        snapshotID,
		IsSnapshotEvent:   snapshotID > 0,
		ScreenshotEnabled: snapshotID > 0,
		Status:            event.StatusWaiting,
		Input:             event.Wire{Kind: event.KindMouseDown, X: 1, Y: 2},
		URL:               "https://example.com/",
		URLEpoch:          1,
		CreatedAt:         at,
	}
}

func TestIndexLifecycle(t *testing.T) {
	x := newIndex(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 7, 8, 9, 0, time.UTC)

	rec := record("p1", "site_1_1", 1, at)
	x.Classified(rec)
	if err := x.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	e, err := x.ByEvent(ctx, "site_1_1")
	if err != nil || e == nil {
		t.Fatalf("ByEvent = %v, %v", e, err)
	}
	if e.State != StateClassified || e.Record.Status != event.StatusWaiting {
		t.Errorf("state = %s/%s", e.State, e.Record.Status)
	}
	if e.ID == "" {
		t.Error("row id empty")
	}

	rec.ScreenshotReceived = true
	rec.ScreenshotOK = true
	rec.Evaluate()
	x.Ready(rec)
	if err := x.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	e, err = x.BySnapshot(ctx, "p1", 1)
	if err != nil || e == nil {
		t.Fatalf("BySnapshot = %v, %v", e, err)
	}
	if e.State != StateReady || !e.Record.ScreenshotOK || e.Record.Status != event.StatusReady {
		t.Errorf("after ready: %+v", e)
	}
	if e.Record.Input.Kind != event.KindMouseDown || e.Record.Input.X != 1 {
		t.Errorf("input = %+v", e.Record.Input)
	}
}

func TestIndexMissing(t *testing.T) {
	x := newIndex(t)
	ctx := context.Background()

	e, err := x.ByEvent(ctx, "nope")
	if err != nil || e != nil {
		t.Errorf("ByEvent missing = %v, %v", e, err)
	}
	e, err = x.BySnapshot(ctx, "p1", 9)
	if err != nil || e != nil {
		t.Errorf("BySnapshot missing = %v, %v", e, err)
	}
}

func TestIndexListAndCounts(t *testing.T) {
	x := newIndex(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	x.Classified(record("p1", "s_1_1", 1, base))
	x.Classified(record("p1", "s_1_2", 0, base.Add(time.Second)))
	x.Classified(record("p2", "s_1_3", 1, base.Add(2*time.Second)))
	x.Expired(record("p1", "s_1_1", 1, base))
	if err := x.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	all, err := x.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List len = %d, want 3", len(all))
	}
	if all[0].Record.EventID != "s_1_3" {
		t.Errorf("newest = %s", all[0].Record.EventID)
	}

	p1, err := x.List(ctx, ListOptions{PageID: "p1", State: StateExpired})
	if err != nil {
		t.Fatalf("List p1: %v", err)
	}
	if len(p1) != 1 || p1[0].Record.EventID != "s_1_1" {
		t.Errorf("expired p1 = %+v", p1)
	}

	counts, err := x.Counts(ctx, "p1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[StateExpired] != 1 || counts[StateClassified] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestIndexDropsWhenFull(t *testing.T) {
	db := OpenMemory(t)
	x, err := New(db, WithQueue(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer x.Close()

	// Hold the only connection so the writer stalls on its first batch.
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	for i := 0; i < 100; i++ {
		x.Classified(record("p", "e", 0, time.Now()))
	}
	conn.Close()
	if x.Dropped() == 0 {
		t.Error("expected drops with a 1-slot buffer")
	}
}

func TestIndexReportsAfterClose(t *testing.T) {
	x := newIndex(t)
	at := time.Now()
	x.Classified(record("p1", "site_1_1", 1, at))
	if err := x.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	x.Ready(record("p1", "site_1_1", 1, at))
	x.Expired(record("p1", "site_1_2", 2, at))
	if got := x.Dropped(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
	if err := x.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close = %v, want ErrClosed", err)
	}
	if err := x.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
