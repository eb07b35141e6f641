package snapwatch

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/scheduler"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/store"
)

var (
	// ErrNotFound is returned when a page, record or event is unknown.
	ErrNotFound = errors.New("snapwatch: not found")
	// ErrInvalid is returned for malformed requests.
	ErrInvalid = errors.New("snapwatch: invalid request")
	// ErrNoIndex is returned by index queries when no store path is configured.
	ErrNoIndex = errors.New("snapwatch: event index disabled")
)

// ChannelStatus counts completions on one capture channel for the records
// still buffered.
type ChannelStatus struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// PageStatus is a point-in-time view of one observed page.
type PageStatus struct {
	ID                 string          `json:"id"`
	URL                string          `json:"url"`
	CurrentURL         string          `json:"current_url,omitempty"`
	Observing          bool            `json:"observing"`
	InputsReceived     int64           `json:"inputs_received"`
	InputsDropped      int64           `json:"inputs_dropped"`
	Scheduler          scheduler.Stats `json:"scheduler"`
	Screenshots        ChannelStatus   `json:"screenshots"`
	DOMSnapshots       ChannelStatus   `json:"dom_snapshots"`
	ScreenshotsWritten int64           `json:"screenshots_written"`
	ScreenshotsDropped int64           `json:"screenshots_dropped"`
	ScreenshotDir      string          `json:"screenshot_dir"`
	DOMDir             string          `json:"dom_dir"`
}

// Status is the daemon-wide view.
type Status struct {
	Uptime        string           `json:"uptime"`
	BrowserUptime string           `json:"browser_uptime"`
	Pages         []PageStatus     `json:"pages"`
	Index         map[string]int64 `json:"index,omitempty"`
}

// RecordView is a record with where it was found.
type RecordView struct {
	Record event.Record `json:"record"`
	// Source is "buffer" for records still in memory, "index" otherwise.
	Source string `json:"source"`
	State  string `json:"state"`
}

// IndexedEvent is one row of the SQLite event index.
type IndexedEvent = store.Entry

// EventQuery filters Events.
type EventQuery struct {
	PageID string `json:"page_id,omitempty"`
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *pageSlot) status() PageStatus {
	observing, current, recv, dropped := s.observing()
	ps := PageStatus{
		ID:             s.cfg.ID,
		URL:            s.pageURL(),
		CurrentURL:     current,
		Observing:      observing,
		InputsReceived: recv,
		InputsDropped:  dropped,
		Scheduler:      s.handler.Stats(),
		ScreenshotDir:  s.layout.ScreenshotDir(),
		DOMDir:         s.layout.DOMDir(),
	}
	ledger := s.ledger
	ps.Screenshots.Completed, ps.Screenshots.Failed = ledger.Count(event.ChannelScreenshot)
	ps.DOMSnapshots.Completed, ps.DOMSnapshots.Failed = ledger.Count(event.ChannelDOMSnapshot)
	if s.shots != nil {
		ps.ScreenshotsWritten, ps.ScreenshotsDropped = s.shots.Counts()
	}
	return ps
}

// Pages returns the status of every observed page, sorted by ID.
func (w *Watcher) Pages() []PageStatus {
	slots := w.slots()
	out := make([]PageStatus, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.status())
	}
	return out
}

// Page returns the status of one page.
func (w *Watcher) Page(pageID string) (PageStatus, error) {
	s := w.slot(pageID)
	if s == nil {
		return PageStatus{}, ErrNotFound
	}
	return s.status(), nil
}

// Status returns the daemon-wide view.
func (w *Watcher) Status(ctx context.Context) Status {
	w.mu.Lock()
	started := w.started
	idx := w.index
	w.mu.Unlock()

	st := Status{
		BrowserUptime: w.mgr.Uptime().Truncate(time.Second).String(),
		Pages:         w.Pages(),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started).Truncate(time.Second).String()
	}
	if idx != nil {
		if counts, err := idx.Counts(ctx, ""); err == nil {
			st.Index = make(map[string]int64, len(counts))
			for k, v := range counts {
				st.Index[string(k)] = v
			}
		}
	}
	return st
}

// Records returns the buffered records of a page, newest first.
func (w *Watcher) Records(pageID string) ([]event.Record, error) {
	s := w.slot(pageID)
	if s == nil {
		return nil, ErrNotFound
	}
	return s.handler.Records(), nil
}

// Record looks up a page's snapshot, in memory first and then in the index.
func (w *Watcher) Record(ctx context.Context, pageID string, snapshotID int64) (*RecordView, error) {
	if s := w.slot(pageID); s != nil {
		if r, ok := s.handler.Record(snapshotID); ok {
			return &RecordView{Record: r, Source: "buffer", State: string(r.Status)}, nil
		}
	}
	idx := w.eventIndex()
	if idx == nil {
		return nil, ErrNotFound
	}
	e, err := idx.BySnapshot(ctx, pageID, snapshotID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return &RecordView{Record: e.Record, Source: "index", State: string(e.State)}, nil
}

// Event looks up an event ID across all pages.
func (w *Watcher) Event(ctx context.Context, eventID string) (*RecordView, error) {
	if idx := w.eventIndex(); idx != nil {
		e, err := idx.ByEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return &RecordView{Record: e.Record, Source: "index", State: string(e.State)}, nil
		}
	}
	for _, s := range w.slots() {
		for _, r := range s.handler.Records() {
			if r.EventID == eventID {
				return &RecordView{Record: r, Source: "buffer", State: string(r.Status)}, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Events lists indexed events newest first.
func (w *Watcher) Events(ctx context.Context, q EventQuery) ([]IndexedEvent, error) {
	idx := w.eventIndex()
	if idx == nil {
		return nil, ErrNoIndex
	}
	return idx.List(ctx, store.ListOptions{
		PageID: q.PageID,
		State:  store.State(q.State),
		Limit:  q.Limit,
	})
}

// FlushIndex waits until every report queued so far is committed.
func (w *Watcher) FlushIndex(ctx context.Context) error {
	idx := w.eventIndex()
	if idx == nil {
		return ErrNoIndex
	}
	return idx.Flush(ctx)
}

func (w *Watcher) eventIndex() *store.Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}
