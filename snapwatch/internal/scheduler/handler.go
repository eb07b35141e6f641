// Package scheduler correlates sampled input events with the asynchronous
// screenshot and MHTML captures issued for them.
//
// One Handler serves one page. HandleInputEvent runs on the page's dispatch
// goroutine; completion callbacks arrive on backend goroutines. A single
// mutex guards the policy, the identity counter, the history buffer and the
// per-record flags, and no collaborator is called while it is held. Drain
// waits for captures still in flight before the page's writers are closed.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/history"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/ident"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/policy"
)

// DefaultMaxAge is how long a record may wait for its captures.
const DefaultMaxAge = 2 * time.Minute

// Config holds the per-handler settings.
type Config struct {
	PageID          string
	Policy          policy.Options
	HistoryCapacity int
	MaxAge          time.Duration
	// Region restricts screenshots to part of the viewport.
	Region event.Region
	// SiteID mints the site identifier. Nil uses a 12-char NanoID.
	SiteID idgen.Generator
	Clock  func() time.Time
}

// Deps are the collaborators of a Handler. Nil fields get no-op defaults,
// except the capture backends: a nil backend disables its channel.
type Deps struct {
	Screenshots  ScreenshotBackend
	Structural   StructuralBackend
	Destinations DestinationProvider
	Persister    ScreenshotPersister
	Lines        LineLogger
	Transport    Transport
	Reporter     Reporter
	Notifier     Notifier
	Page         PageLocator
	Ledger       *Ledger
	Logger       *slog.Logger
}

// Stats is a point-in-time view of handler counters.
type Stats struct {
	PageID         string `json:"page_id,omitempty"`
	SiteID         string `json:"site_id"`
	SessionDir     string `json:"session_dir"`
	Classified     int64  `json:"classified"`
	SnapshotEvents int64  `json:"snapshot_events"`
	Issued         int64  `json:"issued"`
	Ready          int64  `json:"ready"`
	Expired        int64  `json:"expired"`
	LookupMisses   int64  `json:"lookup_misses"`
	SendFailures   int64  `json:"send_failures"`
	Pending        int    `json:"pending"`
	Buffered       int    `json:"buffered"`
	NextSnapshotID int64  `json:"next_snapshot_id"`
	URLEpoch       int    `json:"url_epoch"`
	PageSampled    bool   `json:"page_sampled"`
}

// Handler is the correlation scheduler for one page.
type Handler struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	id      *ident.Identity
	policy  *policy.Engine
	history *history.Buffer
	stats   Stats

	inflight sync.WaitGroup
}

// New creates a Handler and writes the start-up lines to the line log.
func New(cfg Config, deps Deps) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if deps.Screenshots == nil {
		cfg.Policy.Screenshots.Enabled = false
	}
	if deps.Structural == nil || deps.Destinations == nil {
		cfg.Policy.DOMSnapshots.Enabled = false
	}
	if deps.Persister == nil {
		deps.Persister = nopPersister{}
	}
	if deps.Lines == nil {
		deps.Lines = nopLines{}
	}
	if deps.Transport == nil {
		deps.Transport = nopTransport{}
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Page == nil {
		deps.Page = PageLocatorFunc(func() policy.PageContext { return policy.PageContext{} })
	}
	if deps.Ledger == nil {
		deps.Ledger = NewLedger()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	h := &Handler{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.With("page_id", cfg.PageID),
		clock:   cfg.Clock,
		id:      ident.New(cfg.SiteID, cfg.Clock()),
		policy:  policy.New(cfg.Policy),
		history: history.New(cfg.HistoryCapacity),
	}
	h.stats.PageID = cfg.PageID
	h.stats.SiteID = h.id.SiteID()
	h.stats.SessionDir = h.id.SessionDirectoryName()

	opts := h.policy.Options()
	deps.Lines.AppendLine("snapshot: directory generated: "+h.id.SessionDirectoryName(), true)
	deps.Lines.AppendLine(fmt.Sprintf(
		"snapshot: flags screenshot enabled: %t, selective screenshot: %t, dom snapshot enabled: %t, selective dom snapshot: %t, randomization: %t, page sampled: %t",
		opts.Screenshots.Enabled, opts.Screenshots.Selective,
		opts.DOMSnapshots.Enabled, opts.DOMSnapshots.Selective,
		opts.Randomized, h.policy.PageSampled()), false)
	h.logger.Info("scheduler: started",
		"site_id", h.id.SiteID(),
		"session_dir", h.id.SessionDirectoryName(),
		"screenshots", opts.Screenshots.Enabled,
		"dom_snapshots", opts.DOMSnapshots.Enabled,
		"randomized", opts.Randomized,
		"page_sampled", h.policy.PageSampled())
	return h
}

// SiteID returns the handler's site identifier.
func (h *Handler) SiteID() string { return h.id.SiteID() }

// SessionDirectoryName returns the artifact directory name for this handler.
func (h *Handler) SessionDirectoryName() string { return h.id.SessionDirectoryName() }

// Ledger returns the capture ledger the handler writes to.
func (h *Handler) Ledger() *Ledger { return h.deps.Ledger }

// HandleInputEvent classifies one input event, issues the captures it
// deserves, forwards it downstream and returns its event ID.
func (h *Handler) HandleInputEvent(ctx context.Context, in event.Input, trace event.Trace) string {
	page := h.deps.Page.Locate()
	now := h.clock()

	h.mu.Lock()
	d := h.policy.Classify(in, now, page)
	eventID := h.id.EventID(d.URLEpoch, trace.ID)
	rec := event.Record{
		EventID:            eventID,
		PageID:             h.cfg.PageID,
		IsSnapshotEvent:    d.IsSnapshotEvent,
		ScreenshotEnabled:  d.IsSnapshotEvent && d.Screenshot,
		DOMSnapshotEnabled: d.IsSnapshotEvent && d.DOMSnapshot,
		Input:              event.ToWire(in),
		Trace:              trace,
		URL:                d.URL,
		URLEpoch:           d.URLEpoch,
		CreatedAt:          now,
	}
	if rec.Active() {
		rec.SnapshotID = h.id.AllocateSnapshotID()
		h.stats.Issued++
	}
	h.stats.Classified++
	if d.IsSnapshotEvent {
		h.stats.SnapshotEvents++
	}
	session := h.id.SessionDirectoryName()
	h.mu.Unlock()

	lines := h.deps.Lines
	if d.IsSnapshotEvent {
		switch {
		case !page.OK:
			lines.AppendLine("snapshot: no url obtained", true)
		case d.URLChanged:
			if h.cfg.Policy.Randomized {
				lines.AppendLine(fmt.Sprintf("snapshot: url changed, page sampled: %t", d.PageSampled), true)
			} else {
				lines.AppendLine("snapshot: url changed", true)
			}
			h.logger.Info("scheduler: url changed", "url", d.URL, "url_epoch", d.URLEpoch, "page_sampled", d.PageSampled)
		}
		if page.OK {
			lines.AppendLine(fmt.Sprintf("snapshot: url: %s, url epoch: %d", d.URL, d.URLEpoch), true)
		}
	}
	lines.AppendLine(fmt.Sprintf("snapshot: event id: %s, page sampled: %t", eventID, d.PageSampled), true)

	boundary := ""
	if rec.DOMSnapshotEnabled {
		boundary = ident.MultipartBoundary()
	}
	dest, err := h.openDestination(rec.SnapshotID, rec.DOMSnapshotEnabled)
	if err != nil {
		h.logger.Warn("scheduler: dom destination unavailable", "snapshot_id", rec.SnapshotID, "event_id", eventID, "error", err)
		lines.AppendLine(fmt.Sprintf("snapshot: dom destination unavailable, snapshot id: %d, error: %v", rec.SnapshotID, err), true)
		rec.DOMSnapshotEnabled = false
		boundary = ""
	}

	if rec.SnapshotID != 0 {
		lines.AppendLine(fmt.Sprintf("snapshot: snapshot event, event id: %s, snapshot id: %d, output directory: %s",
			eventID, rec.SnapshotID, session), true)
	}

	rec.Evaluate()
	h.deps.Reporter.Classified(rec)

	var readyNow, evicted *event.Record
	switch {
	case rec.IsSnapshotEvent && !rec.Active():
		// Nothing to wait for.
		readyNow = &rec
	case rec.Active():
		stored := rec
		h.mu.Lock()
		evicted, _ = h.history.Insert(&stored)
		h.mu.Unlock()
		lines.AppendLine(fmt.Sprintf("snapshot: buffered event id: %s, snapshot id: %d", eventID, rec.SnapshotID), true)
	}
	if readyNow != nil {
		h.mu.Lock()
		h.stats.Ready++
		h.mu.Unlock()
		h.deps.Reporter.Ready(*readyNow)
	}
	if evicted != nil {
		h.discard(*evicted, "capacity")
	}

	if rec.ScreenshotEnabled {
		id := rec.SnapshotID
		h.inflight.Add(1)
		h.deps.Screenshots.RequestScreenshot(ctx, event.ScreenshotRequest{
			SnapshotID: id,
			EventID:    eventID,
			Region:     h.cfg.Region,
		}, func(image []byte, success bool) {
			defer h.inflight.Done()
			h.OnScreenshotCaptured(id, image, success)
		})
	}
	if rec.DOMSnapshotEnabled {
		id := rec.SnapshotID
		h.inflight.Add(1)
		h.deps.Structural.RequestSnapshot(ctx, event.SnapshotRequest{
			SnapshotID: id,
			EventID:    eventID,
			Boundary:   boundary,
		}, dest, func(size int64) {
			defer h.inflight.Done()
			h.OnStructuralSnapshotCaptured(id, size)
		})
	}

	dispatch := event.Dispatch{
		PageID:  h.cfg.PageID,
		EventID: eventID,
		Input:   rec.Input,
		Trace:   trace,
		URL:     rec.URL,
		Capture: event.CaptureParams{
			SnapshotID:        rec.SnapshotID,
			ScreenshotActive:  rec.ScreenshotEnabled,
			DOMSnapshotActive: rec.DOMSnapshotEnabled,
			EventID:           eventID,
			Boundary:          boundary,
		},
	}
	if !h.deps.Transport.Send(ctx, dispatch) {
		h.mu.Lock()
		h.stats.SendFailures++
		h.mu.Unlock()
		h.logger.Warn("scheduler: dispatch send failed", "event_id", eventID)
		lines.AppendLine("snapshot: failure in sending the event, event id: "+eventID, true)
	}

	if line := metadataLine(in, eventID); line != "" {
		lines.AppendLine(line, true)
	}
	return eventID
}

func (h *Handler) openDestination(snapshotID int64, enabled bool) (dest io.WriteCloser, err error) {
	if !enabled {
		return nil, nil
	}
	dest, err = h.deps.Destinations.OpenDestination(snapshotID)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open destination: %w", err)
	}
	return dest, nil
}

// OnScreenshotCaptured records the outcome of a screenshot. The channel
// counts as received whether or not the capture succeeded; only successful
// images are persisted.
func (h *Handler) OnScreenshotCaptured(snapshotID int64, image []byte, success bool) {
	h.complete(event.ChannelScreenshot, snapshotID, int64(len(image)), success, func() {
		h.deps.Persister.PersistScreenshot(snapshotID, image)
	})
}

// OnStructuralSnapshotCaptured records the outcome of an MHTML capture.
// A negative size means the capture failed.
func (h *Handler) OnStructuralSnapshotCaptured(snapshotID int64, size int64) {
	h.complete(event.ChannelDOMSnapshot, snapshotID, size, size >= 0, nil)
}

func (h *Handler) complete(ch event.Channel, snapshotID, size int64, success bool, persist func()) {
	now := h.clock()

	h.mu.Lock()
	r := h.history.Find(snapshotID)
	if r == nil {
		h.stats.LookupMisses++
		h.mu.Unlock()
		h.logger.Warn("scheduler: lookup miss", "channel", ch, "snapshot_id", snapshotID)
		h.deps.Lines.AppendLine(fmt.Sprintf("snapshot: %s callback, no event found for snapshot id: %d", ch, snapshotID), true)
		return
	}
	wasReady := r.Ready()
	switch ch {
	case event.ChannelScreenshot:
		r.ScreenshotReceived = true
		r.ScreenshotOK = success
	case event.ChannelDOMSnapshot:
		r.DOMSnapshotReceived = true
		r.DOMSize = size
	}
	nowReady := r.Evaluate() == event.StatusReady && !wasReady
	if nowReady {
		h.stats.Ready++
	}
	snap := *r
	// Marked while the record is still buffered; evictions Forget after
	// removing it under the same lock.
	h.deps.Ledger.Mark(ch, snapshotID, success)
	h.mu.Unlock()

	h.deps.Lines.AppendLine(fmt.Sprintf("snapshot: %s callback, event id: %s, success: %t", ch, snap.EventID, success), true)
	h.logger.Debug("scheduler: capture completed",
		"channel", ch, "snapshot_id", snapshotID, "event_id", snap.EventID, "success", success, "size", size)

	if success && persist != nil {
		persist()
	}
	h.deps.Notifier.NotifyCompletion(event.Completion{
		PageID:     snap.PageID,
		SnapshotID: snapshotID,
		EventID:    snap.EventID,
		Channel:    ch,
		Success:    success,
		Size:       size,
		At:         now,
	})
	if nowReady {
		h.logger.Debug("scheduler: record ready", "snapshot_id", snapshotID, "event_id", snap.EventID)
		h.deps.Reporter.Ready(snap)
	}
}

// Drain blocks until every capture issued so far has completed, or ctx is
// done. Call it after input has stopped.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: drain: %w", ctx.Err())
	}
}

// Sweep drops records older than the configured max age. Records still
// waiting are reported as expired.
func (h *Handler) Sweep(now time.Time) int {
	h.mu.Lock()
	expired := h.history.Sweep(now, h.cfg.MaxAge)
	h.mu.Unlock()

	n := 0
	for _, r := range expired {
		if h.discard(*r, "age") {
			n++
		}
	}
	return n
}

// discard reports a record leaving the buffer. It returns true if the record
// was still waiting.
func (h *Handler) discard(r event.Record, reason string) bool {
	h.deps.Ledger.Forget(r.SnapshotID)
	if r.Ready() {
		return false
	}
	h.mu.Lock()
	h.stats.Expired++
	h.mu.Unlock()
	h.logger.Warn("scheduler: record expired",
		"reason", reason,
		"snapshot_id", r.SnapshotID,
		"event_id", r.EventID,
		"screenshot_received", r.ScreenshotReceived,
		"dom_snapshot_received", r.DOMSnapshotReceived)
	h.deps.Lines.AppendLine(fmt.Sprintf("snapshot: discarded waiting event id: %s, snapshot id: %d, reason: %s",
		r.EventID, r.SnapshotID, reason), true)
	h.deps.Reporter.Expired(r)
	return true
}

// Record returns a copy of the buffered record with the given snapshot ID.
func (h *Handler) Record(snapshotID int64) (event.Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.history.Find(snapshotID)
	if r == nil {
		return event.Record{}, false
	}
	return *r, true
}

// Records returns copies of all buffered records, newest first.
func (h *Handler) Records() []event.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.Snapshot()
}

// Stats returns the current counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Buffered = h.history.Len()
	for _, r := range h.history.Snapshot() {
		if !r.Ready() {
			s.Pending++
		}
	}
	s.NextSnapshotID = h.id.PeekSnapshotID()
	s.URLEpoch = h.policy.URLEpoch()
	s.PageSampled = h.policy.PageSampled()
	return s
}
