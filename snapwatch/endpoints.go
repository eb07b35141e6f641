package snapwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/kit"
	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

type observeReq struct {
	PageID       string        `json:"page_id"`
	URL          string        `json:"url"`
	StealthLevel string        `json:"stealth_level"`
	Region       *event.Region `json:"region,omitempty"`
}

type pageReq struct {
	PageID string `json:"page_id"`
}

type recordReq struct {
	PageID     string `json:"page_id"`
	SnapshotID int64  `json:"snapshot_id"`
}

type eventReq struct {
	EventID string `json:"event_id"`
}

// endpoints are the operations shared by the MCP tools and the HTTP API.
type endpoints struct {
	observe   kit.Endpoint
	unobserve kit.Endpoint
	status    kit.Endpoint
	record    kit.Endpoint
	event     kit.Endpoint
	events    kit.Endpoint
}

func (w *Watcher) endpoints() endpoints {
	mw := kit.Chain(w.logRequests)
	return endpoints{
		observe:   mw(w.observeEndpoint),
		unobserve: mw(w.unobserveEndpoint),
		status:    mw(w.statusEndpoint),
		record:    mw(w.recordEndpoint),
		event:     mw(w.eventEndpoint),
		events:    mw(w.eventsEndpoint),
	}
}

// logRequests tags each call with a request ID and logs its outcome.
func (w *Watcher) logRequests(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if kit.GetRequestID(ctx) == "" {
			ctx = kit.WithRequestID(ctx, idgen.New())
		}
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			"transport", kit.GetTransport(ctx),
			"request_id", kit.GetRequestID(ctx),
			"duration", time.Since(start),
		}
		if id := kit.GetTraceID(ctx); id != "" {
			attrs = append(attrs, "trace_id", id)
		}
		if id := kit.GetPageID(ctx); id != "" {
			attrs = append(attrs, "page_id", id)
		}
		if id := kit.GetEventID(ctx); id != "" {
			attrs = append(attrs, "event_id", id)
		}
		if err != nil {
			w.logger.Debug("snapwatch: request failed", append(attrs, "error", err)...)
		} else {
			w.logger.Debug("snapwatch: request", attrs...)
		}
		return resp, err
	}
}

func (w *Watcher) observeEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*observeReq)
	if r.PageID == "" {
		r.PageID = idgen.New()
	}
	page := PageConfig{ID: r.PageID, URL: r.URL, StealthLevel: r.StealthLevel}
	if r.Region != nil {
		page.Region = *r.Region
	}
	if err := w.ObservePage(ctx, page); err != nil {
		return nil, err
	}
	return map[string]string{"status": "observing", "page_id": r.PageID}, nil
}

func (w *Watcher) unobserveEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*pageReq)
	if !w.UnobservePage(r.PageID) {
		return nil, fmt.Errorf("page %q: %w", r.PageID, ErrNotFound)
	}
	return map[string]string{"status": "stopped", "page_id": r.PageID}, nil
}

func (w *Watcher) statusEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*pageReq)
	if r.PageID == "" {
		return w.Status(ctx), nil
	}
	ps, err := w.Page(r.PageID)
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", r.PageID, err)
	}
	return ps, nil
}

func (w *Watcher) recordEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*recordReq)
	if r.SnapshotID <= 0 {
		return nil, fmt.Errorf("snapshot_id must be positive: %w", ErrInvalid)
	}
	v, err := w.Record(ctx, r.PageID, r.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d on page %q: %w", r.SnapshotID, r.PageID, err)
	}
	return v, nil
}

func (w *Watcher) eventEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*eventReq)
	v, err := w.Event(ctx, r.EventID)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", r.EventID, err)
	}
	return v, nil
}

func (w *Watcher) eventsEndpoint(ctx context.Context, req any) (any, error) {
	q := req.(*EventQuery)
	events, err := w.Events(ctx, *q)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []IndexedEvent{}
	}
	return map[string]any{"events": events, "count": len(events)}, nil
}
