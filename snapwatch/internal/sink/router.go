package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Router fans out to every sink. A failing sink does not stop the others;
// failures are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) each(what string, fn func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("sink: send failed", "type", what, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Send(ctx context.Context, d event.Dispatch) error {
	return r.each(TypeDispatch, func(s Sink) error { return s.Send(ctx, d) })
}

// Deliver sends d to every sink and reports whether at least one accepted
// it. A router without sinks accepts everything.
func (r *Router) Deliver(ctx context.Context, d event.Dispatch) bool {
	if len(r.sinks) == 0 {
		return true
	}
	accepted := false
	for _, s := range r.sinks {
		if err := s.Send(ctx, d); err != nil {
			r.logger.Warn("sink: send failed", "type", TypeDispatch, "error", err)
			continue
		}
		accepted = true
	}
	return accepted
}

func (r *Router) SendCompletion(ctx context.Context, c event.Completion) error {
	return r.each(TypeCompletion, func(s Sink) error { return s.SendCompletion(ctx, c) })
}

func (r *Router) SendRecord(ctx context.Context, rec event.Record) error {
	return r.each(TypeRecord, func(s Sink) error { return s.SendRecord(ctx, rec) })
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
