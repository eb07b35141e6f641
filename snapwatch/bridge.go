package snapwatch

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/scheduler"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/sink"
)

// sinkBridge adapts the sink router to the scheduler's Transport, Notifier
// and Reporter collaborators.
type sinkBridge struct {
	router *sink.Router
	ctx    context.Context
	logger *slog.Logger
}

// Send succeeds when any sink took the dispatch.
func (b *sinkBridge) Send(ctx context.Context, d event.Dispatch) bool {
	return b.router.Deliver(ctx, d)
}

func (b *sinkBridge) NotifyCompletion(c event.Completion) {
	if err := b.router.SendCompletion(b.ctx, c); err != nil {
		b.logger.Debug("snapwatch: completion not delivered", "snapshot_id", c.SnapshotID, "error", err)
	}
}

// Classified events already travel as dispatches.
func (b *sinkBridge) Classified(event.Record) {}

func (b *sinkBridge) Ready(r event.Record) { b.record(r) }

func (b *sinkBridge) Expired(r event.Record) { b.record(r) }

func (b *sinkBridge) record(r event.Record) {
	if err := b.router.SendRecord(b.ctx, r); err != nil {
		b.logger.Debug("snapwatch: record not delivered", "event_id", r.EventID, "error", err)
	}
}

// reporters fans a lifecycle report out to several reporters.
type reporters []scheduler.Reporter

func (rs reporters) Classified(r event.Record) {
	for _, x := range rs {
		x.Classified(r)
	}
}

func (rs reporters) Ready(r event.Record) {
	for _, x := range rs {
		x.Ready(r)
	}
}

func (rs reporters) Expired(r event.Record) {
	for _, x := range rs {
		x.Expired(r)
	}
}
