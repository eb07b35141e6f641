// Package sink defines output backends for snapwatch events.
package sink

import (
	"context"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Sink delivers dispatches, capture completions and finished records to a
// backend (stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, d event.Dispatch) error
	SendCompletion(ctx context.Context, c event.Completion) error
	SendRecord(ctx context.Context, r event.Record) error
	Close() error
}

// Envelope types.
const (
	TypeDispatch   = "dispatch"
	TypeCompletion = "completion"
	TypeRecord     = "record"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
