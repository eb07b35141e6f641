package sink

import (
	"context"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// DispatchFunc is called for each dispatch.
type DispatchFunc func(ctx context.Context, d event.Dispatch) error

// CompletionFunc is called for each capture completion.
type CompletionFunc func(ctx context.Context, c event.Completion) error

// RecordFunc is called for each finished or expired record.
type RecordFunc func(ctx context.Context, r event.Record) error

// Callback delivers events as in-process function calls. Any func may be nil.
type Callback struct {
	onDispatch   DispatchFunc
	onCompletion CompletionFunc
	onRecord     RecordFunc
}

// NewCallback creates a Callback sink.
func NewCallback(onDispatch DispatchFunc, onCompletion CompletionFunc, onRecord RecordFunc) *Callback {
	return &Callback{onDispatch: onDispatch, onCompletion: onCompletion, onRecord: onRecord}
}

func (c *Callback) Send(ctx context.Context, d event.Dispatch) error {
	if c.onDispatch != nil {
		return c.onDispatch(ctx, d)
	}
	return nil
}

func (c *Callback) SendCompletion(ctx context.Context, comp event.Completion) error {
	if c.onCompletion != nil {
		return c.onCompletion(ctx, comp)
	}
	return nil
}

func (c *Callback) SendRecord(ctx context.Context, r event.Record) error {
	if c.onRecord != nil {
		return c.onRecord(ctx, r)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
