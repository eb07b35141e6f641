package snapwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/sink"
)

// Sink is the output interface for snapwatch events.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink. Nil functions are skipped.
func NewCallbackSink(
	onDispatch func(ctx context.Context, d event.Dispatch) error,
	onCompletion func(ctx context.Context, c event.Completion) error,
	onRecord func(ctx context.Context, r event.Record) error,
) Sink {
	return sink.NewCallback(onDispatch, onCompletion, onRecord)
}

// SinksFromConfig builds the sinks a configuration lists. An empty list
// yields a single stdout sink.
func SinksFromConfig(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	if len(cfgs) == 0 {
		return []Sink{sink.NewStdout(nil)}, nil
	}
	out := make([]Sink, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, sink.NewStdout(nil))
		case "webhook":
			if c.URL == "" {
				return nil, fmt.Errorf("snapwatch: webhook sink needs a url")
			}
			opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
			if c.Retries > 0 {
				opts = append(opts, sink.WithWebhookRetries(c.Retries))
			}
			if c.Backoff > 0 {
				opts = append(opts, sink.WithWebhookBackoff(c.Backoff))
			}
			if c.Queue > 0 {
				opts = append(opts, sink.WithWebhookQueue(c.Queue))
			}
			out = append(out, sink.NewWebhook(c.URL, opts...))
		default:
			return nil, fmt.Errorf("snapwatch: unknown sink type %q", c.Type)
		}
	}
	return out, nil
}
