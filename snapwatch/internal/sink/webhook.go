package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// ErrQueueFull is returned when the webhook delivery queue cannot take more.
var ErrQueueFull = errors.New("webhook: queue full")

var errWebhookClosed = errors.New("webhook: closed")

// Webhook POSTs JSON envelopes to a URL from a background worker, retrying
// with exponential backoff. Send only enqueues.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay; it doubles per attempt. Default 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookQueue sets the delivery queue size. Default 1024.
func WithWebhookQueue(n int) WebhookOption {
	return func(w *Webhook) {
		if n > 0 {
			w.queue = make(chan []byte, n)
		}
	}
}

// WithWebhookClient replaces the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink and starts its worker.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
		queue:      make(chan []byte, 1024),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	go w.run()
	return w
}

func (w *Webhook) Send(_ context.Context, d event.Dispatch) error {
	return w.enqueue(TypeDispatch, d)
}

func (w *Webhook) SendCompletion(_ context.Context, c event.Completion) error {
	return w.enqueue(TypeCompletion, c)
}

func (w *Webhook) SendRecord(_ context.Context, r event.Record) error {
	return w.enqueue(TypeRecord, r)
}

// Close stops accepting envelopes and waits for queued ones to be delivered.
func (w *Webhook) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}

func (w *Webhook) enqueue(typ string, data any) error {
	body, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWebhookClosed
	}
	select {
	case w.queue <- body:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Webhook) run() {
	defer close(w.done)
	for body := range w.queue {
		if err := w.post(context.Background(), body); err != nil {
			w.logger.Error("webhook: delivery failed", "url", w.url, "error", err)
		}
	}
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}
