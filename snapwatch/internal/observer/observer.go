// Package observer captures user input on one page. Listeners injected into
// the document post each event through a CDP binding; a single goroutine
// hands them to the scheduler in arrival order.
package observer

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/browser"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/policy"
)

//go:embed input.js
var inputJS string

const bindingName = "__snapwatch_input"

// Handler receives decoded input. *scheduler.Handler implements it.
type Handler interface {
	HandleInputEvent(ctx context.Context, in event.Input, trace event.Trace) string
	Sweep(now time.Time) int
}

// Config for creating an Observer.
type Config struct {
	Tab     *browser.Tab
	Handler Handler
	// Traces numbers the events of this page. It survives observer restarts
	// so trace IDs stay unique across browser recycles.
	Traces        *idgen.Counter
	SweepInterval time.Duration
	MoveThrottle  time.Duration
	QueueSize     int
	Logger        *slog.Logger
}

type rawInput struct {
	in event.Input
	at time.Time
}

// Observer runs the input pipeline for one tab.
type Observer struct {
	tab     *browser.Tab
	handler Handler
	traces  *idgen.Counter
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	rawCh         chan rawInput
	sweepInterval time.Duration
	moveThrottle  time.Duration

	url      atomic.Pointer[string]
	received atomic.Int64
	dropped  atomic.Int64
	done     chan struct{}
}

// New creates an Observer for the given tab.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	if cfg.MoveThrottle <= 0 {
		cfg.MoveThrottle = 50 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.Traces == nil {
		cfg.Traces = &idgen.Counter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		tab:           cfg.Tab,
		handler:       cfg.Handler,
		traces:        cfg.Traces,
		logger:        cfg.Logger,
		ctx:           ctx,
		cancel:        cancel,
		rawCh:         make(chan rawInput, cfg.QueueSize),
		sweepInterval: cfg.SweepInterval,
		moveThrottle:  cfg.MoveThrottle,
		done:          make(chan struct{}),
	}
	if cfg.Tab != nil {
		o.setURL(cfg.Tab.PageURL)
	}
	return o
}

// SetContext ties the observer to a parent context. Call before Start.
func (o *Observer) SetContext(ctx context.Context) {
	o.cancel()
	o.ctx, o.cancel = context.WithCancel(ctx)
}

// Start installs the binding and listeners and runs the dispatch loop.
func (o *Observer) Start() error {
	page := o.tab.Page

	if u, err := o.tab.CurrentURL(); err == nil && u != "" {
		o.setURL(u)
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		o.logger.Warn("observer: addBinding failed (may already exist)", "error", err)
	}

	wait := page.Context(o.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				o.enqueue(e.Payload)
			}
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil && e.Frame.ParentID == "" {
				o.navigated(e.Frame.URL)
			}
		},
		func(e *proto.PageNavigatedWithinDocument) {
			if e.FrameID == page.FrameID {
				o.navigated(e.URL)
			}
		},
	)
	go wait()

	setup := fmt.Sprintf("window.__snapwatch_move_throttle = %d;", o.moveThrottle.Milliseconds())
	if _, err := page.EvalOnNewDocument(setup + "(" + inputJS + ")();"); err != nil {
		return fmt.Errorf("observer: register input script: %w", err)
	}
	if _, err := page.Eval(`(t) => { window.__snapwatch_move_throttle = t; }`, o.moveThrottle.Milliseconds()); err != nil {
		o.logger.Warn("observer: set move throttle failed", "error", err)
	}
	if _, err := page.Eval(inputJS); err != nil {
		return fmt.Errorf("observer: inject input script: %w", err)
	}

	go o.loop()

	o.logger.Info("observer: listening", "page_id", o.tab.PageID, "url", o.URL())
	return nil
}

// Stop ends observation. Events still queued are dropped.
func (o *Observer) Stop() {
	o.cancel()
}

// Done is closed when the dispatch loop has exited.
func (o *Observer) Done() <-chan struct{} { return o.done }

// URL returns the last committed URL of the main frame.
func (o *Observer) URL() string {
	if p := o.url.Load(); p != nil {
		return *p
	}
	return ""
}

// Locate reports the document events are delivered to.
func (o *Observer) Locate() policy.PageContext {
	u := o.URL()
	return policy.PageContext{URL: u, OK: u != ""}
}

// Counters returns how many inputs were received and dropped.
func (o *Observer) Counters() (received, dropped int64) {
	return o.received.Load(), o.dropped.Load()
}

func (o *Observer) setURL(u string) {
	o.url.Store(&u)
}

func (o *Observer) navigated(u string) {
	if u == o.URL() {
		return
	}
	o.setURL(u)
	o.logger.Debug("observer: navigated", "page_id", o.tab.PageID, "url", u)
}

// enqueue decodes a binding payload and queues it without blocking the CDP
// event reader. Inputs are dropped when the queue is full.
func (o *Observer) enqueue(payload string) {
	in, at, err := decodeInput(payload)
	if err != nil {
		o.logger.Warn("observer: bad binding payload", "error", err)
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	o.received.Add(1)
	select {
	case o.rawCh <- rawInput{in: in, at: at}:
	default:
		if n := o.dropped.Add(1); n == 1 || n%1000 == 0 {
			o.logger.Warn("observer: input queue full, dropping", "page_id", o.tab.PageID, "dropped", n)
		}
	}
}

// loop is the single dispatch goroutine for this page.
func (o *Observer) loop() {
	defer close(o.done)
	sweep := time.NewTicker(o.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case raw := <-o.rawCh:
			trace := event.Trace{ID: o.traces.Next(), ReceivedAt: raw.at}
			o.handler.HandleInputEvent(o.ctx, raw.in, trace)

		case now := <-sweep.C:
			if n := o.handler.Sweep(now); n > 0 {
				o.logger.Warn("observer: expired waiting records", "page_id", o.tab.PageID, "count", n)
			}
		}
	}
}
