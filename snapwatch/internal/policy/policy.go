// Package policy decides, per input event, whether it is snapshot-worthy and
// which capture channels are active. The Engine owns the temporal and
// repetition state the decision depends on; it does no I/O.
package policy

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Windows virtual-key codes that are always worth a capture.
const (
	VKBack   = 8
	VKTab    = 9
	VKReturn = 13
	VKEscape = 27
	VKSpace  = 32
	VKDelete = 46
)

// DefaultSelectKeys is the key set that bypasses selective suppression.
var DefaultSelectKeys = []int{VKBack, VKTab, VKReturn, VKEscape, VKSpace, VKDelete}

// DefaultIdleInterval separates a burst of keys or moves from the next one.
const DefaultIdleInterval = 5 * time.Second

const noKey = -1

// Channel is the global configuration of one capture channel.
// Selective restricts keyboard captures to select keys and idle resumes.
type Channel struct {
	Enabled   bool `json:"enabled" yaml:"enabled"`
	Selective bool `json:"selective" yaml:"selective"`
}

// Options configures an Engine.
type Options struct {
	Screenshots  Channel
	DOMSnapshots Channel

	// Randomized rolls a per-page accept/reject decision at construction and
	// on every URL change. Rejected pages get no captures.
	Randomized bool

	IdleInterval time.Duration
	SelectKeys   []int

	// Coin returns true for "accept". Nil uses math/rand/v2.
	Coin func() bool
}

// PageContext describes the document the event was delivered to.
// OK is false when no document could be resolved.
type PageContext struct {
	URL string
	OK  bool
}

// Decision is the outcome of classifying one event.
type Decision struct {
	IsSnapshotEvent bool
	Screenshot      bool
	DOMSnapshot     bool

	URL        string
	URLEpoch   int
	URLChanged bool
	// PageSampled is the page sampling decision in force for this event.
	PageSampled bool
}

// Active reports whether any channel survived classification.
func (d Decision) Active() bool { return d.Screenshot || d.DOMSnapshot }

// Engine is the sampling policy state machine. Not safe for concurrent use.
type Engine struct {
	opts Options
	keys map[int]struct{}

	lastKey       int
	lastKeyTime   time.Time
	lastMoveTime  time.Time
	lastURL       string
	urlEpoch      int
	takeSnapshots bool
}

// New creates an Engine. With Randomized set, the initial page sampling
// decision is rolled immediately.
func New(opts Options) *Engine {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}
	if opts.SelectKeys == nil {
		opts.SelectKeys = slices.Clone(DefaultSelectKeys)
	}
	if opts.Coin == nil {
		opts.Coin = func() bool { return rand.IntN(2) == 1 }
	}
	e := &Engine{
		opts:          opts,
		keys:          make(map[int]struct{}, len(opts.SelectKeys)),
		lastKey:       noKey,
		takeSnapshots: true,
	}
	for _, k := range opts.SelectKeys {
		e.keys[k] = struct{}{}
	}
	if opts.Randomized {
		e.takeSnapshots = opts.Coin()
	}
	return e
}

// Options returns the effective options after defaults.
func (e *Engine) Options() Options { return e.opts }

// PageSampled reports the current page sampling decision.
func (e *Engine) PageSampled() bool { return e.takeSnapshots }

// URLEpoch returns the current URL epoch (0 before the first page).
func (e *Engine) URLEpoch() int { return e.urlEpoch }

func (e *Engine) isSelect(code int) bool {
	_, ok := e.keys[code]
	return ok
}

// Classify applies the sampling rules to one event and updates the state.
func (e *Engine) Classify(in event.Input, now time.Time, page PageContext) Decision {
	shot := e.opts.Screenshots.Enabled
	dom := e.opts.DOMSnapshots.Enabled
	kind := in.Kind()

	// Selective keyboard suppression. A non-select key directly after a
	// different select key still gets through.
	if key, ok := in.(event.Key); ok && !e.isSelect(key.Code) {
		if !(e.isSelect(e.lastKey) && e.lastKey != key.Code) {
			if e.opts.Screenshots.Selective && e.opts.Screenshots.Enabled {
				shot = false
			}
			if e.opts.DOMSnapshots.Selective && e.opts.DOMSnapshots.Enabled {
				dom = false
			}
		}
	}

	var snap bool
	switch kind {
	case event.KindMouseDown, event.KindMouseUp, event.KindRawKeyDown, event.KindGestureTapDown:
		snap = true
	}

	if kind == event.KindMouseMove || kind == event.KindMouseWheel {
		if e.lastMoveTime.IsZero() || now.Sub(e.lastMoveTime) > e.opts.IdleInterval {
			snap = true
		}
		e.lastMoveTime = now
	}

	if kind == event.KindRawKeyDown {
		code := in.(event.Key).Code
		if code == e.lastKey {
			snap = false
		}
		if e.lastKeyTime.IsZero() || now.Sub(e.lastKeyTime) > e.opts.IdleInterval {
			snap = true
			if e.opts.Screenshots.Selective && e.opts.Screenshots.Enabled {
				shot = true
			}
			if e.opts.DOMSnapshots.Selective && e.opts.DOMSnapshots.Enabled {
				dom = true
			}
		}
		e.lastKey = code
		e.lastKeyTime = now
	}

	if !page.OK {
		dom = false
	}

	d := Decision{IsSnapshotEvent: snap}
	if snap && page.OK {
		switch {
		case e.urlEpoch == 0:
			e.urlEpoch = 1
		case page.URL != e.lastURL:
			if e.opts.Randomized {
				e.takeSnapshots = e.opts.Coin()
			}
			e.lastKey = noKey
			e.lastKeyTime = time.Time{}
			e.lastMoveTime = time.Time{}
			e.urlEpoch++
			d.URLChanged = true
		}
		e.lastURL = page.URL
	}

	if !e.takeSnapshots {
		shot, dom = false, false
	}

	d.Screenshot = shot
	d.DOMSnapshot = dom
	d.URL = page.URL
	d.URLEpoch = e.urlEpoch
	d.PageSampled = e.takeSnapshots
	return d
}
