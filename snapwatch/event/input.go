// Package event defines the structured types emitted by snapwatch.
// These are the public API contract: consumers of dispatches, completions
// and records (sinks, the event index, custom pipelines) import this package.
package event

import "time"

// Kind is the type of a user-input event.
type Kind string

const (
	KindMouseDown      Kind = "mouse_down"
	KindMouseUp        Kind = "mouse_up"
	KindMouseMove      Kind = "mouse_move"
	KindMouseWheel     Kind = "mouse_wheel"
	KindRawKeyDown     Kind = "raw_key_down" // physical key press, before character translation
	KindKeyDown        Kind = "key_down"
	KindKeyUp          Kind = "key_up"
	KindChar           Kind = "char"
	KindGestureTapDown Kind = "gesture_tap_down"
	KindGestureTap     Kind = "gesture_tap"
	KindTouchStart     Kind = "touch_start"
	KindTouchMove      Kind = "touch_move"
	KindTouchEnd       Kind = "touch_end"
)

// IsKeyboard reports whether k is one of the keyboard kinds.
func IsKeyboard(k Kind) bool {
	switch k {
	case KindRawKeyDown, KindKeyDown, KindKeyUp, KindChar:
		return true
	}
	return false
}

// IsMouse reports whether k is a mouse button or move kind (wheel excluded).
func IsMouse(k Kind) bool {
	switch k {
	case KindMouseDown, KindMouseUp, KindMouseMove:
		return true
	}
	return false
}

// Input is a single user-input event. The set of implementations is closed:
// Mouse, Wheel, Key, Gesture and Touch.
type Input interface {
	Kind() Kind
	isInput()
}

// Mouse is a button press/release or pointer move.
type Mouse struct {
	Type      Kind    `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	MovementX float64 `json:"movement_x,omitempty"`
	MovementY float64 `json:"movement_y,omitempty"`
	Button    int     `json:"button,omitempty"`
}

// Wheel is a scroll-wheel event.
type Wheel struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
}

// Key is a keyboard event. Code is the Windows virtual-key code.
type Key struct {
	Type Kind `json:"type"`
	Code int  `json:"code"`
}

// Gesture is a touch gesture (tap-down, tap).
type Gesture struct {
	Type Kind    `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Touch is a raw touch-point event.
type Touch struct {
	Type   Kind    `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Points int     `json:"points"`
}

func (m Mouse) Kind() Kind   { return m.Type }
func (Wheel) Kind() Kind     { return KindMouseWheel }
func (k Key) Kind() Kind     { return k.Type }
func (g Gesture) Kind() Kind { return g.Type }
func (t Touch) Kind() Kind   { return t.Type }

func (Mouse) isInput()   {}
func (Wheel) isInput()   {}
func (Key) isInput()     {}
func (Gesture) isInput() {}
func (Touch) isInput()   {}

// Trace is the correlation token attached to an input event by its source.
// ID is opaque to the scheduler and must be unique per event.
type Trace struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}
