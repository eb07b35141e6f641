package observer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// jsInput is the payload posted by input.js through the CDP binding.
type jsInput struct {
	Type   string  `json:"t"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	MoveX  float64 `json:"mx"`
	MoveY  float64 `json:"my"`
	DeltaX float64 `json:"dx"`
	DeltaY float64 `json:"dy"`
	Button int     `json:"b"`
	Key    int     `json:"k"`
	Points int     `json:"n"`
	TS     int64   `json:"ts"`
}

// decodeInput turns a binding payload into a typed input and the time the
// page saw it. A missing timestamp yields the zero time.
func decodeInput(payload string) (event.Input, time.Time, error) {
	var m jsInput
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, time.Time{}, fmt.Errorf("observer: decode input: %w", err)
	}
	var at time.Time
	if m.TS > 0 {
		at = time.UnixMilli(m.TS)
	}

	var in event.Input
	switch m.Type {
	case "mousedown":
		in = event.Mouse{Type: event.KindMouseDown, X: m.X, Y: m.Y, Button: m.Button}
	case "mouseup":
		in = event.Mouse{Type: event.KindMouseUp, X: m.X, Y: m.Y, Button: m.Button}
	case "mousemove":
		in = event.Mouse{Type: event.KindMouseMove, X: m.X, Y: m.Y, MovementX: m.MoveX, MovementY: m.MoveY}
	case "wheel":
		in = event.Wheel{X: m.X, Y: m.Y, DeltaX: m.DeltaX, DeltaY: m.DeltaY}
	case "keydown":
		in = event.Key{Type: event.KindRawKeyDown, Code: m.Key}
	case "keypress":
		in = event.Key{Type: event.KindChar, Code: m.Key}
	case "keyup":
		in = event.Key{Type: event.KindKeyUp, Code: m.Key}
	case "tapdown":
		in = event.Gesture{Type: event.KindGestureTapDown, X: m.X, Y: m.Y}
	case "tap":
		in = event.Gesture{Type: event.KindGestureTap, X: m.X, Y: m.Y}
	case "touchstart":
		in = event.Touch{Type: event.KindTouchStart, X: m.X, Y: m.Y, Points: m.Points}
	case "touchmove":
		in = event.Touch{Type: event.KindTouchMove, X: m.X, Y: m.Y, Points: m.Points}
	case "touchend":
		in = event.Touch{Type: event.KindTouchEnd, X: m.X, Y: m.Y, Points: m.Points}
	default:
		return nil, at, fmt.Errorf("observer: unknown input type %q", m.Type)
	}
	return in, at, nil
}
