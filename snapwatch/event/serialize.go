package event

import (
	"encoding/json"
	"fmt"
)

// Wire is the flat JSON form of an Input. Kind is the discriminant; only the
// fields relevant to that kind are populated.
type Wire struct {
	Kind      Kind    `json:"kind"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	MovementX float64 `json:"movement_x,omitempty"`
	MovementY float64 `json:"movement_y,omitempty"`
	DeltaX    float64 `json:"delta_x,omitempty"`
	DeltaY    float64 `json:"delta_y,omitempty"`
	Button    int     `json:"button,omitempty"`
	Code      int     `json:"code,omitempty"`
	Points    int     `json:"points,omitempty"`
}

// ToWire flattens an Input. A nil Input yields the zero Wire.
func ToWire(in Input) Wire {
	switch v := in.(type) {
	case Mouse:
		return Wire{Kind: v.Type, X: v.X, Y: v.Y, MovementX: v.MovementX, MovementY: v.MovementY, Button: v.Button}
	case Wheel:
		return Wire{Kind: KindMouseWheel, X: v.X, Y: v.Y, DeltaX: v.DeltaX, DeltaY: v.DeltaY}
	case Key:
		return Wire{Kind: v.Type, Code: v.Code}
	case Gesture:
		return Wire{Kind: v.Type, X: v.X, Y: v.Y}
	case Touch:
		return Wire{Kind: v.Type, X: v.X, Y: v.Y, Points: v.Points}
	}
	return Wire{}
}

// Input rebuilds the typed variant for w.Kind.
func (w Wire) Input() (Input, error) {
	switch w.Kind {
	case KindMouseDown, KindMouseUp, KindMouseMove:
		return Mouse{Type: w.Kind, X: w.X, Y: w.Y, MovementX: w.MovementX, MovementY: w.MovementY, Button: w.Button}, nil
	case KindMouseWheel:
		return Wheel{X: w.X, Y: w.Y, DeltaX: w.DeltaX, DeltaY: w.DeltaY}, nil
	case KindRawKeyDown, KindKeyDown, KindKeyUp, KindChar:
		return Key{Type: w.Kind, Code: w.Code}, nil
	case KindGestureTapDown, KindGestureTap:
		return Gesture{Type: w.Kind, X: w.X, Y: w.Y}, nil
	case KindTouchStart, KindTouchMove, KindTouchEnd:
		return Touch{Type: w.Kind, X: w.X, Y: w.Y, Points: w.Points}, nil
	}
	return nil, fmt.Errorf("event: unknown input kind %q", w.Kind)
}

// MarshalInput serialises an Input through its Wire form.
func MarshalInput(in Input) ([]byte, error) {
	return json.Marshal(ToWire(in))
}

// UnmarshalInput deserialises an Input from its Wire form.
func UnmarshalInput(data []byte) (Input, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return w.Input()
}

// MarshalDispatch serialises a Dispatch to JSON.
func MarshalDispatch(d *Dispatch) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDispatch deserialises a Dispatch from JSON.
func UnmarshalDispatch(data []byte) (*Dispatch, error) {
	var d Dispatch
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// MarshalRecord serialises a Record to JSON.
func MarshalRecord(r *Record) ([]byte, error) {
	return json.Marshal(r)
}
