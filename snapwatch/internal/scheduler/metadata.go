package scheduler

import (
	"fmt"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// metadataLine formats the per-event detail line for the forensic log.
// Kinds without interesting coordinates or codes yield "".
func metadataLine(in event.Input, eventID string) string {
	switch v := in.(type) {
	case event.Mouse:
		switch v.Type {
		case event.KindMouseDown, event.KindMouseUp:
			return fmt.Sprintf("metadata: click coordinates: %g, %g, event id: %s", v.X, v.Y, eventID)
		case event.KindMouseMove:
			return fmt.Sprintf("metadata: mouse move coordinates: %g, %g, deltas: %g, %g, event id: %s",
				v.X, v.Y, v.MovementX, v.MovementY, eventID)
		}
	case event.Key:
		return fmt.Sprintf("metadata: key code: %d, event id: %s", v.Code, eventID)
	case event.Gesture:
		if v.Type == event.KindGestureTapDown {
			return fmt.Sprintf("metadata: tap down coordinates: %g, %g, event id: %s", v.X, v.Y, eventID)
		}
	}
	return ""
}
