package event

import "time"

// Status is the readiness state of a Record.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
)

// Record is the correlation state for one classified input event.
// SnapshotID is zero when no capture was issued.
type Record struct {
	SnapshotID      int64  `json:"snapshot_id,omitempty"`
	EventID         string `json:"event_id"`
	PageID          string `json:"page_id,omitempty"`
	IsSnapshotEvent bool   `json:"is_snapshot_event"`

	ScreenshotEnabled   bool `json:"screenshot_enabled"`
	ScreenshotReceived  bool `json:"screenshot_received"`
	ScreenshotOK        bool `json:"screenshot_ok"`
	DOMSnapshotEnabled  bool `json:"dom_snapshot_enabled"`
	DOMSnapshotReceived bool `json:"dom_snapshot_received"`
	// DOMSize is the number of MHTML bytes written, -1 on failure.
	DOMSize int64 `json:"dom_size"`

	Status Status `json:"status"`

	Input     Wire      `json:"input"`
	Trace     Trace     `json:"trace"`
	URL       string    `json:"url,omitempty"`
	URLEpoch  int       `json:"url_epoch"`
	CreatedAt time.Time `json:"created_at"`
}

// Evaluate recomputes Status from the channel flags and returns it.
// A record is ready when it is a snapshot event and every enabled channel
// has been received.
func (r *Record) Evaluate() Status {
	if r.IsSnapshotEvent &&
		(!r.ScreenshotEnabled || r.ScreenshotReceived) &&
		(!r.DOMSnapshotEnabled || r.DOMSnapshotReceived) {
		r.Status = StatusReady
	} else {
		r.Status = StatusWaiting
	}
	return r.Status
}

// Ready reports whether the last evaluation marked the record ready.
func (r *Record) Ready() bool { return r.Status == StatusReady }

// Active reports whether any capture channel is enabled on the record.
func (r *Record) Active() bool { return r.ScreenshotEnabled || r.DOMSnapshotEnabled }
