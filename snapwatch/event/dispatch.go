package event

import "time"

// Channel identifies one of the two capture channels.
type Channel string

const (
	ChannelScreenshot  Channel = "screenshot"
	ChannelDOMSnapshot Channel = "dom_snapshot"
)

// CaptureParams tells downstream consumers which artifacts accompany an event.
type CaptureParams struct {
	SnapshotID        int64  `json:"snapshot_id,omitempty"`
	ScreenshotActive  bool   `json:"screenshot_active"`
	DOMSnapshotActive bool   `json:"dom_snapshot_active"`
	EventID           string `json:"event_id"`
	Boundary          string `json:"boundary,omitempty"`
}

// Dispatch is the message forwarded downstream for every classified input.
type Dispatch struct {
	PageID  string        `json:"page_id,omitempty"`
	EventID string        `json:"event_id"`
	Input   Wire          `json:"input"`
	Trace   Trace         `json:"trace"`
	URL     string        `json:"url,omitempty"`
	Capture CaptureParams `json:"capture"`
}

// Completion reports that one capture channel finished for a snapshot.
type Completion struct {
	PageID     string    `json:"page_id,omitempty"`
	SnapshotID int64     `json:"snapshot_id"`
	EventID    string    `json:"event_id,omitempty"`
	Channel    Channel   `json:"channel"`
	Success    bool      `json:"success"`
	Size       int64     `json:"size"`
	Path       string    `json:"path,omitempty"`
	At         time.Time `json:"at"`
}

// Region is a viewport rectangle in CSS pixels. The zero value means the
// whole viewport.
type Region struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Empty reports whether r selects nothing in particular.
func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// ScreenshotRequest asks the visual backend for a capture.
type ScreenshotRequest struct {
	SnapshotID int64  `json:"snapshot_id"`
	EventID    string `json:"event_id"`
	Region     Region `json:"region"`
}

// SnapshotRequest asks the structural backend for an MHTML capture.
type SnapshotRequest struct {
	SnapshotID int64  `json:"snapshot_id"`
	EventID    string `json:"event_id"`
	Boundary   string `json:"boundary"`
}
