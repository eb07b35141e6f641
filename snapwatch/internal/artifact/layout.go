// Package artifact places capture output on disk: screenshots, MHTML
// archives and the forensic line log.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Layout resolves artifact paths for one session directory.
//
//	{root}/snapshots/{session}/snapshot_{id}.png
//	{root}/dom_snapshots/{session}/snapshot_{id}.mhtml
type Layout struct {
	Root    string
	Session string
	// ScreenshotExt is the image extension without dot. Default "png".
	ScreenshotExt string
}

// NewLayout creates a Layout.
func NewLayout(root, session, screenshotExt string) Layout {
	if screenshotExt == "" {
		screenshotExt = "png"
	}
	return Layout{Root: root, Session: session, ScreenshotExt: screenshotExt}
}

// ScreenshotDir is the directory holding this session's images.
func (l Layout) ScreenshotDir() string {
	return filepath.Join(l.Root, "snapshots", l.Session)
}

// ScreenshotPath is the image path for a snapshot ID.
func (l Layout) ScreenshotPath(snapshotID int64) string {
	return filepath.Join(l.ScreenshotDir(), "snapshot_"+strconv.FormatInt(snapshotID, 10)+"."+l.ScreenshotExt)
}

// DOMDir is the directory holding this session's MHTML archives.
func (l Layout) DOMDir() string {
	return filepath.Join(l.Root, "dom_snapshots", l.Session)
}

// DOMPath is the MHTML path for a snapshot ID.
func (l Layout) DOMPath(snapshotID int64) string {
	return filepath.Join(l.DOMDir(), "snapshot_"+strconv.FormatInt(snapshotID, 10)+".mhtml")
}

// Destinations opens MHTML destination files. It implements the
// scheduler's DestinationProvider.
type Destinations struct {
	layout Layout
}

// NewDestinations creates a provider writing under layout.
func NewDestinations(layout Layout) *Destinations {
	return &Destinations{layout: layout}
}

// OpenDestination creates (or truncates) the MHTML file for snapshotID.
func (d *Destinations) OpenDestination(snapshotID int64) (io.WriteCloser, error) {
	if err := os.MkdirAll(d.layout.DOMDir(), 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create dom dir: %w", err)
	}
	f, err := os.Create(d.layout.DOMPath(snapshotID))
	if err != nil {
		return nil, fmt.Errorf("artifact: create mhtml: %w", err)
	}
	return f, nil
}
