package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// PageSource returns the page captures run against. It may return nil while
// the browser is being recycled.
type PageSource func() *rod.Page

// ScreenshotCapturer is the visual capture backend. Every request runs on its
// own goroutine.
type ScreenshotCapturer struct {
	source  PageSource
	format  proto.PageCaptureScreenshotFormat
	quality *int
	logger  *slog.Logger
}

// NewScreenshotCapturer creates a capturer. format is png, jpeg or webp;
// quality applies to the lossy formats.
func NewScreenshotCapturer(source PageSource, format string, quality int, logger *slog.Logger) *ScreenshotCapturer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ScreenshotCapturer{source: source, format: ScreenshotFormat(format), logger: logger}
	if c.format != proto.PageCaptureScreenshotFormatPng && quality > 0 {
		c.quality = &quality
	}
	return c
}

// ScreenshotFormat maps a config string to a CDP format, defaulting to PNG.
func ScreenshotFormat(s string) proto.PageCaptureScreenshotFormat {
	switch s {
	case "jpeg", "jpg":
		return proto.PageCaptureScreenshotFormatJpeg
	case "webp":
		return proto.PageCaptureScreenshotFormatWebp
	}
	return proto.PageCaptureScreenshotFormatPng
}

// RequestScreenshot captures the viewport (or req.Region) asynchronously.
func (c *ScreenshotCapturer) RequestScreenshot(ctx context.Context, req event.ScreenshotRequest, done func(image []byte, success bool)) {
	go func() {
		img, err := c.capture(ctx, req)
		if err != nil {
			c.logger.Warn("browser: screenshot failed", "snapshot_id", req.SnapshotID, "event_id", req.EventID, "error", err)
			done(nil, false)
			return
		}
		done(img, true)
	}()
}

func (c *ScreenshotCapturer) capture(ctx context.Context, req event.ScreenshotRequest) ([]byte, error) {
	page := c.source()
	if page == nil {
		return nil, fmt.Errorf("no page")
	}
	call := proto.PageCaptureScreenshot{
		Format:  c.format,
		Quality: c.quality,
	}
	if !req.Region.Empty() {
		call.Clip = &proto.PageViewport{
			X:      req.Region.X,
			Y:      req.Region.Y,
			Width:  req.Region.Width,
			Height: req.Region.Height,
			Scale:  1,
		}
	}
	res, err := call.Call(page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return res.Data, nil
}

// MHTMLCapturer is the structural capture backend: Page.captureSnapshot in
// MHTML format, written to the destination the scheduler opened.
type MHTMLCapturer struct {
	source PageSource
	logger *slog.Logger
}

// NewMHTMLCapturer creates an MHTML capturer.
func NewMHTMLCapturer(source PageSource, logger *slog.Logger) *MHTMLCapturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MHTMLCapturer{source: source, logger: logger}
}

// RequestSnapshot serialises the page asynchronously. dest is always closed.
func (c *MHTMLCapturer) RequestSnapshot(ctx context.Context, req event.SnapshotRequest, dest io.WriteCloser, done func(size int64)) {
	go func() {
		n, err := c.capture(ctx, req, dest)
		if cerr := dest.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close destination: %w", cerr)
		}
		if err != nil {
			c.logger.Warn("browser: mhtml snapshot failed", "snapshot_id", req.SnapshotID, "event_id", req.EventID, "error", err)
			done(-1)
			return
		}
		done(n)
	}()
}

func (c *MHTMLCapturer) capture(ctx context.Context, req event.SnapshotRequest, dest io.Writer) (int64, error) {
	page := c.source()
	if page == nil {
		return 0, fmt.Errorf("no page")
	}
	res, err := proto.PageCaptureSnapshot{Format: proto.PageCaptureSnapshotFormatMhtml}.Call(page.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("capture snapshot: %w", err)
	}
	data := res.Data
	if req.Boundary != "" {
		data = Rebound(data, req.Boundary)
	}
	n, err := io.WriteString(dest, data)
	if err != nil {
		return int64(n), fmt.Errorf("write mhtml: %w", err)
	}
	return int64(n), nil
}
