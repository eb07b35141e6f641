package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

type pendingImage struct {
	id    int64
	image []byte
}

// ScreenshotWriter persists captured images from a background goroutine.
// PersistScreenshot never blocks; images are dropped when the queue is full
// or the writer is closed.
type ScreenshotWriter struct {
	layout Layout
	logger *slog.Logger
	ch     chan pendingImage
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
}

// NewScreenshotWriter starts a writer with the given queue size (<= 0 means 256).
func NewScreenshotWriter(layout Layout, queue int, logger *slog.Logger) *ScreenshotWriter {
	if queue <= 0 {
		queue = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &ScreenshotWriter{
		layout: layout,
		logger: logger,
		ch:     make(chan pendingImage, queue),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// PersistScreenshot queues image for writing.
func (w *ScreenshotWriter) PersistScreenshot(snapshotID int64, image []byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		w.logger.Debug("artifact: screenshot after close, dropping", "snapshot_id", snapshotID)
		return
	}
	select {
	case w.ch <- pendingImage{id: snapshotID, image: image}:
	default:
		w.dropped.Add(1)
		w.logger.Warn("artifact: screenshot queue full, dropping", "snapshot_id", snapshotID)
	}
}

// Counts returns how many images were written and dropped.
func (w *ScreenshotWriter) Counts() (written, dropped int64) {
	return w.written.Load(), w.dropped.Load()
}

// Close drains the queue and stops the writer.
func (w *ScreenshotWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}

func (w *ScreenshotWriter) loop() {
	defer close(w.done)
	for p := range w.ch {
		if err := w.write(p); err != nil {
			w.logger.Error("artifact: write screenshot", "snapshot_id", p.id, "error", err)
			continue
		}
		w.written.Add(1)
	}
}

func (w *ScreenshotWriter) write(p pendingImage) error {
	if err := os.MkdirAll(w.layout.ScreenshotDir(), 0o755); err != nil {
		return fmt.Errorf("artifact: create screenshot dir: %w", err)
	}
	if err := os.WriteFile(w.layout.ScreenshotPath(p.id), p.image, 0o644); err != nil {
		return fmt.Errorf("artifact: write: %w", err)
	}
	return nil
}
